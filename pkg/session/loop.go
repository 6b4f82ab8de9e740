package session

import (
	"context"
	"time"

	"github.com/harun/colloquy/internal/observability"
	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/model"
	"github.com/harun/colloquy/pkg/prompt"
	"github.com/harun/colloquy/pkg/stream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// loop is the state of one run. It is owned by the goroutine holding the permit.
type loop struct {
	session  *Session
	params   RunParams
	observer Observer
	logger   zerolog.Logger
	history  []message.Message
	pending  []message.Message
	// stop ends the loop after a tool round when it reports true.
	stop func() bool
}

func (l *loop) submit(ctx context.Context, msg message.Message) {
	l.pending = append(l.pending, msg)
	if l.observer.OnMessage != nil {
		l.observer.OnMessage(msg)
	}
	l.session.tracer.MessageSubmitted(ctx, msg)
	l.logger.Debug().Str("message_id", msg.ID).Str("role", string(msg.Role())).Int("blocks", len(msg.Blocks)).Msg("Message submitted")
}

// execute runs the loop and returns the number of model turns taken.
func (l *loop) execute(ctx context.Context) (int, error) {
	s := l.session

	userMsg, err := s.formatter.FormatUserPrompt(ctx, l.params.Prompt, l.history)
	if err != nil {
		return 0, err
	}
	if changed := countAnchors(userMsg); changed > 0 {
		observability.RecordArtifactChanges(changed)
	}
	l.submit(ctx, userMsg)

	system := l.params.System
	if system == "" {
		system = s.system
	}
	systemPrompt, err := s.formatter.FormatSystemPrompt(ctx, system, l.params.Blueprints, l.params.Objects)
	if err != nil {
		return 0, err
	}

	iterations := 0
	for {
		if s.maxIter > 0 && iterations >= s.maxIter {
			return iterations, ErrMaxIterations
		}
		iterations++

		assistant, err := l.turn(ctx, systemPrompt)
		if err != nil {
			return iterations, err
		}
		l.submit(ctx, assistant)

		calls := assistant.ToolCalls()
		if len(calls) == 0 {
			return iterations, nil
		}
		if l.params.Toolkit == nil {
			return iterations, ErrNoToolkit
		}

		results, err := l.executeTools(ctx, assistant.ID, calls)
		if err != nil {
			return iterations, err
		}
		l.submit(ctx, results)

		if l.stop != nil && l.stop() {
			return iterations, nil
		}
	}
}

// turn streams one model response into an assistant message.
func (l *loop) turn(ctx context.Context, system string) (message.Message, error) {
	s := l.session

	promptContext := make([]message.Message, 0, len(l.history)+len(l.pending))
	promptContext = append(promptContext, l.history...)
	promptContext = append(promptContext, l.pending...)
	msgs, err := prompt.Preprocess(promptContext)
	if err != nil {
		return message.Message{}, err
	}

	tokens := prompt.EstimateTokens(system, msgs)
	observability.ObservePromptTokens(tokens)
	l.logger.Debug().Int("messages", len(msgs)).Int("estimated_tokens", tokens).Msg("Requesting model response")

	req := model.Request{
		Model:       s.modelName,
		System:      system,
		Messages:    msgs,
		Tools:       l.params.Toolkit.Specs(),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}

	start := time.Now()
	src, err := s.model.Stream(ctx, req)
	if err != nil {
		observability.RecordModelTurn(s.model.Provider(), time.Since(start), false)
		return message.Message{}, &ModelError{Provider: s.model.Provider(), Err: err}
	}

	blocks, err := stream.NewConsumer(l.observer.hooks(), l.logger).Collect(src)
	observability.RecordModelTurn(s.model.Provider(), time.Since(start), err == nil)
	if err != nil {
		return message.Message{}, &ModelError{Provider: s.model.Provider(), Err: err}
	}
	return message.New(message.RoleAssistant, blocks...), nil
}

// executeTools runs all calls concurrently and waits for every one of them.
// Results keep call order.
func (l *loop) executeTools(ctx context.Context, messageID string, calls []message.ToolUseBlock) (message.Message, error) {
	s := l.session
	results := make([]message.ToolResultBlock, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			callCtx := tracing.ToolCallContext(ctx, messageID, call.ToolCallID)
			callCtx, end := s.tracer.StartToolCall(callCtx, messageID, call)
			result, err := s.executor.Execute(callCtx, call, l.params.Toolkit)
			end(result, err)
			results[i] = result
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return message.Message{}, err
	}

	blocks := make([]message.Block, len(results))
	failed := 0
	for i, result := range results {
		blocks[i] = result
		if result.Failed() {
			failed++
		}
	}
	l.logger.Debug().Int("calls", len(calls)).Int("failed", failed).Msg("Tool calls completed")
	return message.New(message.RoleTool, blocks...), nil
}

func countAnchors(msg message.Message) int {
	n := 0
	for _, b := range msg.Blocks {
		if _, ok := b.(message.AnchorBlock); ok {
			n++
		}
	}
	return n
}
