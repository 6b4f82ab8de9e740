package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harun/colloquy/internal/observability"
	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 10 * 1024
	truncationMarker      = "\n... [output truncated]"
)

// Policy restricts which tools may run. Patterns use path.Match syntax.
type Policy struct {
	Allow []string `json:"allow" mapstructure:"allow"` // empty allows every tool
	Deny  []string `json:"deny" mapstructure:"deny"`   // overrides allow
}

// IsAllowed reports whether the policy permits the tool.
func (p *Policy) IsAllowed(name string) bool {
	if p == nil {
		return true
	}
	for _, pattern := range p.Deny {
		if matchTool(pattern, name) {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, pattern := range p.Allow {
		if matchTool(pattern, name) {
			return true
		}
	}
	return false
}

func matchTool(pattern, name string) bool {
	if pattern == name || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int
	Policy         *Policy
	Session        string // recorded in audit events
	Logger         *zerolog.Logger
}

// Executor runs tool calls against a toolkit.
type Executor struct {
	timeout   time.Duration
	maxOutput int
	policy    *Policy
	session   string
	logger    zerolog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &Executor{
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutputBytes,
		policy:    cfg.Policy,
		session:   cfg.Session,
		logger:    logger,
	}
}

// Execute runs one tool call. Only a missing tool is returned as an error;
// every other failure is reported in the result block.
func (e *Executor) Execute(ctx context.Context, call message.ToolUseBlock, tk *Toolkit) (message.ToolResultBlock, error) {
	result := message.ToolResultBlock{ToolCallID: call.ToolCallID, Name: call.Name}
	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("tool", call.Name).Logger()

	if tk == nil {
		return result, &NotFoundError{Name: call.Name}
	}
	ent, ok := tk.lookup(call.Name)
	if !ok {
		logger.Error().Msg("Tool not found")
		return result, &NotFoundError{Name: call.Name}
	}

	if !e.policy.IsAllowed(call.Name) {
		logger.Warn().Msg("Tool execution blocked by policy")
		observability.RecordToolAudit(ctx, call.Name, e.session, "denied", nil)
		result.Error = fmt.Sprintf("tool '%s' is not allowed by policy", call.Name)
		return result, nil
	}

	params, err := call.Params()
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	if err := validateParams(ent.valid, params); err != nil {
		logger.Error().Err(err).Msg("Parameter validation failed")
		result.Error = fmt.Sprintf("parameter validation failed: %v", err)
		return result, nil
	}

	start := time.Now()
	output, err := e.run(ctx, ent.tool.Handler, params)
	duration := time.Since(start)
	observability.RecordToolExecution(call.Name, duration, err == nil)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("Tool execution failed")
		observability.RecordToolAudit(ctx, call.Name, e.session, "failure", map[string]interface{}{"error": err.Error()})
		result.Error = err.Error()
		return result, nil
	}

	text, err := formatOutput(output)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	text, truncated := e.truncate(text)
	if truncated {
		logger.Warn().Int("limit", e.maxOutput).Msg("Output truncated")
	}
	logger.Debug().Dur("duration", duration).Bool("truncated", truncated).Msg("Tool execution completed")
	observability.RecordToolAudit(ctx, call.Name, e.session, "success", map[string]interface{}{"duration_ms": duration.Milliseconds()})

	result.Output = text
	return result, nil
}

func (e *Executor) run(ctx context.Context, handler Handler, params map[string]interface{}) (interface{}, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		v, err := handler(timeoutCtx, params)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil || timeoutCtx.Err() == nil {
			return out.value, out.err
		}
	case <-timeoutCtx.Done():
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("tool execution cancelled: %w", ctx.Err())
	}
	return nil, fmt.Errorf("tool execution timeout after %v", e.timeout)
}

func (e *Executor) truncate(text string) (string, bool) {
	if len(text) <= e.maxOutput {
		return text, false
	}
	cut := e.maxOutput
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker, true
}

func formatOutput(output interface{}) (string, error) {
	switch v := output.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("encode tool output: %w", err)
	}
	return string(data), nil
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		msgs = append(msgs, re.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
