package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harun/colloquy/internal/observability"
	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/model"
	"github.com/harun/colloquy/pkg/prompt"
	"github.com/harun/colloquy/pkg/toolkit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

// Config holds session configuration
type Config struct {
	// ID identifies the session in logs and traces. Generated when empty.
	ID string

	Model       model.Service
	ModelName   string
	MaxTokens   int
	Temperature float64

	// SystemPrompt is used when a run does not override it.
	SystemPrompt string

	// MaxIterations caps model turns per run. Zero means no cap.
	MaxIterations int

	Formatter *prompt.Formatter
	Executor  *toolkit.Executor
	Tracer    Tracer
	Logger    *zerolog.Logger
}

// RunParams describe one run.
type RunParams struct {
	Prompt string
	// System overrides Config.SystemPrompt when set.
	System     string
	History    []message.Message
	Objects    []prompt.ContextObject
	Blueprints []blueprint.Blueprint
	// Toolkit may be nil; a run whose model requests tools then fails with ErrNoToolkit.
	Toolkit  *toolkit.Toolkit
	Observer *Observer
}

// Session owns the single-flight guard around runs.
type Session struct {
	id          string
	model       model.Service
	modelName   string
	maxTokens   int
	temperature float64
	system      string
	maxIter     int
	formatter   *prompt.Formatter
	executor    *toolkit.Executor
	tracer      Tracer
	logger      zerolog.Logger
	permit      *semaphore.Weighted
}

// New creates a session.
func New(cfg Config) (*Session, error) {
	observability.EnsureRegistered()

	if cfg.Model == nil {
		return nil, fmt.Errorf("model service is required")
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations cannot be negative")
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Formatter == nil {
		cfg.Formatter = prompt.NewFormatter(prompt.FormatterConfig{Logger: &logger})
	}
	if cfg.Executor == nil {
		cfg.Executor = toolkit.NewExecutor(toolkit.ExecutorConfig{Session: cfg.ID, Logger: &logger})
	}
	if cfg.Tracer == nil {
		cfg.Tracer = OTelTracer{}
	}

	return &Session{
		id:          cfg.ID,
		model:       cfg.Model,
		modelName:   cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      cfg.SystemPrompt,
		maxIter:     cfg.MaxIterations,
		formatter:   cfg.Formatter,
		executor:    cfg.Executor,
		tracer:      safeTracer{inner: cfg.Tracer, logger: logger},
		logger:      logger.With().Str("session_id", cfg.ID).Logger(),
		permit:      semaphore.NewWeighted(1),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Run executes the tool-call loop for one prompt and returns the messages it
// created, in creation order. A concurrent Run waits until this one returns;
// ctx bounds that wait and is passed to every collaborator.
func (s *Session) Run(ctx context.Context, params RunParams) ([]message.Message, error) {
	return s.run(ctx, params, nil)
}

func (s *Session) run(ctx context.Context, params RunParams, stop func() bool) ([]message.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	waitStart := time.Now()
	if err := s.permit.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer s.permit.Release(1)
	observability.RecordPermitWait(time.Since(waitStart))

	ctx = tracing.NewRunContext(ctx, s.id)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.run",
		attribute.String("session.id", s.id),
		attribute.String("model.provider", s.model.Provider()),
		attribute.Int("history.length", len(params.History)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	observer := Observer{}
	if params.Observer != nil {
		observer = *params.Observer
	}
	history := params.History
	if history == nil {
		history = []message.Message{}
	}

	r := &loop{
		session:  s,
		params:   params,
		observer: observer,
		logger:   logger,
		history:  history,
		pending:  []message.Message{},
		stop:     stop,
	}

	logger.Info().Int("history", len(history)).Msg("Session run started")
	start := time.Now()
	iterations, err := r.execute(ctx)
	duration := time.Since(start)
	observability.RecordRun(duration, iterations, err == nil)
	span.SetAttributes(attribute.Int("run.iterations", iterations))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Int("iterations", iterations).Int("pending", len(r.pending)).Msg("Session run failed")
		return nil, &RunError{Pending: r.pending, Err: err}
	}

	logger.Info().
		Int("iterations", iterations).
		Int("messages", len(r.pending)).
		Dur("duration", duration).
		Msg("Session run completed")
	return r.pending, nil
}
