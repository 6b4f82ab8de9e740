package model

import (
	"context"
	"fmt"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/stream"
	"github.com/harun/colloquy/pkg/toolkit"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderEcho      = "echo"

	defaultMaxTokens = 4096
)

// Request is one model turn. Messages are expected to be preprocessed.
type Request struct {
	Model       string
	System      string
	Messages    []message.Message
	Tools       []toolkit.Spec
	MaxTokens   int
	Temperature float64
}

// Service streams model responses.
type Service interface {
	Stream(ctx context.Context, req Request) (stream.Source, error)

	// Provider returns the provider name
	Provider() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// NewService creates the Service for cfg.Provider.
func NewService(cfg Config) (Service, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderEcho:
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// sdkStream is the iteration contract shared by the provider SDK streams.
type sdkStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// partSource turns a provider event stream into parts. translate maps one
// event to zero or more parts; flush runs once after the last event.
type partSource[T any] struct {
	events    sdkStream[T]
	translate func(T) []stream.Part
	flush     func() []stream.Part

	queue []stream.Part
	cur   stream.Part
	done  bool
}

func newPartSource[T any](events sdkStream[T], translate func(T) []stream.Part, flush func() []stream.Part) *partSource[T] {
	return &partSource[T]{events: events, translate: translate, flush: flush}
}

func (s *partSource[T]) Next() bool {
	for len(s.queue) == 0 {
		if s.done {
			return false
		}
		if s.events.Next() {
			s.queue = s.translate(s.events.Current())
			continue
		}
		s.done = true
		if s.events.Err() == nil && s.flush != nil {
			s.queue = s.flush()
		}
	}
	s.cur, s.queue = s.queue[0], s.queue[1:]
	return true
}

func (s *partSource[T]) Current() stream.Part {
	return s.cur
}

func (s *partSource[T]) Err() error {
	return s.events.Err()
}

func (s *partSource[T]) Close() error {
	return s.events.Close()
}

func resultText(r message.ToolResultBlock) string {
	if r.Failed() {
		return r.Error
	}
	return r.Output
}
