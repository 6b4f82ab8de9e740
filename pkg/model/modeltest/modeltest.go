// Package modeltest provides a scripted model.Service for tests.
package modeltest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/model"
	"github.com/harun/colloquy/pkg/stream"
)

// ErrScriptExhausted is returned when Stream is called more often than scripted.
var ErrScriptExhausted = errors.New("modeltest: no scripted turn left")

// Turn is the scripted outcome of one Stream call.
type Turn struct {
	Parts []stream.Part
	// Err fails Stream itself.
	Err error
	// StreamErr is reported by the source after Parts are consumed.
	StreamErr error
}

// Service replays turns in order and records every request.
type Service struct {
	// OnStream, when set, runs before each turn is served.
	OnStream func(ctx context.Context, req model.Request)

	mu       sync.Mutex
	turns    []Turn
	requests []model.Request
}

// New creates a Service serving turns in order.
func New(turns ...Turn) *Service {
	return &Service{turns: turns}
}

func (s *Service) Provider() string {
	return "scripted"
}

func (s *Service) Stream(ctx context.Context, req model.Request) (stream.Source, error) {
	if s.OnStream != nil {
		s.OnStream(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.turns) == 0 {
		return nil, ErrScriptExhausted
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]

	if turn.Err != nil {
		return nil, turn.Err
	}
	src := stream.FromParts(turn.Parts...)
	if turn.StreamErr != nil {
		src.FailAfter(turn.StreamErr)
	}
	return src, nil
}

// Append adds turns to the end of the script.
func (s *Service) Append(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

// Requests returns the requests received so far.
func (s *Service) Requests() []model.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Request(nil), s.requests...)
}

// Text is a turn answering with plain text.
func Text(text string) Turn {
	return Turn{Parts: []stream.Part{
		stream.ResponseMetadata{Model: "scripted"},
		stream.TextStart{},
		stream.TextDelta{Delta: text},
		stream.TextEnd{},
		finish("stop"),
	}}
}

// ToolCalls is a turn requesting the given tool calls.
func ToolCalls(calls ...stream.ToolCall) Turn {
	parts := []stream.Part{stream.ResponseMetadata{Model: "scripted"}}
	for _, call := range calls {
		parts = append(parts, call)
	}
	return Turn{Parts: append(parts, finish("tool_use"))}
}

// Call builds a tool call part. input is marshaled to JSON.
func Call(id, name string, input interface{}) stream.ToolCall {
	data, err := json.Marshal(input)
	if err != nil {
		panic(err)
	}
	return stream.ToolCall{ID: id, Name: name, Input: data}
}

// Fail is a turn whose Stream call returns err.
func Fail(err error) Turn {
	return Turn{Err: err}
}

func finish(reason string) stream.Finish {
	return stream.Finish{Reason: reason, Usage: message.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}
}
