package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harun/colloquy/pkg/message"
)

var (
	// ErrNoToolkit is returned when the model requests tools but the run has no toolkit.
	ErrNoToolkit = errors.New("model requested tool calls but no toolkit was provided")

	// ErrMaxIterations is returned when Config.MaxIterations is set and exceeded.
	ErrMaxIterations = errors.New("maximum tool-call iterations exceeded")

	// ErrNoResult is returned by RunStructured when the model stops without submitting a result.
	ErrNoResult = errors.New("model finished without submitting a result")
)

// ModelError wraps failures of the model service.
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("AI service error: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Overloaded reports whether the provider rejected the request for lack of capacity.
func (e *ModelError) Overloaded() bool {
	if e.Err == nil {
		return false
	}
	msg := e.Err.Error()
	return strings.Contains(msg, "Overloaded") || strings.Contains(msg, "529")
}

// RunError is returned by a failed Run. Pending holds the messages submitted
// before the failure.
type RunError struct {
	Pending []message.Message
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("session run failed: %v", e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
