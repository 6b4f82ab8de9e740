package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/toolkit"
)

// SubmitResultTool is the tool RunStructured adds for the model's answer.
const SubmitResultTool = "submit_result"

// RunStructured runs like Run but expects the model to finish by calling
// SubmitResultTool with input matching schema. The loop ends after the tool
// round in which the result is submitted. Invalid submissions are reported
// back to the model as tool errors.
func (s *Session) RunStructured(ctx context.Context, params RunParams, schema map[string]interface{}) (json.RawMessage, []message.Message, error) {
	var (
		mu     sync.Mutex
		result json.RawMessage
	)

	submit := toolkit.Tool{
		Name:        SubmitResultTool,
		Description: "Submit the final result of the task. Call it exactly once, after all other work is done.",
		InputSchema: schema,
		Handler: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			data, err := json.Marshal(input)
			if err != nil {
				return nil, err
			}
			mu.Lock()
			result = data
			mu.Unlock()
			return "Result submitted.", nil
		},
	}
	extra, err := toolkit.New(submit)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid result schema: %w", err)
	}
	params.Toolkit, err = params.Toolkit.Merge(extra)
	if err != nil {
		return nil, nil, err
	}

	submitted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return result != nil
	}
	pending, err := s.run(ctx, params, submitted)
	if err != nil {
		return nil, nil, err
	}
	if !submitted() {
		return nil, pending, ErrNoResult
	}
	return result, pending, nil
}
