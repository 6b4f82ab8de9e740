package model

import (
	"context"
	"strings"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/stream"
)

// Echo replies with the text of the last user message. It needs no network
// access and never calls tools.
type Echo struct{}

func (Echo) Provider() string {
	return ProviderEcho
}

func (Echo) Stream(ctx context.Context, req Request) (stream.Source, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role() == message.RoleUser {
			last = req.Messages[i].Text()
			break
		}
	}
	reply := strings.TrimSpace(last)
	usage := message.Usage{
		InputTokens:  int64(len(last)+3) / 4,
		OutputTokens: int64(len(reply)+3) / 4,
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return stream.FromParts(
		stream.ResponseMetadata{Model: ProviderEcho},
		stream.TextStart{},
		stream.TextDelta{Delta: reply},
		stream.TextEnd{},
		stream.Finish{Reason: "stop", Usage: usage},
	), nil
}
