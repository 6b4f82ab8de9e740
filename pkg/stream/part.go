package stream

import (
	"encoding/json"

	"github.com/harun/colloquy/pkg/message"
)

// PartType tags a raw output part.
type PartType string

const (
	PartTextStart        PartType = "text-start"
	PartTextDelta        PartType = "text-delta"
	PartTextEnd          PartType = "text-end"
	PartReasoningStart   PartType = "reasoning-start"
	PartReasoningDelta   PartType = "reasoning-delta"
	PartReasoningEnd     PartType = "reasoning-end"
	PartToolCall         PartType = "tool-call"
	PartResponseMetadata PartType = "response-metadata"
	PartFinish           PartType = "finish"
	PartRaw              PartType = "raw"
)

// Part is one fragment of model output. The set of implementations is closed.
type Part interface {
	Type() PartType
	isPart()
}

type TextStart struct{}

type TextDelta struct {
	Delta string
}

type TextEnd struct{}

type ReasoningStart struct{}

type ReasoningDelta struct {
	Delta string
}

type ReasoningEnd struct {
	Signature string
}

// ToolCall is a complete tool invocation. Providers that stream arguments
// assemble them before producing this part.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

type ResponseMetadata struct {
	Model string
}

type Finish struct {
	Reason string
	Usage  message.Usage
}

// Raw carries provider events with no mapping. Consumers only report them to hooks.
type Raw struct {
	Event string
	Data  json.RawMessage
}

func (TextStart) Type() PartType        { return PartTextStart }
func (TextDelta) Type() PartType        { return PartTextDelta }
func (TextEnd) Type() PartType          { return PartTextEnd }
func (ReasoningStart) Type() PartType   { return PartReasoningStart }
func (ReasoningDelta) Type() PartType   { return PartReasoningDelta }
func (ReasoningEnd) Type() PartType     { return PartReasoningEnd }
func (ToolCall) Type() PartType         { return PartToolCall }
func (ResponseMetadata) Type() PartType { return PartResponseMetadata }
func (Finish) Type() PartType           { return PartFinish }
func (Raw) Type() PartType              { return PartRaw }

func (TextStart) isPart()        {}
func (TextDelta) isPart()        {}
func (TextEnd) isPart()          {}
func (ReasoningStart) isPart()   {}
func (ReasoningDelta) isPart()   {}
func (ReasoningEnd) isPart()     {}
func (ToolCall) isPart()         {}
func (ResponseMetadata) isPart() {}
func (Finish) isPart()           {}
func (Raw) isPart()              {}
