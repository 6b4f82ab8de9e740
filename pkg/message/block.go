package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the tag of a content block.
type Kind string

const (
	KindText       Kind = "text"
	KindAnchor     Kind = "anchor"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindReasoning  Kind = "reasoning"
	KindStatus     Kind = "status"
	KindSuggestion Kind = "suggestion"
	KindProposal   Kind = "proposal"
	KindSelect     Kind = "select"
	KindToolkit    Kind = "toolkit"
	KindSummary    Kind = "summary"
	KindStats      Kind = "stats"
)

// Block is a content block. The set of implementations is closed.
type Block interface {
	Kind() Kind
	isBlock()
}

// Disposition marks text blocks generated by the orchestrator itself.
type Disposition string

// DispositionArtifactUpdate marks the artifact freshness summary.
const DispositionArtifactUpdate Disposition = "artifact-update"

// ObjectVersion is an opaque version of an external artifact.
type ObjectVersion string

// Equal reports whether two versions denote the same content.
func (v ObjectVersion) Equal(other ObjectVersion) bool {
	return v == other
}

// TextBlock is plain model or user text.
type TextBlock struct {
	Text        string      `json:"text"`
	Pending     bool        `json:"pending,omitempty"`
	Disposition Disposition `json:"disposition,omitempty"`
}

// AnchorBlock pins that the model has seen an artifact at a version.
type AnchorBlock struct {
	ObjectID string        `json:"objectId"`
	Version  ObjectVersion `json:"version"`
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ToolCallID string          `json:"toolCallId"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// Params decodes the tool input into a parameter map.
func (b ToolUseBlock) Params() (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if len(b.Input) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(b.Input, &params); err != nil {
		return nil, fmt.Errorf("decode input for tool %s: %w", b.Name, err)
	}
	return params, nil
}

// ToolResultBlock carries either the output or the error of one tool call.
type ToolResultBlock struct {
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failed reports whether the call produced an error.
func (b ToolResultBlock) Failed() bool {
	return b.Error != ""
}

// ReasoningBlock is model chain of thought.
type ReasoningBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

// StatusBlock is a transient progress line emitted by the model.
type StatusBlock struct {
	Text    string `json:"text"`
	Pending bool   `json:"pending,omitempty"`
}

// SuggestionBlock is a follow-up prompt the model proposes to the user.
type SuggestionBlock struct {
	Text    string `json:"text"`
	Pending bool   `json:"pending,omitempty"`
}

// ProposalBlock is a proposed change awaiting user confirmation.
type ProposalBlock struct {
	Text    string `json:"text"`
	Pending bool   `json:"pending,omitempty"`
}

// SelectBlock offers the user a choice between options.
type SelectBlock struct {
	Options []string `json:"options"`
	Pending bool     `json:"pending,omitempty"`
}

// ToolkitBlock asks the client to display the available tools.
type ToolkitBlock struct{}

// SummaryBlock replaces all earlier history when building the prompt context.
type SummaryBlock struct {
	Text string `json:"text"`
}

// Usage counts model tokens.
type Usage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// StatsBlock summarizes one model response.
type StatsBlock struct {
	Model        string        `json:"model,omitempty"`
	FinishReason string        `json:"finishReason,omitempty"`
	Usage        Usage         `json:"usage"`
	ToolCalls    int           `json:"toolCalls"`
	Duration     time.Duration `json:"duration"`
}

func (TextBlock) Kind() Kind       { return KindText }
func (AnchorBlock) Kind() Kind     { return KindAnchor }
func (ToolUseBlock) Kind() Kind    { return KindToolUse }
func (ToolResultBlock) Kind() Kind { return KindToolResult }
func (ReasoningBlock) Kind() Kind  { return KindReasoning }
func (StatusBlock) Kind() Kind     { return KindStatus }
func (SuggestionBlock) Kind() Kind { return KindSuggestion }
func (ProposalBlock) Kind() Kind   { return KindProposal }
func (SelectBlock) Kind() Kind     { return KindSelect }
func (ToolkitBlock) Kind() Kind    { return KindToolkit }
func (SummaryBlock) Kind() Kind    { return KindSummary }
func (StatsBlock) Kind() Kind      { return KindStats }

func (TextBlock) isBlock()       {}
func (AnchorBlock) isBlock()     {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}
func (ReasoningBlock) isBlock()  {}
func (StatusBlock) isBlock()     {}
func (SuggestionBlock) isBlock() {}
func (ProposalBlock) isBlock()   {}
func (SelectBlock) isBlock()     {}
func (ToolkitBlock) isBlock()    {}
func (SummaryBlock) isBlock()    {}
func (StatsBlock) isBlock()      {}

// IsPending reports whether b is a partial emission.
func IsPending(b Block) bool {
	switch v := b.(type) {
	case TextBlock:
		return v.Pending
	case ReasoningBlock:
		return v.Pending
	case StatusBlock:
		return v.Pending
	case SuggestionBlock:
		return v.Pending
	case ProposalBlock:
		return v.Pending
	case SelectBlock:
		return v.Pending
	default:
		return false
	}
}

// WithPending returns a copy of b with its pending flag set. Blocks without
// a pending flag are returned unchanged.
func WithPending(b Block, pending bool) Block {
	switch v := b.(type) {
	case TextBlock:
		v.Pending = pending
		return v
	case ReasoningBlock:
		v.Pending = pending
		return v
	case StatusBlock:
		v.Pending = pending
		return v
	case SuggestionBlock:
		v.Pending = pending
		return v
	case ProposalBlock:
		v.Pending = pending
		return v
	case SelectBlock:
		v.Options = append([]string(nil), v.Options...)
		v.Pending = pending
		return v
	default:
		return b
	}
}
