package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MarshalBlock encodes a block as a JSON object tagged with its kind.
func MarshalBlock(b Block) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("cannot marshal nil block")
	}
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal %s block: %w", b.Kind(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(b.Kind())
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalBlock decodes a block produced by MarshalBlock.
func UnmarshalBlock(data []byte) (Block, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode block type: %w", err)
	}

	var (
		b   Block
		err error
	)
	switch head.Type {
	case KindText:
		b, err = decodeAs[TextBlock](data)
	case KindAnchor:
		b, err = decodeAs[AnchorBlock](data)
	case KindToolUse:
		b, err = decodeAs[ToolUseBlock](data)
	case KindToolResult:
		b, err = decodeAs[ToolResultBlock](data)
	case KindReasoning:
		b, err = decodeAs[ReasoningBlock](data)
	case KindStatus:
		b, err = decodeAs[StatusBlock](data)
	case KindSuggestion:
		b, err = decodeAs[SuggestionBlock](data)
	case KindProposal:
		b, err = decodeAs[ProposalBlock](data)
	case KindSelect:
		b, err = decodeAs[SelectBlock](data)
	case KindToolkit:
		b = ToolkitBlock{}
	case KindSummary:
		b, err = decodeAs[SummaryBlock](data)
	case KindStats:
		b, err = decodeAs[StatsBlock](data)
	default:
		return nil, fmt.Errorf("unknown block type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s block: %w", head.Type, err)
	}
	return b, nil
}

func decodeAs[T Block](data []byte) (Block, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type wireMessage struct {
	ID      string            `json:"id"`
	Created time.Time         `json:"created"`
	Sender  Sender            `json:"sender"`
	Blocks  []json.RawMessage `json:"blocks"`
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:      m.ID,
		Created: m.Created,
		Sender:  m.Sender,
		Blocks:  make([]json.RawMessage, 0, len(m.Blocks)),
	}
	for _, b := range m.Blocks {
		data, err := MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		w.Blocks = append(w.Blocks, data)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	blocks := make([]Block, 0, len(w.Blocks))
	for i, raw := range w.Blocks {
		b, err := UnmarshalBlock(raw)
		if err != nil {
			return fmt.Errorf("message %s block %d: %w", w.ID, i, err)
		}
		blocks = append(blocks, b)
	}
	*m = Message{ID: w.ID, Created: w.Created, Sender: w.Sender, Blocks: blocks}
	return nil
}
