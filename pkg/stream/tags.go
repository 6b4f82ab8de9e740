package stream

import (
	"strings"

	"github.com/harun/colloquy/pkg/message"
)

const maxTagLen = 64

var frameTags = map[string]bool{
	"cot":        true,
	"think":      true,
	"status":     true,
	"suggestion": true,
	"proposal":   true,
	"select":     true,
	"toolkit":    true,
}

type tag struct {
	name        string
	closing     bool
	selfClosing bool
}

// parseTag parses "<name attr=...>", "</name>" or "<name/>".
func parseTag(s string) (tag, bool) {
	inner := s[1 : len(s)-1]
	var t tag
	if strings.HasPrefix(inner, "/") {
		t.closing = true
		inner = inner[1:]
	}
	if strings.HasSuffix(inner, "/") {
		t.selfClosing = true
		inner = inner[:len(inner)-1]
	}
	if t.closing && t.selfClosing {
		return tag{}, false
	}
	name := inner
	if i := strings.IndexAny(inner, " \t"); i >= 0 {
		name = inner[:i]
	}
	if name == "" || !isNameStart(name[0]) {
		return tag{}, false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isNameStart(c) && !(c >= '0' && c <= '9') && c != '-' && c != '_' {
			return tag{}, false
		}
	}
	t.name = strings.ToLower(name)
	return t, true
}

func isNameStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// plausibleTag reports whether an unterminated "<..." may still become a tag.
func plausibleTag(s string) bool {
	return len(s) <= maxTagLen && !strings.ContainsAny(s[1:], "<\n")
}

type frame struct {
	tag     string
	content strings.Builder
	options []string
	option  *strings.Builder
}

func (f *frame) block(pending bool) message.Block {
	text := strings.TrimSpace(f.content.String())
	switch f.tag {
	case "cot", "think":
		return message.ReasoningBlock{Text: text, Pending: pending}
	case "status":
		return message.StatusBlock{Text: text, Pending: pending}
	case "suggestion":
		return message.SuggestionBlock{Text: text, Pending: pending}
	case "proposal":
		return message.ProposalBlock{Text: text, Pending: pending}
	case "select":
		return message.SelectBlock{Options: append([]string(nil), f.options...), Pending: pending}
	default:
		return message.ToolkitBlock{}
	}
}

// textParser splits streamed text into plain text and tagged blocks.
type textParser struct {
	raw          string
	plain        strings.Builder
	plainEmitted bool
	frame        *frame
}

// write consumes a delta and returns final blocks completed by it followed by
// a pending snapshot of the block in progress.
func (p *textParser) write(delta string) []message.Block {
	p.raw += delta
	var out []message.Block

	for p.raw != "" {
		i := strings.IndexByte(p.raw, '<')
		if i < 0 {
			p.appendText(p.raw)
			p.raw = ""
			break
		}
		if i > 0 {
			p.appendText(p.raw[:i])
			p.raw = p.raw[i:]
		}

		j := strings.IndexByte(p.raw, '>')
		if j < 0 {
			if plausibleTag(p.raw) {
				break
			}
			p.appendText("<")
			p.raw = p.raw[1:]
			continue
		}

		t, ok := parseTag(p.raw[:j+1])
		if !ok || !p.accepts(t) {
			p.appendText("<")
			p.raw = p.raw[1:]
			continue
		}
		p.raw = p.raw[j+1:]
		out = append(out, p.apply(t)...)
	}

	if snap := p.snapshot(); snap != nil {
		out = append(out, snap)
	}
	return out
}

// flush finalizes everything in progress, treating an unterminated tag as text.
func (p *textParser) flush() []message.Block {
	if p.raw != "" {
		p.appendText(p.raw)
		p.raw = ""
	}
	var out []message.Block
	if p.frame != nil {
		out = append(out, p.frame.block(false))
		p.frame = nil
	}
	if b := p.flushPlain(); b != nil {
		out = append(out, b)
	}
	return out
}

func (p *textParser) accepts(t tag) bool {
	switch {
	case p.frame == nil:
		return !t.closing && frameTags[t.name]
	case p.frame.tag == "select":
		return t.name == "option" || (t.closing && t.name == "select")
	default:
		return t.closing && t.name == p.frame.tag
	}
}

func (p *textParser) apply(t tag) []message.Block {
	if p.frame == nil {
		var out []message.Block
		if b := p.flushPlain(); b != nil {
			out = append(out, b)
		}
		if t.selfClosing {
			if t.name == "toolkit" {
				out = append(out, message.ToolkitBlock{})
			}
			return out
		}
		p.frame = &frame{tag: t.name}
		return out
	}

	if p.frame.tag == "select" && t.name == "option" {
		switch {
		case t.closing:
			if p.frame.option != nil {
				p.frame.options = append(p.frame.options, strings.TrimSpace(p.frame.option.String()))
				p.frame.option = nil
			}
		case !t.selfClosing:
			p.frame.option = &strings.Builder{}
		}
		return nil
	}

	b := p.frame.block(false)
	p.frame = nil
	return []message.Block{b}
}

func (p *textParser) appendText(s string) {
	switch {
	case p.frame == nil:
		p.plain.WriteString(s)
	case p.frame.tag == "select":
		if p.frame.option != nil {
			p.frame.option.WriteString(s)
		}
	default:
		p.frame.content.WriteString(s)
	}
}

func (p *textParser) snapshot() message.Block {
	if p.frame != nil {
		if p.frame.tag == "toolkit" {
			return nil
		}
		return p.frame.block(true)
	}
	if strings.TrimSpace(p.plain.String()) == "" {
		return nil
	}
	p.plainEmitted = true
	return message.TextBlock{Text: p.plain.String(), Pending: true}
}

func (p *textParser) flushPlain() message.Block {
	text := p.plain.String()
	p.plain.Reset()
	emitted := p.plainEmitted
	p.plainEmitted = false
	if strings.TrimSpace(text) == "" && !emitted {
		return nil
	}
	return message.TextBlock{Text: text}
}
