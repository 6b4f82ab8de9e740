package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/colloquy/pkg/artifact"
	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/harun/colloquy/pkg/message"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	blueprintsHeader = "## Blueprints\n\nThe following blueprints are active. Follow their instructions."
	objectsHeader    = "## Context\n\nThe following objects are in the current context:"
)

// ContextObject is an external object the conversation refers to.
type ContextObject struct {
	ID       string `json:"id"`
	Typename string `json:"typename"`
}

// TemplateLoader renders a blueprint's instructions.
type TemplateLoader interface {
	Render(ctx context.Context, bp blueprint.Blueprint) (string, error)
}

// FormatterConfig configures a Formatter.
type FormatterConfig struct {
	// Loader renders blueprints. Required only when blueprints are used.
	Loader TemplateLoader
	// Resolver enables artifact freshness tracking. Optional.
	Resolver artifact.Resolver
	Logger   *zerolog.Logger
}

// Formatter builds system and user prompts.
type Formatter struct {
	loader   TemplateLoader
	resolver artifact.Resolver
	logger   zerolog.Logger
}

// NewFormatter creates a formatter.
func NewFormatter(cfg FormatterConfig) *Formatter {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Formatter{
		loader:   cfg.Loader,
		resolver: cfg.Resolver,
		logger:   logger,
	}
}

// FormatSystemPrompt joins the system text, the blueprint section and the
// context-object section with blank lines, skipping empty sections.
func (f *Formatter) FormatSystemPrompt(ctx context.Context, system string, blueprints []blueprint.Blueprint, objects []ContextObject) (string, error) {
	sections := []string{strings.TrimSpace(system)}

	if len(blueprints) > 0 {
		if f.loader == nil {
			return "", fmt.Errorf("format system prompt: no template loader for %d blueprints", len(blueprints))
		}
		parts := []string{blueprintsHeader}
		for _, bp := range blueprints {
			text, err := f.loader.Render(ctx, bp)
			if err != nil {
				return "", fmt.Errorf("format system prompt: %w", err)
			}
			parts = append(parts, "<blueprint>\n"+text+"\n</blueprint>")
		}
		sections = append(sections, strings.Join(parts, "\n\n"))
	}

	if len(objects) > 0 {
		lines := []string{objectsHeader}
		for _, obj := range objects {
			lines = append(lines, fmt.Sprintf("<object id=%q typename=%q />", obj.ID, obj.Typename))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	nonEmpty := sections[:0]
	for _, s := range sections {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return strings.Join(nonEmpty, "\n\n"), nil
}

// FormatUserPrompt builds the user message for prompt. Artifacts anchored in
// history whose version changed get a fresh anchor and a diff summary ahead of
// the prompt text.
func (f *Formatter) FormatUserPrompt(ctx context.Context, prompt string, history []message.Message) (message.Message, error) {
	refs := artifact.GatherVersions(history)
	changes, err := artifact.Changes(ctx, f.resolver, refs)
	if err != nil {
		return message.Message{}, fmt.Errorf("format user prompt: %w", err)
	}
	if len(changes) > 0 {
		f.logger.Debug().
			Int("anchored", len(refs)).
			Int("changed", len(changes)).
			Msg("Artifacts changed since last message")
	}

	blocks := artifact.Prelude(changes)
	blocks = append(blocks, message.TextBlock{Text: prompt})
	return message.New(message.RoleUser, blocks...), nil
}
