package blueprint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// ErrSourceNotFound is returned by a Database that has no such source.
var ErrSourceNotFound = errors.New("template source not found")

// Database resolves template source references to text.
type Database interface {
	LoadSource(ctx context.Context, ref string) (string, error)
}

// Databases tries each Database in order until one has the source.
type Databases []Database

// LoadSource implements Database.
func (dbs Databases) LoadSource(ctx context.Context, ref string) (string, error) {
	for _, db := range dbs {
		if db == nil {
			continue
		}
		text, err := db.LoadSource(ctx, ref)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrSourceNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
}

// Function produces the value of a function input.
type Function func(ctx context.Context) (interface{}, error)

// Loader resolves and renders blueprint instructions.
type Loader struct {
	db        Database
	functions map[string]Function
	variables map[string]interface{}
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFunction registers a function input provider.
func WithFunction(name string, fn Function) LoaderOption {
	return func(l *Loader) {
		l.functions[name] = fn
	}
}

// WithVariables supplies values for pass-through inputs.
func WithVariables(vars map[string]interface{}) LoaderOption {
	return func(l *Loader) {
		for k, v := range vars {
			l.variables[k] = v
		}
	}
}

// NewLoader creates a loader. db may be nil when every blueprint is inline.
func NewLoader(db Database, opts ...LoaderOption) *Loader {
	l := &Loader{
		db:        db,
		functions: make(map[string]Function),
		variables: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Source returns the raw instruction text of a blueprint.
func (l *Loader) Source(ctx context.Context, bp Blueprint) (string, error) {
	if bp.Instructions.Text != "" {
		return bp.Instructions.Text, nil
	}
	if l.db == nil {
		return "", fmt.Errorf("blueprint %s: no database to resolve source %q", bp.Key, bp.Instructions.Source)
	}
	text, err := l.db.LoadSource(ctx, bp.Instructions.Source)
	if err != nil {
		return "", fmt.Errorf("blueprint %s: load source %q: %w", bp.Key, bp.Instructions.Source, err)
	}
	return text, nil
}

// Render resolves the blueprint source and executes it against its inputs.
func (l *Loader) Render(ctx context.Context, bp Blueprint) (string, error) {
	source, err := l.Source(ctx, bp)
	if err != nil {
		return "", err
	}

	data, err := l.inputs(ctx, bp)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(bp.Key).Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("blueprint %s: parse template: %w", bp.Key, err)
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("blueprint %s: render template: %w", bp.Key, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (l *Loader) inputs(ctx context.Context, bp Blueprint) (map[string]interface{}, error) {
	data := make(map[string]interface{}, len(bp.Instructions.Inputs))
	for _, in := range bp.Instructions.Inputs {
		switch in.Kind {
		case "", InputValue:
			data[in.Name] = in.Default
		case InputPassThrough:
			v, ok := l.variables[in.Name]
			if !ok {
				v = in.Default
			}
			data[in.Name] = v
		case InputFunction:
			fn, ok := l.functions[in.Function]
			if !ok {
				return nil, fmt.Errorf("blueprint %s: unknown function %q for input %s", bp.Key, in.Function, in.Name)
			}
			v, err := fn(ctx)
			if err != nil {
				return nil, fmt.Errorf("blueprint %s: input %s: %w", bp.Key, in.Name, err)
			}
			data[in.Name] = v
		default:
			return nil, fmt.Errorf("blueprint %s: input %s has unknown kind %q", bp.Key, in.Name, in.Kind)
		}
	}
	return data, nil
}
