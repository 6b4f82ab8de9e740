package blueprint

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InputKind selects where a template input takes its value from.
type InputKind string

const (
	// InputValue uses the declared default.
	InputValue InputKind = "value"
	// InputPassThrough uses the variable of the same name supplied to the loader.
	InputPassThrough InputKind = "pass-through"
	// InputFunction calls the named loader function.
	InputFunction InputKind = "function"
)

// Input is a named template variable.
type Input struct {
	Name     string      `yaml:"name" json:"name"`
	Kind     InputKind   `yaml:"kind" json:"kind"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Function string      `yaml:"function,omitempty" json:"function,omitempty"`
}

// Template holds either inline text or a Database source reference.
type Template struct {
	Source string  `yaml:"source,omitempty" json:"source,omitempty"`
	Text   string  `yaml:"text,omitempty" json:"text,omitempty"`
	Inputs []Input `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// Blueprint is a storable instruction template.
type Blueprint struct {
	Key          string   `yaml:"key" json:"key"`
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Instructions Template `yaml:"instructions" json:"instructions"`
	Tools        []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// Validate checks the blueprint for missing fields and bad inputs.
func (b Blueprint) Validate() error {
	if b.Key == "" {
		return fmt.Errorf("blueprint key cannot be empty")
	}
	if b.Name == "" {
		return fmt.Errorf("blueprint %s: name cannot be empty", b.Key)
	}
	if b.Instructions.Source == "" && b.Instructions.Text == "" {
		return fmt.Errorf("blueprint %s: instructions need a source or text", b.Key)
	}
	seen := make(map[string]bool)
	for _, in := range b.Instructions.Inputs {
		if in.Name == "" {
			return fmt.Errorf("blueprint %s: input name cannot be empty", b.Key)
		}
		if seen[in.Name] {
			return fmt.Errorf("blueprint %s: duplicate input %s", b.Key, in.Name)
		}
		seen[in.Name] = true

		switch in.Kind {
		case "", InputValue, InputPassThrough:
		case InputFunction:
			if in.Function == "" {
				return fmt.Errorf("blueprint %s: input %s needs a function name", b.Key, in.Name)
			}
		default:
			return fmt.Errorf("blueprint %s: input %s has unknown kind %q", b.Key, in.Name, in.Kind)
		}
	}
	return nil
}

// Parse decodes a YAML blueprint document.
func Parse(data []byte) (Blueprint, error) {
	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return Blueprint{}, fmt.Errorf("failed to parse blueprint: %w", err)
	}
	if err := bp.Validate(); err != nil {
		return Blueprint{}, err
	}
	return bp, nil
}

// LoadFile reads and parses a YAML blueprint file.
func LoadFile(path string) (Blueprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blueprint{}, fmt.Errorf("failed to read blueprint file: %w", err)
	}
	bp, err := Parse(data)
	if err != nil {
		return Blueprint{}, fmt.Errorf("%s: %w", path, err)
	}
	return bp, nil
}

// Marshal encodes a blueprint as YAML.
func Marshal(bp Blueprint) ([]byte, error) {
	return yaml.Marshal(bp)
}
