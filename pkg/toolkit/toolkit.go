package toolkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Parameter describes one tool parameter.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler runs a tool.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Tool is a named handler with its parameter contract.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	// InputSchema replaces the schema generated from Parameters when set.
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
	Handler     Handler                `json:"-"`
}

// Spec is what a model service needs to advertise a tool.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// NotFoundError is returned for calls to tools the toolkit does not have.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

type entry struct {
	tool   Tool
	schema map[string]interface{}
	valid  *gojsonschema.Schema
}

// Toolkit is a named collection of tools, kept in registration order.
type Toolkit struct {
	mu    sync.RWMutex
	tools map[string]*entry
	order []string
}

// New creates a toolkit from tools.
func New(tools ...Tool) (*Toolkit, error) {
	tk := &Toolkit{tools: make(map[string]*entry)}
	for _, tool := range tools {
		if err := tk.Register(tool); err != nil {
			return nil, err
		}
	}
	return tk, nil
}

// Register adds a tool, replacing any tool of the same name.
func (tk *Toolkit) Register(tool Tool) error {
	if err := validateTool(tool); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema := tool.InputSchema
	if schema == nil {
		schema = generateSchema(tool.Parameters)
	}
	valid, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", tool.Name, err)
	}

	tk.mu.Lock()
	defer tk.mu.Unlock()
	if _, exists := tk.tools[tool.Name]; !exists {
		tk.order = append(tk.order, tool.Name)
	}
	tk.tools[tool.Name] = &entry{tool: tool, schema: schema, valid: valid}
	return nil
}

// Get returns the tool with the given name.
func (tk *Toolkit) Get(name string) (Tool, bool) {
	if tk == nil {
		return Tool{}, false
	}
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	e, ok := tk.tools[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Names returns tool names in registration order.
func (tk *Toolkit) Names() []string {
	if tk == nil {
		return nil
	}
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	return append([]string(nil), tk.order...)
}

// Len returns the number of tools.
func (tk *Toolkit) Len() int {
	if tk == nil {
		return 0
	}
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	return len(tk.tools)
}

// Specs describes the tools for a model service, in registration order.
func (tk *Toolkit) Specs() []Spec {
	if tk == nil {
		return nil
	}
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	specs := make([]Spec, 0, len(tk.order))
	for _, name := range tk.order {
		e := tk.tools[name]
		specs = append(specs, Spec{Name: name, Description: e.tool.Description, InputSchema: e.schema})
	}
	return specs
}

// Merge returns a new toolkit holding the tools of tk followed by those of
// other. Tools in other win on name clashes.
func (tk *Toolkit) Merge(other *Toolkit) (*Toolkit, error) {
	merged, _ := New()
	for _, src := range []*Toolkit{tk, other} {
		if src == nil {
			continue
		}
		for _, name := range src.Names() {
			tool, _ := src.Get(name)
			if err := merged.Register(tool); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

func (tk *Toolkit) lookup(name string) (*entry, bool) {
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	e, ok := tk.tools[name]
	return e, ok
}

func validateTool(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range tool.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}
	return nil
}

func generateSchema(params []Parameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}
	for _, param := range params {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
