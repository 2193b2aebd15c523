package tool

import (
	"context"
	"fmt"
	"strings"
)

// Func executes a tool with a single string input and returns its string
// result. This is the only capability signature the agent dispatches.
type Func func(ctx context.Context, input string) (string, error)

// Tool is a named capability the agent can choose instead of responding.
type Tool struct {
	Name        string
	Description string
	Invoke      Func
}

// Registry holds the available tools. Iteration order is insertion order:
// built-ins first, then directory-discovered extensions. Registering an
// existing name replaces the entry in place (last write wins).
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register inserts or overwrites a tool by name.
func (r *Registry) Register(name, description string, fn Func) error {
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &Tool{Name: name, Description: description, Invoke: fn}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names in insertion order.
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptions renders the "name: description" table used verbatim in
// completion prompts.
func (r *Registry) Descriptions() string {
	lines := make([]string, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		lines = append(lines, fmt.Sprintf("%s: %s", t.Name, t.Description))
	}
	return strings.Join(lines, "\n")
}
