package domain

import (
	"context"
	"fmt"
)

// ToolHandler executes an agent-requested function with already-parsed
// arguments. Handlers may perform I/O and must honor ctx cancellation.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// ToolSchema is the function declaration advertised to the agent.
type ToolSchema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool binds a schema to its local handler.
type Tool struct {
	Schema  ToolSchema
	Handler ToolHandler
}

// ToolRegistry maps tool names to handlers. It is built once at session
// start and read-only afterwards.
type ToolRegistry struct {
	byName map[string]Tool
}

func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.Schema.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, ok := r.byName[t.Schema.Name]; ok {
			return nil, fmt.Errorf("duplicate tool %q", t.Schema.Name)
		}
		if t.Schema.Type == "" {
			t.Schema.Type = "function"
		}
		r.byName[t.Schema.Name] = t
	}
	return r, nil
}

func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *ToolRegistry) Schemas() []ToolSchema {
	out := make([]ToolSchema, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t.Schema)
	}
	return out
}

func (r *ToolRegistry) Len() int { return len(r.byName) }
