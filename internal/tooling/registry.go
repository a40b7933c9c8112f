package tooling

import (
	"encoding/json"
	"fmt"

	"titanflow/internal/domain"
)

// ToolRegistry holds SchemaTool implementations keyed by name, remembering
// registration order so engines always see tools in the same sequence.
type ToolRegistry struct {
	tools map[string]SchemaTool
	order []string
}

// NewToolRegistry returns an empty, ready-to-use registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]SchemaTool)}
}

// Register adds a tool. Returns an error if the tool is nil or a tool with the
// same name is already registered.
func (r *ToolRegistry) Register(tool SchemaTool) error {
	if tool == nil {
		return fmt.Errorf("tool must not be nil")
	}
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns the tool with the given name or an error if not found.
func (r *ToolRegistry) Get(name string) (SchemaTool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %q", name)
	}
	return tool, nil
}

// List returns all registered tools in registration order.
func (r *ToolRegistry) List() []SchemaTool {
	out := make([]SchemaTool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Definitions returns domain.ToolDefinition for every registered tool,
// suitable for passing to a function-calling API.
func (r *ToolRegistry) Definitions() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, 0, len(r.order))
	for _, t := range r.List() {
		out = append(out, domain.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: json.RawMessage(t.Definition()),
		})
	}
	return out
}
