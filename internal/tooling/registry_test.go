package tooling

import (
	"context"
	"encoding/json"
	"testing"
)

// =============================================================================
// stubSchemaTool — minimal SchemaTool for registry tests
// =============================================================================

type stubSchemaTool struct {
	name string
	desc string
	def  string
}

func (s *stubSchemaTool) Name() string        { return s.name }
func (s *stubSchemaTool) Description() string { return s.desc }
func (s *stubSchemaTool) Definition() string  { return s.def }
func (s *stubSchemaTool) Call(context.Context, json.RawMessage) (string, error) {
	return "stub-ok", nil
}

func newStub(name, desc string) *stubSchemaTool {
	return &stubSchemaTool{
		name: name,
		desc: desc,
		def:  `{"type":"object","properties":{"x":{"type":"number"}},"required":["x"]}`,
	}
}

// =============================================================================
// ToolRegistry Tests
// =============================================================================

func TestNewToolRegistry_ShouldReturnEmptyRegistry(t *testing.T) {
	reg := NewToolRegistry()
	if len(reg.List()) != 0 {
		t.Errorf("Expected empty tool list, got %d", len(reg.List()))
	}
}

func TestToolRegistry_Register_ShouldRejectDuplicateName(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(newStub("echo", "Echo v1")); err != nil {
		t.Fatalf("First register should succeed: %v", err)
	}
	if err := reg.Register(newStub("echo", "Echo v2")); err == nil {
		t.Error("Expected error when registering duplicate tool name")
	}
}

func TestToolRegistry_Register_ShouldRejectNilTool(t *testing.T) {
	reg := NewToolRegistry()
	if err := reg.Register(nil); err == nil {
		t.Error("Expected error when registering nil tool")
	}
}

func TestToolRegistry_Get_WhenUnknown_ShouldReturnError(t *testing.T) {
	reg := NewToolRegistry()
	if _, err := reg.Get("missing"); err == nil {
		t.Error("Expected error for unknown tool")
	}
}

func TestToolRegistry_List_ShouldKeepRegistrationOrder(t *testing.T) {
	// Given: tools registered in a non-alphabetical order
	reg := NewToolRegistry()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(newStub(n, n)); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}

	// When: listing definitions
	defs := reg.Definitions()

	// Then: order matches registration
	want := []string{"zeta", "alpha", "mid"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("definition %d: want %q, got %q", i, want[i], d.Name)
		}
		if !json.Valid(d.InputSchema) {
			t.Errorf("definition %q has invalid schema JSON", d.Name)
		}
	}
}
