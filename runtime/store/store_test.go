package store

import (
	"context"
	"testing"

	"github.com/appsemble/apprunner/runtime/remapper"
)

func TestVariables_GetNested(t *testing.T) {
	s := NewVariables(map[string]any{"filter": map[string]any{"status": "open"}})

	v, ok := s.Get("filter.status")
	if !ok || v != "open" {
		t.Errorf("Get(filter.status) = %v, %v; want open, true", v, ok)
	}

	v, ok = s.Get("filter")
	if !ok {
		t.Fatal("filter not found")
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("filter is %T, want map[string]any", v)
	}
	if m["status"] != "open" {
		t.Errorf("filter.status = %v, want open", m["status"])
	}
}

func TestVariables_Missing(t *testing.T) {
	s := NewVariables(map[string]any{"a": "scalar"})

	if _, ok := s.Get("nope"); ok {
		t.Error("Get(nope) reported a value")
	}
	if _, ok := s.Get("a.b"); ok {
		t.Error("Get(a.b) through a scalar reported a value")
	}
}

func TestVariables_StoresPlainValues(t *testing.T) {
	s := NewVariables(map[string]any{"user": remapper.NewObject().Set("name", "Ada")})

	v, _ := s.Get("user.name")
	if v != "Ada" {
		t.Errorf("Get(user.name) = %v, want Ada", v)
	}
}

func TestVariables_CopiesInitialValues(t *testing.T) {
	initial := map[string]any{"a": map[string]any{"b": 1.0}}
	s := NewVariables(initial)

	initial["a"].(map[string]any)["b"] = 99.0
	initial["c"] = 2.0

	if v, _ := s.Get("a.b"); v != 1.0 {
		t.Errorf("a.b = %v after the initial map changed, want 1", v)
	}
	if _, ok := s.Get("c"); ok {
		t.Error("c appeared after the initial map changed")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.Set(ctx, "k", []any{1.0}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v, %v", v, ok, err)
	}
	if items, _ := v.([]any); len(items) != 1 {
		t.Errorf("Get(k) = %v, want [1]", v)
	}

	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Error("k still present after Remove")
	}

	_ = m.Set(ctx, "a", 1)
	_ = m.Set(ctx, "b", 2)
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", m.Len())
	}
}
