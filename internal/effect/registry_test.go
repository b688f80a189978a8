package effect

import (
	"fmt"
	"testing"
)

func noopRender(View, *Values, uint64, bool, []byte) {}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(Info{ID: "", Render: noopRender}); err == nil {
		t.Fatal("empty id should be rejected")
	}
	if err := r.Register(Info{ID: "x"}); err == nil {
		t.Fatal("nil render should be rejected")
	}
	if err := r.Register(Info{ID: "x", Render: noopRender, ScratchBytes: ScratchSize + 1}); err == nil {
		t.Fatal("scratch over budget should be rejected")
	}

	if err := r.Register(Info{ID: "x", Render: noopRender}); err != nil {
		t.Fatalf("valid registration failed: %v", err)
	}
	if err := r.Register(Info{ID: "x", Render: noopRender}); err == nil {
		t.Fatal("duplicate id should be rejected")
	}
}

func TestRegistryFull(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxEffects; i++ {
		if err := r.Register(Info{ID: fmt.Sprintf("fx%d", i), Render: noopRender}); err != nil {
			t.Fatalf("registration %d failed: %v", i, err)
		}
	}
	if err := r.Register(Info{ID: "overflow", Render: noopRender}); err == nil {
		t.Fatal("registry past capacity should reject")
	}
	if r.Len() != MaxEffects {
		t.Fatalf("Len = %d, want %d", r.Len(), MaxEffects)
	}
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("builtins failed to register: %v", err)
	}
	for _, id := range []string{"solid", "rainbow", "fire", "comet", "twinkle"} {
		if _, ok := r.Find(id); !ok {
			t.Fatalf("builtin %q missing", id)
		}
	}
	// every builtin must fit the per-segment scratch budget
	for _, info := range r.List() {
		if info.ScratchBytes > ScratchSize {
			t.Fatalf("effect %q declares scratch %d over budget", info.ID, info.ScratchBytes)
		}
	}
}
