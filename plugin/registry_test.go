package plugin

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/SylphxAI/reify/expr"
)

func constHandler(v any) EffectHandler {
	return func(_ context.Context, _ map[string]any, _ *expr.EvalContext) (any, error) {
		return v, nil
	}
}

func testPlugin(ns string, effects ...string) Plugin {
	p := Plugin{Namespace: ns, Effects: make(map[string]EffectHandler)}
	for _, e := range effects {
		p.Effects[e] = constHandler(ns + "." + e)
	}
	return p
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(testPlugin("entity", "create")); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	h, err := r.Lookup("entity.create")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	got, _ := h(context.Background(), nil, nil)
	if got != "entity.create" {
		t.Errorf("handler returned %v, want entity.create", got)
	}
}

func TestRegistryLookupCoreNamespace(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(testPlugin(CoreNamespace, "set"))

	h, err := r.Lookup("set")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	got, _ := h(context.Background(), nil, nil)
	if got != "core.set" {
		t.Errorf("handler returned %v, want core.set", got)
	}
}

func TestRegistryLookupSplitsOnFirstDot(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(testPlugin("db", "users.insert"))

	if _, err := r.Lookup("db.users.insert"); err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
}

func TestRegistryUnknownNamespace(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("missing.ns")
	if !errors.Is(err, ErrUnknownNamespace) {
		t.Fatalf("expected ErrUnknownNamespace, got %v", err)
	}
	var nsErr *UnknownNamespaceError
	if !errors.As(err, &nsErr) || nsErr.Namespace != "missing" {
		t.Errorf("expected UnknownNamespaceError for %q, got %v", "missing", err)
	}
	if errors.Is(err, ErrUnknownEffect) {
		t.Error("namespace error must not match ErrUnknownEffect")
	}
}

func TestRegistryUnknownEffect(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(testPlugin("entity", "create"))

	_, err := r.Lookup("entity.bogus")
	if !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("expected ErrUnknownEffect, got %v", err)
	}
	if !strings.Contains(err.Error(), "entity.bogus") {
		t.Errorf("expected error to name entity.bogus, got %q", err.Error())
	}
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(testPlugin("entity", "create", "update"))
	_ = r.Register(testPlugin("entity", "delete"))

	if _, err := r.Lookup("entity.create"); !errors.Is(err, ErrUnknownEffect) {
		t.Errorf("expected earlier handlers to be replaced, got %v", err)
	}
	if _, err := r.Lookup("entity.delete"); err != nil {
		t.Errorf("expected new handler, got %v", err)
	}
}

func TestRegistryUnregisterAndClear(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(testPlugin("b"))
	_ = r.Register(testPlugin("a"))
	_ = r.Register(testPlugin("c"))

	if got := r.Namespaces(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Namespaces = %v, want [a b c]", got)
	}
	if !r.Unregister("b") {
		t.Error("expected Unregister to report removal")
	}
	if r.Unregister("b") {
		t.Error("expected second Unregister to report nothing removed")
	}
	if got := r.Namespaces(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Namespaces = %v, want [a c]", got)
	}

	r.Clear()
	if got := r.Namespaces(); len(got) != 0 {
		t.Errorf("expected empty registry, got %v", got)
	}
}

func TestRegistryCopiesEffects(t *testing.T) {
	r := NewRegistry()
	p := testPlugin("entity", "create")
	_ = r.Register(p)
	p.Effects["late"] = constHandler(nil)

	if _, err := r.Lookup("entity.late"); !errors.Is(err, ErrUnknownEffect) {
		t.Errorf("expected registry to be isolated from caller map, got %v", err)
	}
}

func TestRegistryRegisterInvalid(t *testing.T) {
	r := NewRegistry()
	tests := []Plugin{
		{Namespace: ""},
		{Namespace: "a.b"},
		{Namespace: "ok", Effects: map[string]EffectHandler{"x": nil}},
	}
	for _, p := range tests {
		if err := r.Register(p); err == nil {
			t.Errorf("expected error registering %#v", p.Namespace)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register(testPlugin("ns", "e"))
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Lookup("ns.e")
			_ = r.Namespaces()
			if i%10 == 0 {
				r.Unregister("ns")
			}
		}()
	}
	wg.Wait()
}

func TestSplitEffect(t *testing.T) {
	tests := []struct{ in, ns, name string }{
		{"entity.create", "entity", "create"},
		{"set", CoreNamespace, "set"},
		{"a.b.c", "a", "b.c"},
	}
	for _, tt := range tests {
		ns, name := SplitEffect(tt.in)
		if ns != tt.ns || name != tt.name {
			t.Errorf("SplitEffect(%q) = (%q, %q), want (%q, %q)", tt.in, ns, name, tt.ns, tt.name)
		}
	}
}
