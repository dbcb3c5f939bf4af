package expr

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestContext(input, results map[string]any, opts ...Option) *EvalContext {
	return NewEvalContext(input, results, opts...)
}

func TestResolve_LiteralsObjectsArraysAreIdentity(t *testing.T) {
	raw := map[string]any{
		"s":    "hello",
		"n":    42.5,
		"b":    true,
		"null": nil,
		"list": []any{"a", 1.0, false, nil, map[string]any{"x": "y"}},
		"nested": map[string]any{
			"deep": map[string]any{"k": "v"},
			"$op":  "create",
		},
	}

	got, err := ResolveValue(raw, newTestContext(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, raw) {
		t.Errorf("expected identity transform\n got: %#v\nwant: %#v", got, raw)
	}
}

func TestResolve_InputRef(t *testing.T) {
	ctx := newTestContext(map[string]any{
		"a":     map[string]any{"b": "value", "n": 0.0},
		"items": []any{"first", map[string]any{"id": "second"}},
		"title": "Chat",
	}, nil)

	tests := []struct {
		path string
		want any
	}{
		{"title", "Chat"},
		{"a.b", "value"},
		{"a.n", 0.0},
		{"items.0", "first"},
		{"items.1.id", "second"},
	}
	for _, tt := range tests {
		got, err := ResolveValue(map[string]any{"$input": tt.path}, ctx)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.path, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestResolve_InputRefMissingSegments(t *testing.T) {
	ctx := newTestContext(map[string]any{
		"a":     map[string]any{"b": "value"},
		"items": []any{"only"},
	}, nil)

	for _, path := range []string{"missing", "a.c", "a.b.c", "items.5", "items.x", "a.b.0"} {
		got, err := ResolveValue(map[string]any{"$input": path}, ctx)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", path, err)
		}
		if !IsUndefined(got) {
			t.Errorf("%s: expected undefined, got %#v", path, got)
		}
	}
}

func TestResolve_ResultRefReadsResults(t *testing.T) {
	results := map[string]any{"x": map[string]any{"y": "from-results"}}
	ctx := newTestContext(map[string]any{"x": map[string]any{"y": "from-input"}}, results)

	got, err := ResolveValue(map[string]any{"$ref": "x.y"}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-results" {
		t.Errorf("expected from-results, got %v", got)
	}

	got, err = ResolveValue(map[string]any{"$ref": "nope.y"}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsUndefined(got) {
		t.Errorf("expected undefined for missing step, got %#v", got)
	}
}

func TestResolve_ResultRefSeesLaterWrites(t *testing.T) {
	results := map[string]any{}
	ctx := newTestContext(nil, results)
	results["late"] = "here"

	got, err := ResolveValue(map[string]any{"$ref": "late"}, ctx.View())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "here" {
		t.Errorf("expected view to see shared results, got %v", got)
	}
}

func TestResolve_StrictRefs(t *testing.T) {
	ctx := newTestContext(nil, map[string]any{"step": map[string]any{"a": 1}}, WithStrictRefs(true))

	if _, err := ResolveValue(map[string]any{"$ref": "other.a"}, ctx); !errors.Is(err, ErrUnresolvedRef) {
		t.Errorf("expected ErrUnresolvedRef, got %v", err)
	}

	// A present step with a missing field is still lenient.
	got, err := ResolveValue(map[string]any{"$ref": "step.b"}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsUndefined(got) {
		t.Errorf("expected undefined, got %#v", got)
	}
}

func TestResolve_Now(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := ResolveValue(map[string]any{"$now": true}, newTestContext(nil, nil, WithNow(fixed)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != fixed {
		t.Errorf("expected %v, got %v", fixed, got)
	}

	before := time.Now().UTC()
	got, err = ResolveValue(map[string]any{"$now": true}, newTestContext(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", got)
	}
	if ts.Before(before) {
		t.Errorf("expected wall clock time >= %v, got %v", before, ts)
	}
}

func TestResolve_TempIncrements(t *testing.T) {
	ctx := newTestContext(nil, nil)
	first, _ := ResolveValue(map[string]any{"$temp": true}, ctx)
	second, _ := ResolveValue(map[string]any{"$temp": true}, ctx)

	if first != "temp_1" || second != "temp_2" {
		t.Errorf("expected temp_1 then temp_2, got %v then %v", first, second)
	}
}

func TestResolve_TempUsesSuppliedGenerator(t *testing.T) {
	calls := 0
	gen := TempIDFunc(func() string {
		calls++
		return "custom"
	})
	got, err := ResolveValue(map[string]any{"$temp": true}, newTestContext(nil, nil, WithTempIDs(gen)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "custom" || calls != 1 {
		t.Errorf("expected one call returning custom, got %v after %d calls", got, calls)
	}
}

func TestResolve_IncDecAreMarkers(t *testing.T) {
	ctx := newTestContext(map[string]any{"n": 3}, nil)
	got, err := ResolveValue(map[string]any{
		"count": map[string]any{"$inc": 2},
		"stock": map[string]any{"$dec": 1.5},
	}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"count": Marker{Op: OpInc, Value: 2},
		"stock": Marker{Op: OpDec, Value: 1.5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestResolve_CollectionMarkersResolvePayload(t *testing.T) {
	ctx := newTestContext(map[string]any{"tag": "go", "user": "u1"}, nil)
	got, err := ResolveValue(map[string]any{
		"tags":    map[string]any{"$push": map[string]any{"$input": "tag"}},
		"members": map[string]any{"$addToSet": []any{map[string]any{"$input": "user"}, "u2"}},
		"old":     map[string]any{"$pull": "stale"},
	}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := got.(map[string]any)

	push, ok := AsMarker(m["tags"])
	if !ok || push.Op != OpPush || push.Value != "go" {
		t.Errorf("unexpected push marker: %#v", m["tags"])
	}
	add, ok := AsMarker(m["members"])
	if !ok || add.Op != OpAddToSet || !reflect.DeepEqual(add.Items(), []any{"u1", "u2"}) {
		t.Errorf("unexpected addToSet marker: %#v", m["members"])
	}
	pull, ok := AsMarker(m["old"])
	if !ok || pull.Op != OpPull || !reflect.DeepEqual(pull.Items(), []any{"stale"}) {
		t.Errorf("unexpected pull marker: %#v", m["old"])
	}
}

func TestResolve_DefaultUnwrapsByDefault(t *testing.T) {
	got, err := ResolveValue(map[string]any{"$default": map[string]any{"$input": "x"}},
		newTestContext(map[string]any{"x": "fallback"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fallback" {
		t.Errorf("expected fallback, got %#v", got)
	}
}

func TestResolve_DefaultMarkerMode(t *testing.T) {
	got, err := ResolveValue(map[string]any{"$default": "fallback"},
		newTestContext(nil, nil, WithDefaultMarkers(true)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (Marker{Op: OpDefault, Value: "fallback"}); got != want {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestResolve_ConditionalTruthiness(t *testing.T) {
	tests := []struct {
		name string
		cond any
		want any
	}{
		{"zero", 0, "b"},
		{"empty array", []any{}, "b"},
		{"empty object", map[string]any{}, "a"},
		{"empty string", "", "b"},
		{"false", false, "b"},
		{"null", nil, "b"},
		{"missing", map[string]any{"$input": "nope"}, "b"},
		{"non-empty string", "x", "a"},
		{"number", 2.5, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveValue(map[string]any{
				"$if": map[string]any{"cond": tt.cond, "then": "a", "else": "b"},
			}, newTestContext(nil, nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolve_ConditionalWithoutElseIsUndefined(t *testing.T) {
	got, err := ResolveValue(map[string]any{
		"$if": map[string]any{"cond": false, "then": "a"},
	}, newTestContext(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsUndefined(got) {
		t.Errorf("expected undefined, got %#v", got)
	}
}

func TestResolve_ConditionalOnlyEvaluatesTakenBranch(t *testing.T) {
	ctx := newTestContext(nil, nil)
	got, err := ResolveValue(map[string]any{
		"$if": map[string]any{
			"cond": true,
			"then": "kept",
			"else": map[string]any{"$temp": true},
		},
	}, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "kept" {
		t.Errorf("expected kept, got %v", got)
	}
	// The untaken $temp must not have advanced the sequence.
	if next := ctx.TempID(); next != "temp_1" {
		t.Errorf("expected sequence untouched (temp_1), got %s", next)
	}
}

func TestResolve_NilContextUsesEmptyEnvironment(t *testing.T) {
	got, err := Resolve(InputRef{Path: "a"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsUndefined(got) {
		t.Errorf("expected undefined, got %#v", got)
	}
}

func TestEvalContext_ResultsIsSnapshot(t *testing.T) {
	results := map[string]any{"a": 1}
	ctx := newTestContext(nil, results)
	snap := ctx.Results()
	snap["b"] = 2
	if _, ok := results["b"]; ok {
		t.Error("mutating the snapshot must not change the run results")
	}
}
