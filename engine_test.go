package reify

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"testing"

	"github.com/SylphxAI/reify/builder"
	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/pipeline"
	"github.com/SylphxAI/reify/plugin"
)

// entityPlugin echoes creations as {$op, $type, ...args without type}.
func entityPlugin() plugin.Plugin {
	return plugin.Plugin{
		Namespace: "entity",
		Effects: map[string]plugin.EffectHandler{
			"create": func(_ context.Context, args map[string]any, _ *expr.EvalContext) (any, error) {
				out := map[string]any{"$op": "create", "$type": args["type"]}
				for k, v := range args {
					if k != "type" {
						out[k] = v
					}
				}
				return out, nil
			},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	if err := e.RegisterPlugin(entityPlugin()); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}
	return e
}

func TestEngine_EndToEnd(t *testing.T) {
	e := newTestEngine(t)
	dsl := map[string]any{
		"$pipe": []any{
			map[string]any{
				"$do":   "entity.create",
				"$with": map[string]any{"type": "Session", "title": map[string]any{"$input": "title"}},
				"$as":   "session",
			},
		},
	}

	res, err := e.Execute(context.Background(), dsl, map[string]any{"title": "Chat"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := map[string]any{
		"session": map[string]any{"$op": "create", "$type": "Session", "title": "Chat"},
	}
	if !reflect.DeepEqual(res.Result, want) {
		t.Errorf("result = %#v, want %#v", res.Result, want)
	}
}

func TestEngine_EndToEndWithBuilder(t *testing.T) {
	e := newTestEngine(t)
	p, err := builder.Pipe(
		builder.Do("entity.create").Set("type", "Session").Set("title", builder.Input("title")).As("session"),
	).Pipeline()
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}

	res, err := e.ExecutePipeline(context.Background(), p, map[string]any{"title": "Chat"})
	if err != nil {
		t.Fatalf("ExecutePipeline: %v", err)
	}
	session := res.Result.(map[string]any)["session"].(map[string]any)
	if session["title"] != "Chat" || session["$type"] != "Session" {
		t.Errorf("unexpected session %v", session)
	}
}

func TestEngine_PluginManagement(t *testing.T) {
	e := NewEngine()
	noop := func(context.Context, map[string]any, *expr.EvalContext) (any, error) { return nil, nil }
	for _, ns := range []string{"b", "a"} {
		if err := e.RegisterPlugin(plugin.Plugin{Namespace: ns, Effects: map[string]plugin.EffectHandler{"x": noop}}); err != nil {
			t.Fatalf("RegisterPlugin(%s): %v", ns, err)
		}
	}
	if got := e.ListNamespaces(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ListNamespaces() = %v", got)
	}
	if !e.UnregisterPlugin("a") || e.UnregisterPlugin("a") {
		t.Error("expected first unregister to succeed and second to report absence")
	}
	e.ClearPlugins()
	if got := e.ListNamespaces(); len(got) != 0 {
		t.Errorf("expected no namespaces after clear, got %v", got)
	}
	if err := e.RegisterPlugin(plugin.Plugin{}); err == nil {
		t.Error("expected error for invalid plugin")
	}
}

func TestEngine_DispatchErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, map[string]any{"$do": "missing.ns"}, nil)
	var nsErr *plugin.UnknownNamespaceError
	if !errors.As(err, &nsErr) || nsErr.Namespace != "missing" {
		t.Errorf("expected UnknownNamespaceError for missing, got %v", err)
	}

	_, err = e.Execute(ctx, map[string]any{"$do": "entity.bogus"}, nil)
	var effErr *plugin.UnknownEffectError
	if !errors.As(err, &effErr) || effErr.Effect != "entity.bogus" {
		t.Errorf("expected UnknownEffectError for entity.bogus, got %v", err)
	}
}

func TestEngine_ResolveValue(t *testing.T) {
	e := NewEngine()
	ec := e.NewEvalContext(map[string]any{"a": map[string]any{"b": 1}}, map[string]any{"x": map[string]any{"y": "z"}})

	tests := []struct {
		name string
		raw  any
		want any
	}{
		{"literal tree is identity", map[string]any{"k": []any{1, "two", true, nil}}, map[string]any{"k": []any{1, "two", true, nil}}},
		{"input path", map[string]any{"$input": "a.b"}, 1},
		{"missing input segment", map[string]any{"$input": "a.c.d"}, expr.Undefined},
		{"result path", map[string]any{"$ref": "x.y"}, "z"},
		{"cond 0 is falsy", map[string]any{"$if": map[string]any{"cond": 0, "then": "a", "else": "b"}}, "b"},
		{"cond empty list is falsy", map[string]any{"$if": map[string]any{"cond": []any{}, "then": "a", "else": "b"}}, "b"},
		{"cond empty object is truthy", map[string]any{"$if": map[string]any{"cond": map[string]any{}, "then": "a", "else": "b"}}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ResolveValue(tt.raw, ec)
			if err != nil {
				t.Fatalf("ResolveValue: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEngine_TempIDsShareEngineSequence(t *testing.T) {
	e := NewEngine()
	first, _ := e.ResolveValue(map[string]any{"$temp": true}, e.NewEvalContext(nil, nil))
	second, _ := e.ResolveValue(map[string]any{"$temp": true}, e.NewEvalContext(nil, nil))
	if first != "temp_1" || second != "temp_2" {
		t.Errorf("expected temp_1 then temp_2, got %v, %v", first, second)
	}

	other := NewEngine()
	if got, _ := other.ResolveValue(map[string]any{"$temp": true}, other.NewEvalContext(nil, nil)); got != "temp_1" {
		t.Errorf("engines must not share a sequence, got %v", got)
	}

	isolated := e.NewEvalContext(nil, nil, pipeline.WithTempIDs(expr.NewSequence("iso_")))
	if got, _ := e.ResolveValue(map[string]any{"$temp": true}, isolated); got != "iso_1" {
		t.Errorf("expected isolated generator, got %v", got)
	}
}

func TestEngine_ExecuteOperation(t *testing.T) {
	e := newTestEngine(t)
	op, err := pipeline.ParseOperation(map[string]any{
		"$do":   "entity.create",
		"$with": map[string]any{"type": "Note"},
		"$as":   "note",
		"$when": map[string]any{"$input": "go"},
	})
	if err != nil {
		t.Fatalf("ParseOperation: %v", err)
	}

	skipped, err := e.ExecuteOperation(context.Background(), op, e.NewEvalContext(nil, nil))
	if err != nil {
		t.Fatalf("ExecuteOperation: %v", err)
	}
	if !skipped.Skipped || !expr.IsUndefined(skipped.Result) || len(skipped.Args) != 0 {
		t.Errorf("expected skipped result, got %#v", skipped)
	}

	ran, err := e.ExecuteOperation(context.Background(), op, e.NewEvalContext(map[string]any{"go": true}, nil))
	if err != nil {
		t.Fatalf("ExecuteOperation: %v", err)
	}
	if ran.Skipped || ran.Name != "note" || ran.Effect != "entity.create" {
		t.Errorf("unexpected result %#v", ran)
	}
	if !maps.Equal(ran.Args, map[string]any{"type": "Note"}) {
		t.Errorf("unexpected args %v", ran.Args)
	}
}
