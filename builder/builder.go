// Package builder constructs operations, pipelines and value expressions in
// the JSON wire format without writing the tagged maps by hand.
//
//	session := builder.Do("entity.create").
//	    Set("type", "Session").
//	    Set("title", builder.Input("title")).
//	    As("session")
//	p := builder.Pipe(session).
//	    Then(builder.Do("entity.update").
//	        Set("id", session.Ref("id")).
//	        Set("count", builder.Inc(1))).
//	    Return(builder.Object{"id": session.Ref("id")})
package builder

import (
	"maps"

	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/pipeline"
)

// Expr is a value expression in wire form.
type Expr = map[string]any

// Object is a plain object of fields, each a literal or an expression.
type Object = map[string]any

// Input references a dotted path into the run input.
func Input(path string) Expr { return Expr{expr.TagInput: path} }

// Ref references a dotted path into the results of earlier steps.
func Ref(path string) Expr { return Expr{expr.TagRef: path} }

// Now resolves to the run's timestamp.
func Now() Expr { return Expr{expr.TagNow: true} }

// Temp resolves to a fresh temp id.
func Temp() Expr { return Expr{expr.TagTemp: true} }

// Inc marks a field to be incremented by n.
func Inc(n any) Expr { return Expr{expr.TagInc: n} }

// Dec marks a field to be decremented by n.
func Dec(n any) Expr { return Expr{expr.TagDec: n} }

// Push marks items to be appended to a list field.
func Push(items ...any) Expr { return Expr{expr.TagPush: itemsValue(items)} }

// Pull marks items to be removed from a list field.
func Pull(items ...any) Expr { return Expr{expr.TagPull: itemsValue(items)} }

// AddToSet marks items to be appended to a list field unless present.
func AddToSet(items ...any) Expr { return Expr{expr.TagAddToSet: itemsValue(items)} }

// Default marks a value to be used only when the field is undefined.
func Default(v any) Expr { return Expr{expr.TagDefault: v} }

// If resolves to then when cond is truthy and to undefined otherwise.
func If(cond, then any) Expr {
	return Expr{expr.TagIf: map[string]any{"cond": cond, "then": then}}
}

// IfElse resolves to then when cond is truthy and to els otherwise.
func IfElse(cond, then, els any) Expr {
	return Expr{expr.TagIf: map[string]any{"cond": cond, "then": then, "else": els}}
}

// itemsValue stores a single item as a bare value and several as a list.
func itemsValue(items []any) any {
	if len(items) == 1 {
		return items[0]
	}
	out := make([]any, len(items))
	copy(out, items)
	return out
}

// OperationBuilder builds one step.
type OperationBuilder struct {
	effect  string
	args    Object
	name    string
	when    any
	hasWhen bool
}

// Do starts an operation dispatching to effect ("namespace.name", or a
// bare name for the core namespace).
func Do(effect string) *OperationBuilder {
	return &OperationBuilder{effect: effect, args: Object{}}
}

// With merges fields into the arguments.
func (b *OperationBuilder) With(fields Object) *OperationBuilder {
	maps.Copy(b.args, fields)
	return b
}

// Set sets one argument.
func (b *OperationBuilder) Set(field string, value any) *OperationBuilder {
	b.args[field] = value
	return b
}

// As names the step's result.
func (b *OperationBuilder) As(name string) *OperationBuilder {
	b.name = name
	return b
}

// When makes the step conditional on cond.
func (b *OperationBuilder) When(cond any) *OperationBuilder {
	b.when = cond
	b.hasWhen = true
	return b
}

// Ref references a field of this step's result. The step must be named.
func (b *OperationBuilder) Ref(field string) Expr {
	if field == "" {
		return Ref(b.name)
	}
	return Ref(b.name + "." + field)
}

// Build returns the operation in wire form.
func (b *OperationBuilder) Build() map[string]any {
	out := map[string]any{pipeline.KeyDo: b.effect}
	if len(b.args) > 0 {
		out[pipeline.KeyWith] = maps.Clone(b.args)
	}
	if b.name != "" {
		out[pipeline.KeyAs] = b.name
	}
	if b.hasWhen {
		out[pipeline.KeyWhen] = b.when
	}
	return out
}

// Operation parses the built operation.
func (b *OperationBuilder) Operation() (*pipeline.Operation, error) {
	return pipeline.ParseOperation(b.Build())
}

// PipelineBuilder builds an ordered sequence of steps.
type PipelineBuilder struct {
	steps []*OperationBuilder
	ret   Object
}

// Pipe starts a pipeline with the given steps.
func Pipe(steps ...*OperationBuilder) *PipelineBuilder {
	return &PipelineBuilder{steps: append([]*OperationBuilder(nil), steps...)}
}

// Then appends a step.
func (b *PipelineBuilder) Then(step *OperationBuilder) *PipelineBuilder {
	b.steps = append(b.steps, step)
	return b
}

// Return sets the return expression.
func (b *PipelineBuilder) Return(ret Object) *PipelineBuilder {
	b.ret = ret
	return b
}

// Build returns the pipeline in wire form.
func (b *PipelineBuilder) Build() map[string]any {
	steps := make([]any, len(b.steps))
	for i, s := range b.steps {
		steps[i] = s.Build()
	}
	out := map[string]any{pipeline.KeyPipe: steps}
	if b.ret != nil {
		out[pipeline.KeyReturn] = b.ret
	}
	return out
}

// Pipeline parses the built pipeline.
func (b *PipelineBuilder) Pipeline() (*pipeline.Pipeline, error) {
	return pipeline.ParsePipeline(b.Build())
}
