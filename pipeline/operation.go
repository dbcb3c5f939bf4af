// Package pipeline executes operations and ordered pipelines of operations.
//
// An Operation names an effect, an argument object, an optional result name
// and an optional condition. A Pipeline runs its steps strictly in order
// against one shared results environment, so a later step can reference an
// earlier step's handler output with {"$ref": "name.field"}.
package pipeline

import (
	"github.com/SylphxAI/reify/expr"
)

// Operation is a single, optionally conditional, effect invocation. Treat it
// as immutable once constructed.
type Operation struct {
	// Effect is the qualified effect name, e.g. "entity.create".
	Effect string
	// Args is resolved fully before the handler is invoked.
	Args *expr.Object
	// ResultName, when set, stores the handler output in the results
	// environment under this name.
	ResultName string
	// Condition, when set, must resolve truthy for the step to run.
	Condition expr.Expr
}

// Pipeline is an ordered sequence of operations plus an optional return
// expression. It can be executed any number of times.
type Pipeline struct {
	Steps  []*Operation
	Return *expr.Object
}

// Single wraps one operation into a one-step pipeline.
func Single(op *Operation) *Pipeline {
	return &Pipeline{Steps: []*Operation{op}}
}

// OperationResult records the outcome of one step.
type OperationResult struct {
	Name    string         `json:"name,omitempty"`
	Effect  string         `json:"effect"`
	Args    map[string]any `json:"args"`
	Result  any            `json:"result"`
	Skipped bool           `json:"skipped"`
}

// PipelineResult is the outcome of a complete run.
type PipelineResult struct {
	Operations []*OperationResult `json:"operations"`
	Result     any                `json:"result"`
}
