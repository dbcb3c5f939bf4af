// Package reify evaluates declarative operation pipelines: ordered steps
// naming effects, with symbolic references to the run input and to earlier
// results, dispatched to handlers registered by plugins.
//
//	engine, err := reify.NewEngineBuilder().
//	    WithCorePlugin().
//	    WithPlugin(entity.New(store).Plugin()).
//	    Build()
//	res, err := engine.Execute(ctx, dsl, input)
package reify

import (
	"context"
	"log/slog"

	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/pipeline"
	"github.com/SylphxAI/reify/plugin"
)

// Engine owns a plugin registry, the executor that dispatches to it and the
// temp-id sequence shared by its runs. Engines are independent of each
// other; nothing is process-global.
type Engine struct {
	registry *plugin.Registry
	executor *pipeline.Executor
	logger   *slog.Logger
	metrics  *pipeline.Metrics
}

// NewEngine creates an engine with an empty registry.
func NewEngine(opts ...pipeline.ExecutorOption) *Engine {
	reg := plugin.NewRegistry()
	return &Engine{
		registry: reg,
		executor: pipeline.NewExecutor(reg, opts...),
		logger:   slog.Default(),
	}
}

// RegisterPlugin adds p, replacing any plugin with the same namespace.
func (e *Engine) RegisterPlugin(p plugin.Plugin) error {
	if err := e.registry.Register(p); err != nil {
		return err
	}
	e.logger.Debug("Plugin registered", "namespace", p.Namespace, "effects", len(p.Effects))
	return nil
}

// UnregisterPlugin removes the plugin for namespace and reports whether one
// was registered.
func (e *Engine) UnregisterPlugin(namespace string) bool {
	return e.registry.Unregister(namespace)
}

// ClearPlugins removes every plugin.
func (e *Engine) ClearPlugins() { e.registry.Clear() }

// ListNamespaces returns the registered namespaces in sorted order.
func (e *Engine) ListNamespaces() []string { return e.registry.Namespaces() }

// ResolveValue resolves a wire-form value expression against ec.
func (e *Engine) ResolveValue(raw any, ec *expr.EvalContext) (any, error) {
	return expr.ResolveValue(raw, ec)
}

// NewEvalContext creates a context bound to the engine's temp-id sequence,
// for ResolveValue or ExecuteOperation.
func (e *Engine) NewEvalContext(input, results map[string]any, opts ...pipeline.RunOption) *expr.EvalContext {
	return e.executor.NewEvalContext(input, results, opts...)
}

// ExecuteOperation runs one step against ec.
func (e *Engine) ExecuteOperation(ctx context.Context, op *pipeline.Operation, ec *expr.EvalContext) (*pipeline.OperationResult, error) {
	return e.executor.ExecuteOperation(ctx, op, ec)
}

// ExecutePipeline runs p against input.
func (e *Engine) ExecutePipeline(ctx context.Context, p *pipeline.Pipeline, input map[string]any, opts ...pipeline.RunOption) (*pipeline.PipelineResult, error) {
	return e.executor.ExecutePipeline(ctx, p, input, opts...)
}

// Execute runs an operation or a pipeline, given in wire form or parsed.
func (e *Engine) Execute(ctx context.Context, dsl any, input map[string]any, opts ...pipeline.RunOption) (*pipeline.PipelineResult, error) {
	return e.executor.Execute(ctx, dsl, input, opts...)
}

// Registry returns the engine's plugin registry.
func (e *Engine) Registry() *plugin.Registry { return e.registry }

// Executor returns the engine's executor.
func (e *Engine) Executor() *pipeline.Executor { return e.executor }

// Metrics returns the collectors the engine records to, or nil.
func (e *Engine) Metrics() *pipeline.Metrics { return e.metrics }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }
