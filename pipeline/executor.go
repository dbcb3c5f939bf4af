package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/plugin"
)

const tracerName = "reify.pipeline"

// Executor dispatches operations to the handlers of a plugin registry.
//
// Steps of one run execute strictly one after another in declaration order;
// the executor waits for each handler to return before starting the next
// step. Separate runs may execute concurrently and share only the registry
// and the shared temp-id generator.
type Executor struct {
	registry *plugin.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	tempIDs  expr.TempIDGenerator
	defaults []RunOption
}

// NewExecutor creates an Executor over registry.
func NewExecutor(registry *plugin.Registry, opts ...ExecutorOption) *Executor {
	x := &Executor{
		registry: registry,
		logger:   slog.Default(),
		tempIDs:  expr.NewSequence(expr.DefaultTempPrefix),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.tracer == nil {
		x.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	return x
}

// Registry returns the registry the executor dispatches to.
func (x *Executor) Registry() *plugin.Registry { return x.registry }

// TempIDs returns the generator shared by runs without their own.
func (x *Executor) TempIDs() expr.TempIDGenerator { return x.tempIDs }

// NewEvalContext creates a context for ad hoc resolution or for calling
// ExecuteOperation directly, configured like a run with opts.
func (x *Executor) NewEvalContext(input, results map[string]any, opts ...RunOption) *expr.EvalContext {
	cfg := x.runConfig(opts)
	return expr.NewEvalContext(input, results, cfg.evalOptions(x.tempIDs)...)
}

// ExecuteOperation runs a single step against ec.
//
// A condition that resolves falsy skips the step: its arguments are not
// resolved and no handler is called. Otherwise the arguments are resolved,
// the handler is looked up and invoked, and its output is returned in the
// result. Lookup and handler errors are returned unchanged.
func (x *Executor) ExecuteOperation(ctx context.Context, op *Operation, ec *expr.EvalContext) (*OperationResult, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", ErrInvalidOperation)
	}
	if ec == nil {
		ec = x.NewEvalContext(nil, nil)
	}

	ctx, span := x.tracer.Start(ctx, "pipeline.operation",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.operation.effect", op.Effect),
			attribute.String("pipeline.operation.name", op.ResultName),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := x.executeOperation(ctx, op, ec)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.metrics.observeOperation(op.Effect, statusError, elapsed)
	case res.Skipped:
		span.SetAttributes(attribute.Bool("pipeline.operation.skipped", true))
		x.metrics.observeOperation(op.Effect, statusSkipped, elapsed)
	default:
		x.metrics.observeOperation(op.Effect, statusOK, elapsed)
	}
	return res, err
}

func (x *Executor) executeOperation(ctx context.Context, op *Operation, ec *expr.EvalContext) (*OperationResult, error) {
	if op.Condition != nil {
		cond, err := expr.Resolve(op.Condition, ec)
		if err != nil {
			return nil, fmt.Errorf("%s condition: %w", op.Effect, err)
		}
		if !expr.Truthy(cond) {
			return &OperationResult{
				Name:    op.ResultName,
				Effect:  op.Effect,
				Args:    map[string]any{},
				Result:  expr.Undefined,
				Skipped: true,
			}, nil
		}
	}

	args, err := expr.ResolveObject(op.Args, ec)
	if err != nil {
		return nil, fmt.Errorf("%s arguments: %w", op.Effect, err)
	}

	handler, err := x.registry.Lookup(op.Effect)
	if err != nil {
		return nil, err
	}

	result, err := handler(ctx, args, ec)
	if err != nil {
		return nil, err
	}

	return &OperationResult{
		Name:   op.ResultName,
		Effect: op.Effect,
		Args:   args,
		Result: result,
	}, nil
}

// ExecutePipeline runs every step of p in order against one results
// environment seeded empty. After each non-skipped step with a result name,
// the handler output is stored under that name, replacing any earlier
// value. The run's result is p.Return resolved against the final results,
// or the results map itself when p has no return expression.
//
// The first error aborts the run and no partial result is returned. Effects
// already performed by handlers of earlier steps are not undone.
func (x *Executor) ExecutePipeline(ctx context.Context, p *Pipeline, input map[string]any, opts ...RunOption) (*PipelineResult, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil pipeline", ErrInvalidOperation)
	}
	cfg := x.runConfig(opts)
	logger := x.logger
	if cfg.name != "" {
		logger = logger.With("pipeline", cfg.name)
	}

	ctx, span := x.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.name", cfg.name),
			attribute.Int("pipeline.steps", len(p.Steps)),
		),
	)
	defer span.End()

	start := time.Now()
	logger.Info("Pipeline started", "steps", len(p.Steps))

	results := make(map[string]any)
	base := expr.NewEvalContext(maps.Clone(input), results, cfg.evalOptions(x.tempIDs)...)
	ops := make([]*OperationResult, 0, len(p.Steps))

	for i, op := range p.Steps {
		if op == nil {
			err := fmt.Errorf("%w: step #%d is nil", ErrInvalidOperation, i)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			x.metrics.observeRun(cfg.name, statusError, time.Since(start))
			return nil, err
		}
		stepName := op.ResultName
		if stepName == "" {
			stepName = "#" + strconv.Itoa(i)
		}
		stepStart := time.Now()
		logger.Debug("Step started", "step", stepName, "effect", op.Effect, "index", i)

		res, err := x.ExecuteOperation(ctx, op, base.View())
		if err != nil {
			logger.Error("Step failed", "step", stepName, "effect", op.Effect, "error", err, "elapsed", time.Since(stepStart))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			x.metrics.observeRun(cfg.name, statusError, time.Since(start))
			return nil, fmt.Errorf("step %q (%s) failed: %w", stepName, op.Effect, err)
		}
		ops = append(ops, res)

		if res.Skipped {
			logger.Debug("Step skipped", "step", stepName, "effect", op.Effect)
			continue
		}
		if op.ResultName != "" {
			results[op.ResultName] = res.Result
		}
		logger.Debug("Step completed", "step", stepName, "effect", op.Effect, "elapsed", time.Since(stepStart))
	}

	var out any = results
	if p.Return != nil {
		ret, err := expr.ResolveObject(p.Return, base.View())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			x.metrics.observeRun(cfg.name, statusError, time.Since(start))
			return nil, fmt.Errorf("return expression: %w", err)
		}
		out = ret
	}

	x.metrics.observeRun(cfg.name, statusOK, time.Since(start))
	logger.Info("Pipeline completed", "steps", len(p.Steps), "elapsed", time.Since(start))
	return &PipelineResult{Operations: ops, Result: out}, nil
}

// Execute accepts either wire shape (an operation or a pipeline, as a map or
// JSON text) or an already parsed *Operation or *Pipeline. A single
// operation runs as a one-step pipeline.
func (x *Executor) Execute(ctx context.Context, dsl any, input map[string]any, opts ...RunOption) (*PipelineResult, error) {
	p, err := Parse(dsl)
	if err != nil {
		return nil, err
	}
	return x.ExecutePipeline(ctx, p, input, opts...)
}

func (x *Executor) runConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{}
	for _, opt := range x.defaults {
		opt(cfg)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
