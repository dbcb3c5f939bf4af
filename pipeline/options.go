package pipeline

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/SylphxAI/reify/expr"
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger used for run and step logs.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithTracer sets the tracer used for run and step spans. Without it the
// global tracer provider is used.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(x *Executor) { x.tracer = t }
}

// WithMetrics records run and step counters on m.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(x *Executor) { x.metrics = m }
}

// WithSharedTempIDs sets the temp-id generator shared by every run that
// does not bring its own.
func WithSharedTempIDs(g expr.TempIDGenerator) ExecutorOption {
	return func(x *Executor) {
		if g != nil {
			x.tempIDs = g
		}
	}
}

// WithRunDefaults sets options applied to every run before the caller's own.
func WithRunDefaults(opts ...RunOption) ExecutorOption {
	return func(x *Executor) { x.defaults = append(x.defaults, opts...) }
}

// RunOption configures a single pipeline run.
type RunOption func(*runConfig)

type runConfig struct {
	name         string
	now          time.Time
	tempIDs      expr.TempIDGenerator
	strict       bool
	keepDefaults bool
}

// WithName labels the run in logs, spans and metrics.
func WithName(name string) RunOption {
	return func(c *runConfig) { c.name = name }
}

// WithNow fixes the timestamp that $now resolves to for the whole run.
func WithNow(t time.Time) RunOption {
	return func(c *runConfig) { c.now = t }
}

// WithTempIDs gives the run a private temp-id generator, isolating it from
// other runs of the same executor.
func WithTempIDs(g expr.TempIDGenerator) RunOption {
	return func(c *runConfig) { c.tempIDs = g }
}

// WithStrictRefs makes a $ref to a step without a result fail the run.
func WithStrictRefs(strict bool) RunOption {
	return func(c *runConfig) { c.strict = strict }
}

// WithDefaultMarkers passes $default to handlers as a marker instead of its
// bare value.
func WithDefaultMarkers(keep bool) RunOption {
	return func(c *runConfig) { c.keepDefaults = keep }
}

func (c *runConfig) evalOptions(shared expr.TempIDGenerator) []expr.Option {
	gen := c.tempIDs
	if gen == nil {
		gen = shared
	}
	return []expr.Option{
		expr.WithNow(c.now),
		expr.WithTempIDs(gen),
		expr.WithStrictRefs(c.strict),
		expr.WithDefaultMarkers(c.keepDefaults),
	}
}
