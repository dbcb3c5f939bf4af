package reify

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/SylphxAI/reify/config"
	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/pipeline"
	"github.com/SylphxAI/reify/plugin"
	"github.com/SylphxAI/reify/plugins/core"
)

// EngineBuilder provides a fluent API for constructing an Engine.
//
//	engine, err := reify.NewEngineBuilder().
//	    WithConfig(cfg.Engine).
//	    WithCorePlugin().
//	    Build()
type EngineBuilder struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *pipeline.Metrics
	tempIDs     expr.TempIDGenerator
	runDefaults []pipeline.RunOption
	plugins     []plugin.Plugin
	useCore     bool

	cfg       *config.EngineConfig
	logOutput io.Writer
}

// NewEngineBuilder creates a new EngineBuilder with no defaults configured.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithLogger sets the logger. If not called, Build uses the configured
// logging settings or slog.Default.
func (b *EngineBuilder) WithLogger(logger *slog.Logger) *EngineBuilder {
	b.logger = logger
	return b
}

// WithLogOutput sets where a logger built from config writes; stderr when
// not called.
func (b *EngineBuilder) WithLogOutput(w io.Writer) *EngineBuilder {
	b.logOutput = w
	return b
}

// WithTracer sets the tracer for run and step spans.
func (b *EngineBuilder) WithTracer(t trace.Tracer) *EngineBuilder {
	b.tracer = t
	return b
}

// WithMetrics records run and step metrics on m.
func (b *EngineBuilder) WithMetrics(m *pipeline.Metrics) *EngineBuilder {
	b.metrics = m
	return b
}

// WithTempIDs sets the temp-id generator shared by runs.
func (b *EngineBuilder) WithTempIDs(g expr.TempIDGenerator) *EngineBuilder {
	b.tempIDs = g
	return b
}

// WithRunDefaults sets options applied to every run.
func (b *EngineBuilder) WithRunDefaults(opts ...pipeline.RunOption) *EngineBuilder {
	b.runDefaults = append(b.runDefaults, opts...)
	return b
}

// WithPlugin adds a plugin to be registered during Build().
func (b *EngineBuilder) WithPlugin(p plugin.Plugin) *EngineBuilder {
	b.plugins = append(b.plugins, p)
	return b
}

// WithPlugins adds multiple plugins to be registered during Build().
func (b *EngineBuilder) WithPlugins(plugins ...plugin.Plugin) *EngineBuilder {
	b.plugins = append(b.plugins, plugins...)
	return b
}

// WithCorePlugin registers the built-in core namespace (set, log, jq, eval,
// fail), logging to the engine's logger.
func (b *EngineBuilder) WithCorePlugin() *EngineBuilder {
	b.useCore = true
	return b
}

// WithConfig applies engine settings from a config file. Explicit With*
// calls take precedence over the config.
func (b *EngineBuilder) WithConfig(cfg config.EngineConfig) *EngineBuilder {
	b.cfg = &cfg
	return b
}

// Build creates the Engine and registers the plugins. It returns an error
// if the config is invalid or a plugin fails validation.
func (b *EngineBuilder) Build() (*Engine, error) {
	logger := b.logger
	tempIDs := b.tempIDs
	metrics := b.metrics
	var runDefaults []pipeline.RunOption

	if b.cfg != nil {
		if err := b.cfg.Validate(); err != nil {
			return nil, err
		}
		if logger == nil {
			out := b.logOutput
			if out == nil {
				out = os.Stderr
			}
			l, err := b.cfg.Logging.NewLogger(out)
			if err != nil {
				return nil, err
			}
			logger = l
		}
		if tempIDs == nil {
			tempIDs = b.cfg.TempIDs.Generator()
		}
		if metrics == nil && b.cfg.Metrics.Enabled {
			metrics = pipeline.NewMetrics(b.cfg.Metrics.Namespace)
		}
		runDefaults = append(runDefaults,
			pipeline.WithStrictRefs(b.cfg.StrictRefs),
			pipeline.WithDefaultMarkers(b.cfg.KeepDefaultMarkers),
		)
	}
	if logger == nil {
		logger = slog.Default()
	}
	runDefaults = append(runDefaults, b.runDefaults...)

	opts := []pipeline.ExecutorOption{
		pipeline.WithLogger(logger),
		pipeline.WithRunDefaults(runDefaults...),
	}
	if b.tracer != nil {
		opts = append(opts, pipeline.WithTracer(b.tracer))
	}
	if metrics != nil {
		opts = append(opts, pipeline.WithMetrics(metrics))
	}
	if tempIDs != nil {
		opts = append(opts, pipeline.WithSharedTempIDs(tempIDs))
	}

	engine := NewEngine(opts...)
	engine.logger = logger
	engine.metrics = metrics

	if b.useCore {
		if err := engine.RegisterPlugin(core.New(core.WithLogger(logger))); err != nil {
			return nil, fmt.Errorf("failed to register core plugin: %w", err)
		}
	}
	for _, p := range b.plugins {
		if err := engine.RegisterPlugin(p); err != nil {
			return nil, fmt.Errorf("failed to register plugin %q: %w", p.Namespace, err)
		}
	}
	return engine, nil
}
