package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/SylphxAI/reify"
	"github.com/SylphxAI/reify/config"
	"github.com/SylphxAI/reify/observability/tracing"
	"github.com/SylphxAI/reify/pipeline"
	"github.com/SylphxAI/reify/plugins/entity"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := fs.String("c", "reify.yaml", "Config file")
	name := fs.String("p", "", "Pipeline to run (required)")
	inputJSON := fs.String("input", "", "Run input as a JSON object")
	inputFile := fs.String("input-file", "", "Read the run input from a JSON file")
	storeDriver := fs.String("store", "", "Override the entity store driver (memory, redis, sqlite)")
	nowFlag := fs.String("now", "", "Fix $now to an RFC 3339 timestamp")
	watch := fs.Bool("watch", false, "Re-run the pipeline whenever the config file changes")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address while watching")
	verbose := fs.Bool("verbose", false, "Log at debug level")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: reify run [options] -p <pipeline>\n\nExecute a named pipeline and print its result as JSON.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("pipeline name is required")
	}

	input, err := loadInput(*inputJSON, *inputFile)
	if err != nil {
		return err
	}
	runOpts := []pipeline.RunOption{pipeline.WithName(*name)}
	if *nowFlag != "" {
		now, err := time.Parse(time.RFC3339, *nowFlag)
		if err != nil {
			return fmt.Errorf("invalid -now value: %w", err)
		}
		runOpts = append(runOpts, pipeline.WithNow(now))
	}

	file, err := config.LoadFile(*cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *storeDriver != "" {
		file.Engine.Store.Driver = *storeDriver
	}
	if *verbose {
		file.Engine.Logging.Level = "debug"
	}
	if *metricsAddr != "" {
		file.Engine.Metrics.Enabled = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tracer trace.Tracer
	if file.Engine.Tracing.Endpoint != "" {
		provider, err := tracing.NewProvider(ctx, file.Engine.Tracing, version)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
		tracer = provider.Tracer()
	}

	engine, store, err := buildEngine(ctx, file.Engine, tracer)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := executeNamed(ctx, engine, file, *name, input, runOpts); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(engine.Metrics().Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				engine.Logger().Error("Metrics server failed", "addr", *metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Engine settings are fixed at startup; reloads pick up pipeline changes.
	w := config.NewWatcher(*cfgPath, func(ev config.WatchEvent) {
		engine.Logger().Info("Config reloaded", "path", ev.Path, "hash", ev.NewHash)
		if err := executeNamed(ctx, engine, ev.File, *name, input, runOpts); err != nil {
			engine.Logger().Error("Pipeline run failed", "pipeline", *name, "error", err)
		}
	}, config.WithWatchLogger(engine.Logger()))
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to watch config: %w", err)
	}
	defer func() { _ = w.Stop() }()

	<-ctx.Done()
	return nil
}

// buildEngine assembles an engine with the core and entity plugins over the
// configured store. The caller closes the store. tracer may be nil.
func buildEngine(ctx context.Context, cfg config.EngineConfig, tracer trace.Tracer) (*reify.Engine, entity.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	store, err := entity.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open entity store: %w", err)
	}
	b := reify.NewEngineBuilder().WithConfig(cfg).WithCorePlugin()
	if tracer != nil {
		b.WithTracer(tracer)
	}
	engine, err := b.Build()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	if err := engine.RegisterPlugin(entity.New(store, entity.WithLogger(engine.Logger())).Plugin()); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to register entity plugin: %w", err)
	}
	return engine, store, nil
}

func executeNamed(ctx context.Context, engine *reify.Engine, file *config.File, name string, input map[string]any, opts []pipeline.RunOption) error {
	p, err := file.Pipeline(name)
	if err != nil {
		return err
	}
	res, err := engine.ExecutePipeline(ctx, p, input, opts...)
	if err != nil {
		return err
	}
	return writeJSON(res.Result)
}

func loadInput(inline, path string) (map[string]any, error) {
	if inline != "" && path != "" {
		return nil, fmt.Errorf("-input and -input-file are mutually exclusive")
	}
	data := []byte(inline)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		data = b
	}
	return decodeObject("input", data)
}

func decodeObject(what string, data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("invalid %s JSON: %w", what, err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
