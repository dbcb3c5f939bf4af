package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/pipeline"
)

// Temp-id generator modes.
const (
	TempIDSequence = "sequence"
	TempIDUUID     = "uuid"
)

// Store drivers understood by the entity plugin.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// ErrInvalidConfig is returned when a config document fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// File is a config document: engine settings plus named pipeline
// definitions in the $do/$pipe wire format.
type File struct {
	Engine    EngineConfig   `json:"engine" yaml:"engine"`
	Pipelines map[string]any `json:"pipelines" yaml:"pipelines"`
}

// EngineConfig holds the settings an Engine is built from.
type EngineConfig struct {
	Logging            LoggingConfig `json:"logging" yaml:"logging"`
	TempIDs            TempIDConfig  `json:"tempIds" yaml:"tempIds"`
	StrictRefs         bool          `json:"strictRefs" yaml:"strictRefs"`
	KeepDefaultMarkers bool          `json:"keepDefaultMarkers" yaml:"keepDefaultMarkers"`
	Metrics            MetricsConfig `json:"metrics" yaml:"metrics"`
	Store              StoreConfig   `json:"store" yaml:"store"`
	Tracing            TracingConfig `json:"tracing" yaml:"tracing"`
}

// LoggingConfig selects the slog handler. Level is one of debug, info,
// warn or error; Format is text or json.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// TempIDConfig selects the engine-wide temp-id generator.
type TempIDConfig struct {
	Mode   string `json:"mode" yaml:"mode"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// MetricsConfig enables the Prometheus collectors of the executor.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// StoreConfig selects the backend of the entity plugin. Address is the
// Redis address, Path the SQLite database file and Prefix the key prefix
// (or table name for SQLite).
type StoreConfig struct {
	Driver  string `json:"driver" yaml:"driver"`
	Address string `json:"address" yaml:"address"`
	Path    string `json:"path" yaml:"path"`
	Prefix  string `json:"prefix" yaml:"prefix"`
}

// TracingConfig enables OTLP/HTTP export of run and step spans. Tracing is
// off while Endpoint is empty.
type TracingConfig struct {
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"serviceName" yaml:"serviceName"`
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRate  float64 `json:"sampleRate" yaml:"sampleRate"`
}

// LoadFile reads a YAML or JSON config document from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	f, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Load parses and validates a YAML or JSON config document. Unknown
// top-level and engine fields are rejected.
func Load(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if f.Pipelines == nil {
		f.Pipelines = make(map[string]any)
	}
	if err := f.Engine.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the enumerated settings.
func (c *EngineConfig) Validate() error {
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q (want text or json)", ErrInvalidConfig, c.Logging.Format)
	}
	switch c.TempIDs.Mode {
	case "", TempIDSequence, TempIDUUID:
	default:
		return fmt.Errorf("%w: tempIds.mode %q (want %s or %s)", ErrInvalidConfig, c.TempIDs.Mode, TempIDSequence, TempIDUUID)
	}
	switch c.Store.Driver {
	case "", StoreMemory, StoreSQLite:
	case StoreRedis:
		if c.Store.Address == "" {
			return fmt.Errorf("%w: store.address is required for the redis driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("%w: tracing.sampleRate %v (want 0 to 1)", ErrInvalidConfig, c.Tracing.SampleRate)
	}
	return nil
}

// NewLogger builds a logger writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

// Generator returns the configured temp-id generator.
func (c TempIDConfig) Generator() expr.TempIDGenerator {
	if c.Mode == TempIDUUID {
		return expr.UUIDGenerator{Prefix: c.Prefix}
	}
	return expr.NewSequence(c.Prefix)
}

// PipelineNames returns the names of the defined pipelines in sorted order.
func (f *File) PipelineNames() []string {
	return slices.Sorted(maps.Keys(f.Pipelines))
}

// Pipeline parses the named pipeline definition.
func (f *File) Pipeline(name string) (*pipeline.Pipeline, error) {
	raw, ok := f.Pipelines[name]
	if !ok {
		return nil, fmt.Errorf("pipeline %q not defined", name)
	}
	p, err := pipeline.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}
	return p, nil
}

// Validate parses every pipeline definition and joins the failures.
func (f *File) Validate() error {
	var errs []error
	for _, name := range f.PipelineNames() {
		if _, err := f.Pipeline(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
