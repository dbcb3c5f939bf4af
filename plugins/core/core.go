// Package core provides the built-in "core" namespace, used for effects
// named without a namespace ("$do": "set").
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/itchyny/gojq"

	"github.com/SylphxAI/reify/expr"
	"github.com/SylphxAI/reify/plugin"
)

// ErrFailed is returned by the fail effect.
var ErrFailed = errors.New("pipeline failed")

// Option configures the core plugin.
type Option func(*effects)

// WithLogger sets the logger used by the log effect.
func WithLogger(l *slog.Logger) Option {
	return func(e *effects) {
		if l != nil {
			e.logger = l
		}
	}
}

type effects struct {
	logger *slog.Logger
	jq     cache[*gojq.Code]
	eval   cache[*vm.Program]
}

// New returns the core plugin with the effects set, log, jq, eval and fail.
func New(opts ...Option) plugin.Plugin {
	e := &effects{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return plugin.Plugin{
		Namespace: plugin.CoreNamespace,
		Effects: map[string]plugin.EffectHandler{
			"set":  e.set,
			"log":  e.log,
			"jq":   e.runJQ,
			"eval": e.runEval,
			"fail": e.fail,
		},
	}
}

// set returns its resolved arguments, so "$as" can name computed values.
func (e *effects) set(_ context.Context, args map[string]any, _ *expr.EvalContext) (any, error) {
	return maps.Clone(args), nil
}

// log writes "message" at "level" (default info) with the remaining
// arguments as attributes, and returns the message.
func (e *effects) log(ctx context.Context, args map[string]any, _ *expr.EvalContext) (any, error) {
	msg, _ := args["message"].(string)
	level := slog.LevelInfo
	if s, ok := args["level"].(string); ok && s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("log: invalid level %q", s)
		}
	}

	var attrs []any
	for _, k := range slices.Sorted(maps.Keys(args)) {
		if k == "message" || k == "level" {
			continue
		}
		attrs = append(attrs, k, args[k])
	}
	e.logger.Log(ctx, level, msg, attrs...)
	return msg, nil
}

// runJQ applies "expression" to "input", or to {input, results} of the run
// when no input is given. One output is returned as is, several as a list
// and none as nil.
func (e *effects) runJQ(_ context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	expression, _ := args["expression"].(string)
	if expression == "" {
		return nil, errors.New("jq: 'expression' is required")
	}
	code, err := e.jq.get(expression, compileJQ)
	if err != nil {
		return nil, err
	}

	input, ok := args["input"]
	if !ok {
		input = map[string]any{"input": ec.Input(), "results": ec.Results()}
	}
	// gojq only accepts JSON-shaped values; markers, times and typed maps
	// are normalized through their JSON form.
	normalized, err := normalizeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("jq: failed to normalize input: %w", err)
	}

	var results []any
	iter := code.Run(normalized)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq: expression error: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func compileJQ(expression string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq: invalid expression %q: %w", expression, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq: failed to compile expression %q: %w", expression, err)
	}
	return code, nil
}

// runEval evaluates "expression" with the variables input, results and now,
// plus any entries of the "vars" object.
func (e *effects) runEval(_ context.Context, args map[string]any, ec *expr.EvalContext) (any, error) {
	expression, _ := args["expression"].(string)
	if expression == "" {
		return nil, errors.New("eval: 'expression' is required")
	}
	program, err := e.eval.get(expression, compileEval)
	if err != nil {
		return nil, err
	}

	env := map[string]any{
		"input":   ec.Input(),
		"results": ec.Results(),
		"now":     ec.Now(),
	}
	if vars, ok := args["vars"].(map[string]any); ok {
		maps.Copy(env, vars)
	}
	out, err := exprlang.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return out, nil
}

func compileEval(expression string) (*vm.Program, error) {
	program, err := exprlang.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("eval: invalid expression %q: %w", expression, err)
	}
	return program, nil
}

// fail aborts the run with "message".
func (e *effects) fail(_ context.Context, args map[string]any, _ *expr.EvalContext) (any, error) {
	msg, _ := args["message"].(string)
	if strings.TrimSpace(msg) == "" {
		return nil, ErrFailed
	}
	return nil, fmt.Errorf("%w: %s", ErrFailed, msg)
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// cache keeps compiled programs by source text.
type cache[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func (c *cache[T]) get(src string, compile func(string) (T, error)) (T, error) {
	c.mu.RLock()
	v, ok := c.items[src]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := compile(src)
	if err != nil {
		return v, err
	}
	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]T)
	}
	c.items[src] = v
	c.mu.Unlock()
	return v, nil
}
