package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SylphxAI/reify/expr"
)

// Wire keys of operations and pipelines.
const (
	KeyDo     = "$do"
	KeyWith   = "$with"
	KeyAs     = "$as"
	KeyWhen   = "$when"
	KeyPipe   = "$pipe"
	KeyReturn = "$return"
)

// ErrInvalidOperation is returned when a wire document is not a valid
// operation or pipeline.
var ErrInvalidOperation = errors.New("invalid operation")

// ParseOperation converts {"$do", "$with"?, "$as"?, "$when"?} into an
// Operation.
func ParseOperation(raw map[string]any) (*Operation, error) {
	for k := range raw {
		switch k {
		case KeyDo, KeyWith, KeyAs, KeyWhen:
		default:
			return nil, fmt.Errorf("%w: unexpected key %q", ErrInvalidOperation, k)
		}
	}

	effect, ok := raw[KeyDo].(string)
	if !ok || effect == "" {
		return nil, fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidOperation, KeyDo)
	}
	op := &Operation{Effect: effect}

	args, err := expr.ParseObject(raw[KeyWith])
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %w", ErrInvalidOperation, KeyWith, effect, err)
	}
	op.Args = args

	if as, present := raw[KeyAs]; present {
		name, ok := as.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s of %q must be a string, got %T", ErrInvalidOperation, KeyAs, effect, as)
		}
		op.ResultName = name
	}

	if when, present := raw[KeyWhen]; present {
		cond, err := expr.Parse(when)
		if err != nil {
			return nil, fmt.Errorf("%w: %s of %q: %w", ErrInvalidOperation, KeyWhen, effect, err)
		}
		op.Condition = cond
	}
	return op, nil
}

// ParsePipeline converts {"$pipe": [...], "$return"?: {...}} into a Pipeline.
func ParsePipeline(raw map[string]any) (*Pipeline, error) {
	for k := range raw {
		if k != KeyPipe && k != KeyReturn {
			return nil, fmt.Errorf("%w: unexpected key %q in pipeline", ErrInvalidOperation, k)
		}
	}

	steps, ok := raw[KeyPipe].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list of operations", ErrInvalidOperation, KeyPipe)
	}
	p := &Pipeline{Steps: make([]*Operation, 0, len(steps))}
	for i, s := range steps {
		m, ok := s.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: step %d must be an object, got %T", ErrInvalidOperation, i, s)
		}
		op, err := ParseOperation(m)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		p.Steps = append(p.Steps, op)
	}

	if ret, present := raw[KeyReturn]; present {
		obj, err := expr.ParseObject(ret)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidOperation, KeyReturn, err)
		}
		p.Return = obj
	}
	return p, nil
}

// Parse accepts either wire shape and always returns a Pipeline; a single
// operation becomes a one-step pipeline. JSON text ([]byte, json.RawMessage
// or string) is decoded first.
func Parse(dsl any) (*Pipeline, error) {
	switch v := dsl.(type) {
	case *Pipeline:
		if v == nil {
			return nil, fmt.Errorf("%w: nil pipeline", ErrInvalidOperation)
		}
		return v, nil
	case *Operation:
		if v == nil {
			return nil, fmt.Errorf("%w: nil operation", ErrInvalidOperation)
		}
		return Single(v), nil
	case []byte:
		return parseJSON(v)
	case json.RawMessage:
		return parseJSON(v)
	case string:
		return parseJSON([]byte(v))
	case map[string]any:
		if _, ok := v[KeyPipe]; ok {
			return ParsePipeline(v)
		}
		if _, ok := v[KeyDo]; ok {
			op, err := ParseOperation(v)
			if err != nil {
				return nil, err
			}
			return Single(op), nil
		}
		return nil, fmt.Errorf("%w: expected %s or %s", ErrInvalidOperation, KeyDo, KeyPipe)
	}
	return nil, fmt.Errorf("%w: unsupported definition type %T", ErrInvalidOperation, dsl)
}

func parseJSON(data []byte) (*Pipeline, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	return Parse(raw)
}

// Encode converts a pipeline back into its wire form.
func (p *Pipeline) Encode() map[string]any {
	steps := make([]any, len(p.Steps))
	for i, op := range p.Steps {
		steps[i] = op.Encode()
	}
	out := map[string]any{KeyPipe: steps}
	if p.Return != nil {
		out[KeyReturn] = expr.EncodeObject(p.Return)
	}
	return out
}

// Encode converts an operation back into its wire form.
func (op *Operation) Encode() map[string]any {
	out := map[string]any{KeyDo: op.Effect}
	if op.Args.Len() > 0 {
		out[KeyWith] = expr.EncodeObject(op.Args)
	}
	if op.ResultName != "" {
		out[KeyAs] = op.ResultName
	}
	if op.Condition != nil {
		out[KeyWhen] = expr.Encode(op.Condition)
	}
	return out
}
