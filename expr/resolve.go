package expr

import "fmt"

// ResolveValue parses raw from the wire format and resolves it against c.
func ResolveValue(raw any, c *EvalContext) (any, error) {
	e, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Resolve(e, c)
}

// Resolve evaluates an expression tree into a concrete value.
//
// Resolution is a pure function of the tree and the context except for $now
// (clock) and $temp, which advances the context's generator once per
// evaluation. Conditionals resolve only the selected branch.
func Resolve(e Expr, c *EvalContext) (any, error) {
	if c == nil {
		c = NewEvalContext(nil, nil)
	}
	switch n := e.(type) {
	case nil:
		return Undefined, nil
	case Literal:
		return n.Value, nil
	case InputRef:
		v, _ := Lookup(c.input, n.Path)
		return v, nil
	case ResultRef:
		if c.strict {
			if _, ok := c.results[head(n.Path)]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnresolvedRef, n.Path)
			}
		}
		v, _ := Lookup(c.results, n.Path)
		return v, nil
	case NowRef:
		return c.Now(), nil
	case TempRef:
		return c.TempID(), nil
	case Inc:
		return Marker{Op: OpInc, Value: n.N}, nil
	case Dec:
		return Marker{Op: OpDec, Value: n.N}, nil
	case Push:
		return resolveMarker(OpPush, n.Value, c)
	case Pull:
		return resolveMarker(OpPull, n.Value, c)
	case AddToSet:
		return resolveMarker(OpAddToSet, n.Value, c)
	case Default:
		if c.keepDefaults {
			return resolveMarker(OpDefault, n.Value, c)
		}
		return Resolve(n.Value, c)
	case Conditional:
		cond, err := Resolve(n.Cond, c)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return Resolve(n.Then, c)
		}
		if n.Else == nil {
			return Undefined, nil
		}
		return Resolve(n.Else, c)
	case *Object:
		return ResolveObject(n, c)
	case Array:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			v, err := Resolve(item, c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported node %T", ErrInvalidExpression, e)
}

// ResolveObject resolves every field of o. A nil Object resolves to an empty
// map.
func ResolveObject(o *Object, c *EvalContext) (map[string]any, error) {
	out := make(map[string]any, o.Len())
	if o == nil {
		return out, nil
	}
	for k, field := range o.Fields {
		v, err := Resolve(field, c)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func resolveMarker(op MarkerOp, value Expr, c *EvalContext) (any, error) {
	v, err := Resolve(value, c)
	if err != nil {
		return nil, err
	}
	return Marker{Op: op, Value: v}, nil
}
