package expr

// Encode converts an expression tree back into its JSON-compatible wire form.
// Parse(Encode(e)) yields an equivalent tree.
func Encode(e Expr) any {
	switch n := e.(type) {
	case nil:
		return nil
	case Literal:
		return n.Value
	case InputRef:
		return map[string]any{TagInput: n.Path}
	case ResultRef:
		return map[string]any{TagRef: n.Path}
	case NowRef:
		return map[string]any{TagNow: true}
	case TempRef:
		return map[string]any{TagTemp: true}
	case Inc:
		return map[string]any{TagInc: n.N}
	case Dec:
		return map[string]any{TagDec: n.N}
	case Push:
		return map[string]any{TagPush: Encode(n.Value)}
	case Pull:
		return map[string]any{TagPull: Encode(n.Value)}
	case AddToSet:
		return map[string]any{TagAddToSet: Encode(n.Value)}
	case Default:
		return map[string]any{TagDefault: Encode(n.Value)}
	case Conditional:
		body := map[string]any{"cond": Encode(n.Cond)}
		if n.Then != nil {
			body["then"] = Encode(n.Then)
		}
		if n.Else != nil {
			body["else"] = Encode(n.Else)
		}
		return map[string]any{TagIf: body}
	case *Object:
		return EncodeObject(n)
	case Array:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			out[i] = Encode(item)
		}
		return out
	}
	return nil
}

// EncodeObject converts an Object into a wire map. A nil Object encodes as
// an empty map.
func EncodeObject(o *Object) map[string]any {
	out := make(map[string]any, o.Len())
	if o == nil {
		return out
	}
	for k, v := range o.Fields {
		out[k] = Encode(v)
	}
	return out
}
