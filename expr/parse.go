package expr

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Wire tags recognised by Parse.
const (
	TagInput    = "$input"
	TagRef      = "$ref"
	TagNow      = "$now"
	TagTemp     = "$temp"
	TagInc      = string(OpInc)
	TagDec      = string(OpDec)
	TagPush     = string(OpPush)
	TagPull     = string(OpPull)
	TagAddToSet = string(OpAddToSet)
	TagDefault  = string(OpDefault)
	TagIf       = "$if"
)

var tags = map[string]bool{
	TagInput: true, TagRef: true, TagNow: true, TagTemp: true,
	TagInc: true, TagDec: true, TagPush: true, TagPull: true,
	TagAddToSet: true, TagDefault: true, TagIf: true,
}

// IsTag reports whether key is a recognised expression tag.
func IsTag(key string) bool { return tags[key] }

// Parse converts a JSON-compatible value into an expression tree.
//
// A map with exactly one key that is a recognised tag becomes the tagged
// node; every other map is a plain Object, so documents such as
// {"$op": "create", "$type": "Session"} pass through as data.
func Parse(raw any) (Expr, error) {
	return parse(raw, "")
}

// ParseObject parses raw as an Object expression. A nil raw value yields an
// empty Object.
func ParseObject(raw any) (*Object, error) {
	if raw == nil {
		return NewObject(), nil
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidExpression, raw)
	}
	return parseObject(m, "")
}

func parse(raw any, at string) (Expr, error) {
	switch v := raw.(type) {
	case Expr:
		return v, nil
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Literal{Value: v}, nil
	case []any:
		return parseArray(v, at)
	case map[string]any:
		if len(v) == 1 {
			for k, inner := range v {
				if IsTag(k) {
					return parseTagged(k, inner, join(at, k))
				}
			}
		}
		return parseObject(v, at)
	}

	// Typed maps and slices coming from Go callers are handled reflectively.
	if m, ok := asMap(raw); ok {
		return parse(m, at)
	}
	if s, ok := asSlice(raw); ok {
		return parseArray(s, at)
	}
	return Literal{Value: raw}, nil
}

func parseObject(m map[string]any, at string) (*Object, error) {
	obj := &Object{Fields: make(map[string]Expr, len(m))}
	for k, v := range m {
		e, err := parse(v, join(at, k))
		if err != nil {
			return nil, err
		}
		obj.Fields[k] = e
	}
	return obj, nil
}

func parseArray(items []any, at string) (Array, error) {
	arr := Array{Items: make([]Expr, len(items))}
	for i, item := range items {
		e, err := parse(item, fmt.Sprintf("%s[%d]", at, i))
		if err != nil {
			return Array{}, err
		}
		arr.Items[i] = e
	}
	return arr, nil
}

func parseTagged(tag string, inner any, at string) (Expr, error) {
	switch tag {
	case TagInput, TagRef:
		path, ok := inner.(string)
		if !ok {
			return nil, invalid(at, "path must be a string, got %T", inner)
		}
		if tag == TagInput {
			return InputRef{Path: path}, nil
		}
		return ResultRef{Path: path}, nil
	case TagNow:
		return NowRef{}, nil
	case TagTemp:
		return TempRef{}, nil
	case TagInc, TagDec:
		if !isNumber(inner) {
			return nil, invalid(at, "amount must be a number, got %T", inner)
		}
		if tag == TagInc {
			return Inc{N: inner}, nil
		}
		return Dec{N: inner}, nil
	case TagPush, TagPull, TagAddToSet, TagDefault:
		value, err := parse(inner, at)
		if err != nil {
			return nil, err
		}
		switch tag {
		case TagPush:
			return Push{Value: value}, nil
		case TagPull:
			return Pull{Value: value}, nil
		case TagAddToSet:
			return AddToSet{Value: value}, nil
		default:
			return Default{Value: value}, nil
		}
	case TagIf:
		return parseConditional(inner, at)
	}
	return nil, invalid(at, "unknown tag %q", tag)
}

func parseConditional(inner any, at string) (Expr, error) {
	m, ok := asMap(inner)
	if !ok {
		return nil, invalid(at, "expected an object with cond/then/else, got %T", inner)
	}
	condRaw, ok := m["cond"]
	if !ok {
		return nil, invalid(at, "missing cond")
	}
	for k := range m {
		if k != "cond" && k != "then" && k != "else" {
			return nil, invalid(at, "unexpected key %q", k)
		}
	}

	var c Conditional
	var err error
	if c.Cond, err = parse(condRaw, join(at, "cond")); err != nil {
		return nil, err
	}
	if thenRaw, ok := m["then"]; ok {
		if c.Then, err = parse(thenRaw, join(at, "then")); err != nil {
			return nil, err
		}
	}
	if elseRaw, ok := m["else"]; ok {
		if c.Else, err = parse(elseRaw, join(at, "else")); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func invalid(at, format string, args ...any) error {
	return fmt.Errorf("%w at %s: %s", ErrInvalidExpression, at, fmt.Sprintf(format, args...))
}

func join(at, key string) string {
	if at == "" {
		return key
	}
	return at + "." + key
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}

// asMap accepts map[string]any and any other map keyed by strings.
func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSlice accepts []any and any other slice or array except []byte.
func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
