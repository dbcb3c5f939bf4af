package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/SylphxAI/reify/expr"
)

// ErrInvalidPatch is returned when a marker cannot be applied to the
// current value of its field.
var ErrInvalidPatch = errors.New("invalid patch")

// Apply returns a copy of doc with patch applied field by field. Plain
// values replace the field and undefined values leave it untouched.
// Markers are applied to the current value:
//
//	$inc, $dec          add or subtract; a missing field counts as 0
//	$push               append the items
//	$pull               remove every element equal to an item
//	$addToSet           append the items not already present
//	$default            set only when the field is missing or null
//
// Arithmetic is done in float64, the number type of JSON documents.
func Apply(doc, patch Document) (Document, error) {
	out := maps.Clone(doc)
	if out == nil {
		out = make(Document, len(patch))
	}
	for _, field := range slices.Sorted(maps.Keys(patch)) {
		v := patch[field]
		if expr.IsUndefined(v) {
			continue
		}
		m, ok := expr.AsMarker(v)
		if !ok {
			out[field] = v
			continue
		}
		current, exists := out[field]
		next, err := applyMarker(m, current, exists)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		out[field] = next
	}
	return out, nil
}

func applyMarker(m expr.Marker, current any, exists bool) (any, error) {
	switch m.Op {
	case expr.OpInc, expr.OpDec:
		delta, ok := toFloat(m.Value)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a number, got %T", ErrInvalidPatch, m.Op, m.Value)
		}
		base := 0.0
		if exists && current != nil {
			if base, ok = toFloat(current); !ok {
				return nil, fmt.Errorf("%w: %s on non-numeric value %T", ErrInvalidPatch, m.Op, current)
			}
		}
		if m.Op == expr.OpDec {
			delta = -delta
		}
		return base + delta, nil

	case expr.OpPush:
		list, err := toList(m.Op, current)
		if err != nil {
			return nil, err
		}
		return append(list, m.Items()...), nil

	case expr.OpPull:
		list, err := toList(m.Op, current)
		if err != nil {
			return nil, err
		}
		items := m.Items()
		return slices.DeleteFunc(list, func(el any) bool {
			return slices.ContainsFunc(items, func(item any) bool { return equal(el, item) })
		}), nil

	case expr.OpAddToSet:
		list, err := toList(m.Op, current)
		if err != nil {
			return nil, err
		}
		for _, item := range m.Items() {
			if !slices.ContainsFunc(list, func(el any) bool { return equal(el, item) }) {
				list = append(list, item)
			}
		}
		return list, nil

	case expr.OpDefault:
		if exists && current != nil {
			return current, nil
		}
		return m.Value, nil
	}
	return nil, fmt.Errorf("%w: unknown marker %s", ErrInvalidPatch, m.Op)
}

// toList returns a copy of current as a list, empty when missing.
func toList(op expr.MarkerOp, current any) ([]any, error) {
	switch v := current.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return slices.Clone(v), nil
	}
	return nil, fmt.Errorf("%w: %s on non-list value %T", ErrInvalidPatch, op, current)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// equal compares by JSON form, so 1 and 1.0 match as they would once stored.
func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
