package expr

import (
	"strconv"
	"strings"
)

// Lookup walks a dotted path through nested maps and sequences. Numeric
// segments index into sequences. Any absent key, out-of-range index or
// attempt to descend into a scalar yields (Undefined, false). An empty path
// returns root itself.
func Lookup(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	var current any = root
	for _, part := range strings.Split(path, ".") {
		next, ok := step(current, part)
		if !ok {
			return Undefined, false
		}
		current = next
	}
	return current, true
}

func step(current any, part string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		val, ok := v[part]
		return val, ok
	case []any:
		return index(v, part)
	case nil, undefined:
		return nil, false
	}
	if m, ok := asMap(current); ok {
		val, ok := m[part]
		return val, ok
	}
	if s, ok := asSlice(current); ok {
		return index(s, part)
	}
	return nil, false
}

func index(items []any, part string) (any, bool) {
	i, err := strconv.Atoi(part)
	if err != nil || i < 0 || i >= len(items) {
		return nil, false
	}
	return items[i], true
}

// head returns the first segment of a dotted path.
func head(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
