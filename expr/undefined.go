package expr

// undefined is the type of the "missing" value.
type undefined struct{}

// Undefined is the value produced by a reference to an absent path, a
// conditional without a taken branch, and a skipped step's result. It is
// distinct from an explicit null.
var Undefined any = undefined{}

// IsUndefined reports whether v is the missing value.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

func (undefined) String() string { return "undefined" }

// MarshalJSON encodes the missing value as null.
func (undefined) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}
