package expr

import "errors"

// ErrInvalidExpression is returned when a wire value cannot be parsed into an
// expression tree.
var ErrInvalidExpression = errors.New("invalid expression")

// ErrUnresolvedRef is returned in strict mode when a result reference names a
// step that has not produced a value.
var ErrUnresolvedRef = errors.New("unresolved result reference")
