package plugin

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNamespace matches any *UnknownNamespaceError.
	ErrUnknownNamespace = errors.New("unknown namespace")
	// ErrUnknownEffect matches any *UnknownEffectError.
	ErrUnknownEffect = errors.New("unknown effect")
)

// UnknownNamespaceError is returned when no plugin is registered for the
// namespace of an effect.
type UnknownNamespaceError struct {
	Namespace string
}

func (e *UnknownNamespaceError) Error() string {
	return fmt.Sprintf("unknown namespace %q: no plugin registered", e.Namespace)
}

func (e *UnknownNamespaceError) Is(target error) bool { return target == ErrUnknownNamespace }

// UnknownEffectError is returned when the namespace exists but has no
// handler for the effect. Effect is the fully qualified name.
type UnknownEffectError struct {
	Effect string
}

func (e *UnknownEffectError) Error() string {
	return fmt.Sprintf("unknown effect %q", e.Effect)
}

func (e *UnknownEffectError) Is(target error) bool { return target == ErrUnknownEffect }
