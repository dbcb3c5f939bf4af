// Package plugin defines the effect-handler contract and the registry that
// maps a namespace to the set of handlers a plugin provides.
package plugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/SylphxAI/reify/expr"
)

// CoreNamespace is used for effects named without a namespace, e.g. "set".
const CoreNamespace = "core"

// EffectHandler performs one effect. args are fully resolved; ec gives
// access to the run input, a snapshot of results, the run clock, temp ids
// and ad hoc resolution. The call blocks until the effect completes.
type EffectHandler func(ctx context.Context, args map[string]any, ec *expr.EvalContext) (any, error)

// Plugin is a named set of effect handlers.
type Plugin struct {
	Namespace string
	Effects   map[string]EffectHandler
}

// Validate checks that the plugin can be registered.
func (p Plugin) Validate() error {
	if p.Namespace == "" {
		return fmt.Errorf("plugin namespace is required")
	}
	if strings.Contains(p.Namespace, ".") {
		return fmt.Errorf("plugin namespace %q must not contain '.'", p.Namespace)
	}
	for name, h := range p.Effects {
		if name == "" {
			return fmt.Errorf("plugin %q: effect name must not be empty", p.Namespace)
		}
		if h == nil {
			return fmt.Errorf("plugin %q: effect %q has a nil handler", p.Namespace, name)
		}
	}
	return nil
}

// SplitEffect splits a qualified effect name on its first '.'. A name
// without a namespace belongs to CoreNamespace.
func SplitEffect(effect string) (namespace, name string) {
	ns, name, ok := strings.Cut(effect, ".")
	if !ok {
		return CoreNamespace, effect
	}
	return ns, name
}
