package expr

import (
	"maps"
	"time"
)

// EvalContext is the environment an expression is resolved against: the
// run input, the results accumulated so far, the run clock and the temp-id
// generator. Effect handlers receive one and may call Resolve for ad hoc
// nested resolution.
//
// The results map is shared by reference with the run that created the
// context; View returns a fresh context over the same map.
type EvalContext struct {
	input        map[string]any
	results      map[string]any
	now          time.Time
	tempIDs      TempIDGenerator
	strict       bool
	keepDefaults bool
}

// Option configures an EvalContext.
type Option func(*EvalContext)

// WithNow fixes the timestamp returned for $now. The zero time means the
// wall clock.
func WithNow(t time.Time) Option {
	return func(c *EvalContext) { c.now = t }
}

// WithTempIDs sets the generator used for $temp. A nil generator keeps the
// context's own sequence.
func WithTempIDs(g TempIDGenerator) Option {
	return func(c *EvalContext) {
		if g != nil {
			c.tempIDs = g
		}
	}
}

// WithStrictRefs makes a $ref to a step without a result an error instead
// of the missing value.
func WithStrictRefs(strict bool) Option {
	return func(c *EvalContext) { c.strict = strict }
}

// WithDefaultMarkers keeps $default as a Marker in resolved output instead of
// unwrapping it, so the consuming handler can apply it only to undefined
// fields.
func WithDefaultMarkers(keep bool) Option {
	return func(c *EvalContext) { c.keepDefaults = keep }
}

// NewEvalContext creates a context over input and results. Nil maps are
// replaced with empty ones. Without WithTempIDs the context gets a private
// Sequence.
func NewEvalContext(input, results map[string]any, opts ...Option) *EvalContext {
	if input == nil {
		input = map[string]any{}
	}
	if results == nil {
		results = map[string]any{}
	}
	c := &EvalContext{input: input, results: results}
	for _, opt := range opts {
		opt(c)
	}
	if c.tempIDs == nil {
		c.tempIDs = NewSequence(DefaultTempPrefix)
	}
	return c
}

// View returns a new context sharing this one's input, results map, clock
// and generator.
func (c *EvalContext) View() *EvalContext {
	v := *c
	return &v
}

// Input returns the run input. Callers must not modify it.
func (c *EvalContext) Input() map[string]any { return c.input }

// Results returns a snapshot of the named results at call time.
func (c *EvalContext) Results() map[string]any { return maps.Clone(c.results) }

// Now returns the fixed run timestamp, or the current UTC time.
func (c *EvalContext) Now() time.Time {
	if !c.now.IsZero() {
		return c.now
	}
	return time.Now().UTC()
}

// TempID returns the next temp id.
func (c *EvalContext) TempID() string { return c.tempIDs.NextTempID() }

// TempIDs returns the generator backing TempID.
func (c *EvalContext) TempIDs() TempIDGenerator { return c.tempIDs }

// Resolve parses raw from the wire format and resolves it against c.
func (c *EvalContext) Resolve(raw any) (any, error) {
	return ResolveValue(raw, c)
}
