// Package expr implements the value-expression grammar used by operations:
// literals, references into the run input and prior results, clock and
// temp-id references, update markers, conditionals, and plain objects and
// arrays that recurse over all of the above.
package expr

// Expr is a node of a value-expression tree. Exactly one concrete type applies
// per node.
type Expr interface {
	exprNode()
}

// Literal is a string, number, boolean or null that resolves to itself.
type Literal struct {
	Value any
}

// InputRef reads a dotted path from the run input.
type InputRef struct {
	Path string
}

// ResultRef reads a dotted path from the named results of earlier steps.
type ResultRef struct {
	Path string
}

// NowRef resolves to the run's fixed timestamp, or the wall clock.
type NowRef struct{}

// TempRef resolves to the next temp id of the run.
type TempRef struct{}

// Inc is an increment marker. N is carried to the handler unevaluated.
type Inc struct {
	N any
}

// Dec is a decrement marker. N is carried to the handler unevaluated.
type Dec struct {
	N any
}

// Push appends Value to a list field.
type Push struct {
	Value Expr
}

// Pull removes Value from a list field.
type Pull struct {
	Value Expr
}

// AddToSet appends Value to a list field when not already present.
type AddToSet struct {
	Value Expr
}

// Default carries a fallback value for a field.
type Default struct {
	Value Expr
}

// Conditional selects Then or Else by the truthiness of Cond. Else is nil
// when the branch was not given.
type Conditional struct {
	Cond Expr
	Then Expr
	Else Expr
}

// Object is a plain mapping whose fields are resolved one by one.
type Object struct {
	Fields map[string]Expr
}

// Array is a plain sequence whose items are resolved one by one.
type Array struct {
	Items []Expr
}

func (Literal) exprNode()     {}
func (InputRef) exprNode()    {}
func (ResultRef) exprNode()   {}
func (NowRef) exprNode()      {}
func (TempRef) exprNode()     {}
func (Inc) exprNode()         {}
func (Dec) exprNode()         {}
func (Push) exprNode()        {}
func (Pull) exprNode()        {}
func (AddToSet) exprNode()    {}
func (Default) exprNode()     {}
func (Conditional) exprNode() {}
func (*Object) exprNode()     {}
func (Array) exprNode()       {}

// NewObject returns an Object with an initialised field map.
func NewObject() *Object {
	return &Object{Fields: make(map[string]Expr)}
}

// Len reports the number of fields. A nil Object has none.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.Fields)
}
