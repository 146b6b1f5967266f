// Package match implements the pattern matcher of spec.md §4.6: it
// compares a variable IR value tree against a literal taken as given
// from the command parser. It is purely functional and issues no
// process reads, grounded on the original BugStalker debugger's
// VariableIR::match_literal and its Literal/LiteralOrWildcard grammar.
package match

// Kind discriminates the shapes a literal can take.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
	KindAddress
	KindEnumVariant
	KindPositionalArray
	KindAssociativeArray
)

// Literal is the flattened union of the command parser's literal
// grammar: an integer, float, boolean, string, raw address, enum
// variant (name plus an optional payload literal), positional array, or
// associative (field-name keyed) array.
type Literal struct {
	Kind Kind

	Int     int64
	Float   float64
	Bool    bool
	String  string
	Address uint64

	VariantName    string
	VariantPayload *Literal // nil means the variant carries no payload literal

	Items  []Elem          // KindPositionalArray
	Fields map[string]Elem // KindAssociativeArray
}

// Elem is one entry of a positional or associative array literal: either
// a concrete literal or a wildcard that matches anything.
type Elem struct {
	Wildcard bool
	Value    *Literal
}

// Lit wraps a literal as a non-wildcard array element.
func Lit(l *Literal) Elem { return Elem{Value: l} }

// Wildcard builds a wildcard array element.
func Wildcard() Elem { return Elem{Wildcard: true} }

func Int(n int64) *Literal     { return &Literal{Kind: KindInt, Int: n} }
func Float(f float64) *Literal { return &Literal{Kind: KindFloat, Float: f} }
func Bool(b bool) *Literal     { return &Literal{Kind: KindBool, Bool: b} }
func String(s string) *Literal { return &Literal{Kind: KindString, String: s} }
func Address(a uint64) *Literal {
	return &Literal{Kind: KindAddress, Address: a}
}

// EnumVariant builds an enum-variant literal. payload may be nil for a
// variant with no associated value.
func EnumVariant(name string, payload *Literal) *Literal {
	return &Literal{Kind: KindEnumVariant, VariantName: name, VariantPayload: payload}
}

func PositionalArray(items ...Elem) *Literal {
	return &Literal{Kind: KindPositionalArray, Items: items}
}

func AssociativeArray(fields map[string]Elem) *Literal {
	return &Literal{Kind: KindAssociativeArray, Fields: fields}
}
