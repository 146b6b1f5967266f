package dwarfinfo

import "debug/dwarf"

// TypeID is the opaque identity type graph nodes are addressed by.
// spec.md §9 requires cycles to be handled by identity lookup into a
// {identity → node} map rather than direct pointers between nodes; a
// DWARF DIE's section offset is already a stable, comparable identity, so
// it is reused here instead of minting a new one.
type TypeID = dwarf.Offset

// Kind discriminates the type-graph node shapes of spec.md §3.
type Kind int

const (
	KindScalar Kind = iota
	KindStruct
	KindArray
	KindCEnum
	KindTaggedEnum
	KindPointer
	KindSubroutine
	KindModified
)

// CModifier is the flavor of a Modified type-graph node.
type CModifier int

const (
	ModifierConst CModifier = iota
	ModifierVolatile
	ModifierTypedef
)

// Member is one field of a Structure node: a name, a type reference, and
// an offset, which may be a compile-time constant or (rarely) a location
// expression that needs the parent's own bytes to evaluate.
type Member struct {
	Name        string
	Type        TypeID
	OffsetConst *int64
	OffsetExpr  []byte
}

// TaggedVariant is one arm of a Tagged-enum node: the discriminator value
// that selects it, and the structure member holding its payload.
type TaggedVariant struct {
	DiscrValue int64
	Payload    Member
}

// Type is one node of the external type graph spec.md §3 describes.
// Only the fields relevant to Kind are meaningful; this mirrors the
// tagged-variant shape of the original's TypeDeclaration enum, flattened
// into one struct because Go lacks sum types.
type Type struct {
	ID       TypeID
	Kind     Kind
	Name     string
	ByteSize int64
	// Namespace is the DW_TAG_namespace chain enclosing this type's DIE,
	// outermost first (e.g. ["alloc", "vec"] for alloc::vec::Vec<T>).
	// Empty for file-scope types. Used alongside Name by the variable
	// builder's container-specialization registry (spec.md §4.5).
	Namespace []string

	// KindScalar
	Encoding int64 // a DW_ATE_* constant

	// KindStruct
	Members    []Member
	TypeParams map[string]TypeID

	// KindArray
	ElemType    TypeID
	LowerBound  int64
	UpperBound  int64 // exclusive; HasUpperBound distinguishes "0" from "unknown"
	HasUpperBound bool

	// KindCEnum
	DiscrType TypeID
	Variants  map[int64]string

	// KindTaggedEnum
	DiscrMember string
	TaggedArms  []TaggedVariant

	// KindPointer, KindModified
	TargetType TypeID
	Modifier   CModifier

	// KindSubroutine
	ReturnType TypeID
}
