// Package variable implements the variable IR builder of spec.md §4.5:
// it turns a DWARF variable DIE plus a frame's memory and registers into
// a typed value tree, recognizing standard-library container layouts
// along the way. Grounded on golang-debug/program/server/dwarf.go's own
// location-expression evaluator (evalLocation/uleb128/sleb128), extended
// from its single DW_OP_call_frame_cfa/DW_OP_consts pair to the fuller
// opcode set spec.md's frame/register/memory evaluation needs, and on
// the original BugStalker debugger's VariableIR tagged-union shape
// (ScalarVariable, StructVariable, ArrayVariable, CEnumVariable,
// RustEnumVariable, PointerVariable, SpecializedVariableIR), flattened
// into one struct the way dwarfinfo.Type flattens its own type graph.
package variable

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/dwarfinfo"
)

// Kind discriminates the IR node shapes of spec.md §3's "Variable IR".
type Kind int

const (
	KindScalar Kind = iota
	KindStruct
	KindArray
	KindCEnum
	KindTaggedEnum
	KindPointer
	KindSubroutine
	KindSpecialized
	KindModified
	KindNoValue // a decode hole: isolates one member's failure (spec.md §7)
)

// Identity is a node's namespace path plus optional name, mirroring the
// original's VariableIdentity.
type Identity struct {
	Namespace []string
	Name      string
	HasName   bool
}

// Field is one named member of a Struct IR node.
type Field struct {
	Name  string
	Value *IR
}

// IR is one node of the variable value tree. Only the fields relevant to
// NodeKind are meaningful.
type IR struct {
	NodeKind Kind
	ID       Identity
	TypeName string
	Type     dwarfinfo.TypeID

	// KindScalar
	ScalarValue any // int64, uint64, float64, bool, string (one rune), *big.Int

	// KindStruct, KindTaggedEnum's Payload
	Fields []Field

	// KindArray
	Items []*IR

	// KindCEnum
	EnumName string

	// KindTaggedEnum
	VariantName string
	Payload     *IR

	// KindPointer
	Addr    addr.Relocated
	Deref   *IR // populated only by an explicit dereference, nil otherwise
	IsFnPtr bool

	// KindSpecialized
	Specialized *Specialized

	// KindModified
	Inner *IR

	// KindNoValue
	Err error
}

// SpecKind discriminates which standard-library container a Specialized
// node represents.
type SpecKind int

const (
	SpecString SpecKind = iota
	SpecStr
	SpecVector
	SpecVecDeque
	SpecHashMap
	SpecHashSet
	SpecBTreeMap
	SpecBTreeSet
	SpecCell
	SpecRefCell
	SpecRc
	SpecArc
	SpecTls
	SpecUUID
)

// KV is one key/value pair of a map specialization.
type KV struct {
	Key   *IR
	Value *IR
}

// Specialized is the flattened union of spec.md §3's container
// specializations. Only the fields for Kind are meaningful.
type Specialized struct {
	Kind     SpecKind
	Original *IR // the plain structure IR this replaced, kept for traversal

	// SpecString, SpecStr
	Text    string
	HasText bool

	// SpecVector, SpecVecDeque
	Items []*IR

	// SpecHashMap, SpecBTreeMap
	Pairs []KV

	// SpecHashSet, SpecBTreeSet
	Set []*IR

	// SpecCell, SpecRefCell, SpecTls
	Value *IR

	// SpecRc, SpecArc
	Pointee *IR
	Strong  uint64
	Weak    uint64

	// SpecUUID
	Bytes [16]byte
}

// RenderUUID produces the canonical dashed 36-character hex rendering of
// a UUID specialization's bytes, per spec.md §3's IR invariant. Grounded
// on the original's `uuid::Uuid::from_bytes(bytes)`; this port uses the
// ecosystem-standard github.com/google/uuid for the same purpose.
func (s *Specialized) RenderUUID() string {
	return uuid.UUID(s.Bytes).String()
}

// parseUUID reverses RenderUUID; the UUID round-trip test uses it to
// check that rendering loses no bytes.
func parseUUID(s string) ([16]byte, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, false
	}
	return [16]byte(id), true
}

// bigFromBytes decodes a 128-bit scalar from its raw little-endian bytes,
// signed or unsigned, for spec.md §4.5's "16-byte unsigned yields a
// 128-bit unsigned integer" rule.
func bigFromBytes(b []byte, signed bool) *big.Int {
	be := make([]byte, len(b))
	for i, c := range b {
		be[len(b)-1-i] = c
	}
	u := new(big.Int).SetBytes(be)
	if !signed {
		return u
	}
	if len(b) > 0 && b[len(b)-1]&0x80 != 0 {
		bound := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		u.Sub(u, bound)
	}
	return u
}
