package variable

import (
	"fmt"
	"math"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/arch"
	"github.com/traceline/dbg/dwarfinfo"
	"github.com/traceline/dbg/errkind"
)

// Basic type encodings for DW_AT_encoding, spec.md §4.5's "(encoding,
// byte-size) pairs". debug/dwarf keeps its own copy of these unexported,
// so this package keeps its own: they are DWARF standard constants, not
// teacher-specific code.
const (
	encAddress      = 0x01
	encBoolean      = 0x02
	encFloat        = 0x04
	encSigned       = 0x05
	encSignedChar   = 0x06
	encUnsigned     = 0x07
	encUnsignedChar = 0x08
	encUTF          = 0x10
	encUCS          = 0x11
	encASCII        = 0x12
)

// Memory is the subset of the process facility the builder needs to read
// a variable's bytes.
type Memory interface {
	ReadBytes(pid int, a uint64, n int) ([]byte, error)
}

// Registers is the subset of the process facility the builder needs to
// read a register-resident variable, or the registers that seed a frame.
type Registers interface {
	GetRegs(pid int) (map[int]uint64, error)
}

// CFAProvider supplies the Canonical Frame Address for a thread, so the
// builder can evaluate DW_OP_fbreg/DW_OP_call_frame_cfa location
// expressions without depending on the unwind package directly.
type CFAProvider interface {
	CFA(tid int, pc addr.Global) (addr.Relocated, error)
}

// EvalContext is the per-read evaluation context of spec.md §4.5: focus
// thread, its PC and the mapping offset, and source-language toolchain
// version (for the thread-local version guard), plus the type cache a single
// read_variable/read_local_variables call shares across member lookups.
type EvalContext struct {
	Tid             int
	PC              addr.Global
	Offset          uint64
	CompilerVersion string

	typeCache map[cacheKey]*dwarfinfo.Type
}

type cacheKey struct {
	unit dwarfinfo.TypeID
	ref  dwarfinfo.TypeID
}

// NewEvalContext builds an EvalContext for one inspection call.
func NewEvalContext(tid int, pc addr.Global, offset uint64, compilerVersion string) *EvalContext {
	return &EvalContext{Tid: tid, PC: pc, Offset: offset, CompilerVersion: compilerVersion, typeCache: make(map[cacheKey]*dwarfinfo.Type)}
}

// Builder is the variable IR builder. The zero value is not usable;
// construct with New.
type Builder struct {
	Mem  Memory
	Regs Registers
	CFA  CFAProvider
	DI   *dwarfinfo.Facade
}

// New constructs a Builder over the given collaborators.
func New(mem Memory, regs Registers, cfa CFAProvider, di *dwarfinfo.Facade) *Builder {
	return &Builder{Mem: mem, Regs: regs, CFA: cfa, DI: di}
}

func (b *Builder) frameContext(ctx *EvalContext) (FrameContext, error) {
	regs, err := b.Regs.GetRegs(ctx.Tid)
	if err != nil {
		return FrameContext{}, fmt.Errorf("variable: get regs for tid %d: %w", ctx.Tid, err)
	}
	fc := FrameContext{Regs: regs, Offset: ctx.Offset}
	cfa, err := b.CFA.CFA(ctx.Tid, ctx.PC)
	if err == nil {
		fc.CFA, fc.HaveCFA = uint64(cfa), true
	}
	fc.Mem = func(a uint64) (uint64, error) {
		bytes, err := b.Mem.ReadBytes(ctx.Tid, a, arch.PointerSize)
		if err != nil {
			return 0, err
		}
		return arch.Uint(bytes), nil
	}
	return fc, nil
}

func (b *Builder) cachedType(ctx *EvalContext, unit, id dwarfinfo.TypeID) (dwarfinfo.Type, bool) {
	key := cacheKey{unit: unit, ref: id}
	if t, ok := ctx.typeCache[key]; ok {
		return *t, true
	}
	t, ok := b.DI.TypeByID(id)
	if !ok {
		return dwarfinfo.Type{}, false
	}
	ctx.typeCache[key] = &t
	return t, true
}

// BuildVariable implements spec.md §4.5's top-level entry point: resolve
// v's bytes against ctx's frame, then parse them against v's type.
func (b *Builder) BuildVariable(ctx *EvalContext, v *dwarfinfo.VariableDIE) *IR {
	id := Identity{Namespace: v.Namespace, Name: v.Name, HasName: v.Name != ""}
	if !v.HasType {
		return noValue(id, errkind.NewDecode(errkind.NoType, v.Name))
	}
	t, ok := b.cachedType(ctx, v.UnitID(), v.TypeRef)
	if !ok {
		return noValue(id, errkind.NewDecode(errkind.NoType, v.Name))
	}

	fc, err := b.frameContext(ctx)
	if err != nil {
		return noValue(id, errkind.NewDecode(errkind.NoData, err.Error()))
	}
	loc, err := EvalLocation(v.Location, fc)
	if err != nil {
		return noValue(id, errkind.NewDecode(errkind.NoData, err.Error()))
	}

	bytes, err := b.readLocation(ctx, loc, t.ByteSize)
	if err != nil {
		return noValue(id, errkind.NewDecode(errkind.NoData, err.Error()))
	}
	ir := b.parseType(ctx, v.UnitID(), t, bytes)
	ir.ID = id
	return ir
}

// readLocation reads exactly n bytes per spec.md §4.5 step 1: "word-
// aligned, taking only the requested number of bytes" when the value
// lives in memory; a register-resident value truncates the register's
// own 8-byte width to n bytes instead of touching memory at all.
func (b *Builder) readLocation(ctx *EvalContext, loc Location, n int64) ([]byte, error) {
	if n <= 0 {
		n = int64(arch.PointerSize)
	}
	if loc.StackValue {
		buf := make([]byte, 8)
		arch.ByteOrder.PutUint64(buf, loc.Value)
		if int64(len(buf)) > n {
			buf = buf[:n]
		}
		return buf, nil
	}
	if loc.InRegister {
		buf := make([]byte, 8)
		arch.ByteOrder.PutUint64(buf, loc.Value)
		if int64(len(buf)) > n {
			buf = buf[:n]
		}
		return buf, nil
	}
	return b.Mem.ReadBytes(ctx.Tid, loc.MemAddr, int(n))
}

func noValue(id Identity, err error) *IR {
	return &IR{NodeKind: KindNoValue, ID: id, Err: err}
}

// parseType implements spec.md §4.5 step 2: parse bytes recursively
// against t's type-graph node.
func (b *Builder) parseType(ctx *EvalContext, unit dwarfinfo.TypeID, t dwarfinfo.Type, data []byte) *IR {
	ir := &IR{TypeName: t.Name, Type: t.ID}
	switch t.Kind {
	case dwarfinfo.KindScalar:
		ir.NodeKind = KindScalar
		ir.ScalarValue = decodeScalar(t, data)

	case dwarfinfo.KindStruct:
		ir.NodeKind = KindStruct
		for _, m := range t.Members {
			off, ok := memberOffset(m, data)
			if !ok {
				ir.Fields = append(ir.Fields, Field{Name: m.Name, Value: noValue(Identity{Name: m.Name, HasName: true}, errkind.NewDecode(errkind.FieldNotFound, m.Name))})
				continue
			}
			mt, ok := b.cachedType(ctx, unit, m.Type)
			if !ok {
				ir.Fields = append(ir.Fields, Field{Name: m.Name, Value: noValue(Identity{Name: m.Name, HasName: true}, errkind.NewDecode(errkind.NoType, m.Name))})
				continue
			}
			size := typeStride(mt)
			if off < 0 || off+size > int64(len(data)) {
				ir.Fields = append(ir.Fields, Field{Name: m.Name, Value: noValue(Identity{Name: m.Name, HasName: true}, errkind.NewDecode(errkind.IncompleteInterp, m.Name))})
				continue
			}
			field := b.parseType(ctx, unit, mt, data[off:off+size])
			field.ID = Identity{Name: m.Name, HasName: true}
			ir.Fields = append(ir.Fields, Field{Name: m.Name, Value: field})
		}
		ir = b.specialize(ctx, unit, t, ir)

	case dwarfinfo.KindArray:
		ir.NodeKind = KindArray
		et, ok := b.cachedType(ctx, unit, t.ElemType)
		if !ok || !t.HasUpperBound {
			break
		}
		stride := typeStride(et)
		count := t.UpperBound - t.LowerBound
		for i := int64(0); i < count; i++ {
			start := i * stride
			if start+stride > int64(len(data)) {
				break
			}
			item := b.parseType(ctx, unit, et, data[start:start+stride])
			item.ID = Identity{Name: fmt.Sprintf("%d", i), HasName: true}
			ir.Items = append(ir.Items, item)
		}

	case dwarfinfo.KindCEnum:
		ir.NodeKind = KindCEnum
		dt, ok := b.cachedType(ctx, unit, t.DiscrType)
		var disc int64
		if ok {
			disc = scalarInt(dt, data)
		} else {
			disc = arch.Int(data)
		}
		if name, ok := t.Variants[disc]; ok {
			ir.EnumName = name
		} else {
			ir.EnumName = fmt.Sprintf("%d", disc)
		}

	case dwarfinfo.KindTaggedEnum:
		ir.NodeKind = KindTaggedEnum
		disc := findDiscrValue(b, ctx, unit, t, data)
		for _, arm := range t.TaggedArms {
			if arm.DiscrValue != disc {
				continue
			}
			ir.VariantName = arm.Payload.Name
			mt, ok := b.cachedType(ctx, unit, arm.Payload.Type)
			if ok {
				off, _ := memberOffset(arm.Payload, data)
				size := mt.ByteSize
				if off >= 0 && off+size <= int64(len(data)) {
					ir.Payload = b.parseType(ctx, unit, mt, data[off:off+size])
				}
			}
			break
		}
		if ir.VariantName == "" {
			ir.VariantName = fmt.Sprintf("variant(%d)", disc)
		}

	case dwarfinfo.KindPointer:
		ir.NodeKind = KindPointer
		ir.Addr = addr.Relocated(arch.Uint(data))
		if rt, ok := b.cachedType(ctx, unit, t.TargetType); ok && rt.Kind == dwarfinfo.KindSubroutine {
			ir.IsFnPtr = true
		}

	case dwarfinfo.KindSubroutine:
		ir.NodeKind = KindSubroutine
		ir.Addr = addr.Relocated(arch.Uint(data))

	case dwarfinfo.KindModified:
		ir.NodeKind = KindModified
		if mt, ok := b.cachedType(ctx, unit, t.TargetType); ok {
			ir.Inner = b.parseType(ctx, unit, mt, data)
		}

	default:
		ir.NodeKind = KindNoValue
		ir.Err = errkind.NewDecode(errkind.UnexpectedType, t.Name)
	}
	return ir
}

func findDiscrValue(b *Builder, ctx *EvalContext, unit dwarfinfo.TypeID, t dwarfinfo.Type, data []byte) int64 {
	if t.DiscrMember == "" {
		return arch.Int(data)
	}
	for _, m := range t.Members {
		if m.Name != t.DiscrMember {
			continue
		}
		off, ok := memberOffset(m, data)
		if !ok {
			continue
		}
		mt, ok := b.cachedType(ctx, unit, m.Type)
		size := int64(8)
		if ok {
			size = mt.ByteSize
		}
		if off < 0 || off+size > int64(len(data)) {
			continue
		}
		if ok {
			return scalarInt(mt, data[off:off+size])
		}
		return arch.Int(data[off : off+size])
	}
	return arch.Int(data)
}

// typeStride is the number of bytes a value of type t occupies when it is
// one element of a larger layout (a struct member or array/sequence
// element): a pointer's stride is the ABI pointer size regardless of what
// it points to, everything else is its own ByteSize.
func typeStride(t dwarfinfo.Type) int64 {
	if t.Kind == dwarfinfo.KindPointer {
		return arch.PointerSize
	}
	return t.ByteSize
}

func memberOffset(m dwarfinfo.Member, parentBytes []byte) (int64, bool) {
	if m.OffsetConst != nil {
		return *m.OffsetConst, true
	}
	if m.OffsetExpr != nil {
		off, err := EvalConstOffset(m.OffsetExpr)
		if err != nil {
			return 0, false
		}
		return off, true
	}
	return 0, true
}

func scalarInt(t dwarfinfo.Type, data []byte) int64 {
	if t.Encoding == encUnsigned || t.Encoding == encUnsignedChar || t.Encoding == encBoolean {
		return int64(arch.Uint(data))
	}
	return arch.Int(data)
}

// decodeScalar implements spec.md §4.5 step 2's scalar rules: decoded by
// (encoding, byte-size) pairs.
func decodeScalar(t dwarfinfo.Type, data []byte) any {
	switch t.Encoding {
	case encBoolean:
		return len(data) > 0 && data[0] != 0
	case encFloat:
		switch len(data) {
		case 4:
			return float64(math.Float32frombits(uint32(arch.Uint(data))))
		case 8:
			return math.Float64frombits(arch.Uint(data))
		}
		return 0.0
	case encSigned:
		if len(data) == 16 {
			return bigFromBytes(data, true)
		}
		return arch.Int(data)
	case encUnsigned, encAddress:
		if len(data) == 16 {
			return bigFromBytes(data, false)
		}
		return arch.Uint(data)
	case encSignedChar:
		return string(rune(arch.Int(data)))
	case encUnsignedChar:
		return string(rune(arch.Uint(data)))
	case encUTF, encUCS:
		if len(data) == 4 {
			return string(rune(arch.Uint(data)))
		}
		return arch.Uint(data)
	case encASCII:
		return string(rune(data[0]))
	default:
		return arch.Uint(data)
	}
}

