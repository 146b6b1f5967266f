package variable

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/dwarfinfo"
)

type fakeProcess struct {
	base uint64
	data []byte
	regs map[int]uint64
	cfa  addr.Relocated
}

func (p *fakeProcess) ReadBytes(pid int, a uint64, n int) ([]byte, error) {
	if a < p.base || a+uint64(n) > p.base+uint64(len(p.data)) {
		return nil, fmt.Errorf("read [%#x,%#x) out of range", a, a+uint64(n))
	}
	off := a - p.base
	return p.data[off : off+uint64(n)], nil
}

func (p *fakeProcess) GetRegs(pid int) (map[int]uint64, error) { return p.regs, nil }

func (p *fakeProcess) CFA(tid int, pc addr.Global) (addr.Relocated, error) { return p.cfa, nil }

// TestBuildVariableFbregScalar exercises the whole pipeline BuildVariable
// wires together: location-expression evaluation against a synthesized
// CFA, a bounded memory read sized by the resolved type, and scalar
// decode by (encoding, byte-size).
func TestBuildVariableFbregScalar(t *testing.T) {
	const cfa = 0x7000
	const valueAddr = cfa - 4
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 123)
	proc := &fakeProcess{base: valueAddr, data: data, regs: map[int]uint64{}, cfa: addr.Relocated(cfa)}

	di := &dwarfinfo.Facade{}
	b := New(proc, proc, proc, di)

	ctx := NewEvalContext(1, 0x1000, 0, "rustc 1.78.0")
	putType(ctx, 0, 21, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encSigned})

	v := &dwarfinfo.VariableDIE{
		Name:     "count",
		TypeRef:  21,
		HasType:  true,
		Location: []byte{0x91, 0x7c}, // DW_OP_fbreg -4
	}

	ir := b.BuildVariable(ctx, v)
	if ir.NodeKind != KindScalar {
		t.Fatalf("expected a scalar node, got kind %v (err=%v)", ir.NodeKind, ir.Err)
	}
	got, ok := ir.ScalarValue.(int64)
	if !ok || got != 123 {
		t.Fatalf("expected 123, got %v", ir.ScalarValue)
	}
	if !ir.ID.HasName || ir.ID.Name != "count" {
		t.Fatalf("unexpected identity: %+v", ir.ID)
	}
}

func TestBuildVariableNoTypeYieldsNoValue(t *testing.T) {
	di := &dwarfinfo.Facade{}
	b := New(&fakeProcess{}, &fakeProcess{}, &fakeProcess{}, di)
	ctx := NewEvalContext(1, 0, 0, "")
	v := &dwarfinfo.VariableDIE{Name: "x", HasType: false}

	ir := b.BuildVariable(ctx, v)
	if ir.NodeKind != KindNoValue {
		t.Fatalf("expected a no-value node for a typeless DIE, got %v", ir.NodeKind)
	}
	if ir.Err == nil {
		t.Fatal("expected a decode error to be recorded")
	}
}

// Of BuildVariable's struct path (location eval -> bounded read -> member
// decode -> specialize), the Vec/HashMap/etc. tests in specialize_test.go
// cover the specialize step, calling specialize directly on hand-built
// struct IR; no test here builds a struct-typed VariableDIE.
