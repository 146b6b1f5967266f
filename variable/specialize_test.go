package variable

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/traceline/dbg/addr"
	"github.com/traceline/dbg/dwarfinfo"
)

// fakeSpecMemory is a flat byte buffer addressed starting at base, the
// same shape as the other packages' fake process memories but sized for
// the wider reads a container specialization makes.
type fakeSpecMemory struct {
	base uint64
	data []byte
}

func (m *fakeSpecMemory) ReadBytes(pid int, a uint64, n int) ([]byte, error) {
	if a < m.base || a+uint64(n) > m.base+uint64(len(m.data)) {
		return nil, fmt.Errorf("read [%#x,%#x) out of range", a, a+uint64(n))
	}
	off := a - m.base
	return m.data[off : off+uint64(n)], nil
}

func newCtxWithTypes() *EvalContext {
	return NewEvalContext(1, 0, 0, "rustc 1.78.0")
}

func putType(ctx *EvalContext, unit, id dwarfinfo.TypeID, t dwarfinfo.Type) {
	t.ID = id
	ctx.typeCache[cacheKey{unit: unit, ref: id}] = &t
}

func scalarU(v uint64) *IR { return &IR{NodeKind: KindScalar, ScalarValue: v} }

func TestSpecializeVecMaterializesItems(t *testing.T) {
	const base = 0x2000
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 10)
	binary.LittleEndian.PutUint32(data[4:], 20)
	binary.LittleEndian.PutUint32(data[8:], 30)
	mem := &fakeSpecMemory{base: base, data: data}
	b := &Builder{Mem: mem}
	ctx := newCtxWithTypes()
	putType(ctx, 0, 99, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encSigned})

	vecType := dwarfinfo.Type{
		ID:         5,
		Name:       "Vec<i32>",
		Namespace:  []string{"alloc", "vec"},
		TypeParams: map[string]dwarfinfo.TypeID{"T": 99},
	}
	bufIR := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "pointer", Value: &IR{NodeKind: KindPointer, Addr: addr.Relocated(base)}},
		{Name: "cap", Value: scalarU(3)},
	}}
	ir := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "buf", Value: bufIR},
		{Name: "len", Value: scalarU(3)},
	}}

	got := b.specialize(ctx, 0, vecType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecVector {
		t.Fatalf("expected a Vector specialization, got %+v", got)
	}
	if len(got.Specialized.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got.Specialized.Items))
	}
	for i, want := range []int64{10, 20, 30} {
		v, ok := got.Specialized.Items[i].ScalarValue.(int64)
		if !ok || v != want {
			t.Fatalf("item %d: got %v, want %d", i, got.Specialized.Items[i].ScalarValue, want)
		}
	}
}

func TestSpecializeVecDequeHonorsRingBuffer(t *testing.T) {
	const base = 0x3000
	data := make([]byte, 16) // capacity 4, each element 4 bytes
	binary.LittleEndian.PutUint32(data[0:], 100)
	binary.LittleEndian.PutUint32(data[4:], 200)
	binary.LittleEndian.PutUint32(data[8:], 300)
	binary.LittleEndian.PutUint32(data[12:], 400)
	mem := &fakeSpecMemory{base: base, data: data}
	b := &Builder{Mem: mem}
	ctx := newCtxWithTypes()
	putType(ctx, 0, 99, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encUnsigned})

	dqType := dwarfinfo.Type{
		ID:         6,
		Name:       "VecDeque<u32>",
		Namespace:  []string{"collections", "vec_deque"},
		TypeParams: map[string]dwarfinfo.TypeID{"T": 99},
	}
	bufIR := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "ptr", Value: &IR{NodeKind: KindPointer, Addr: addr.Relocated(base)}},
	}}
	// head=3, len=2: logical order should be data[3]=400 then data[0]=100
	ir := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "head", Value: scalarU(3)},
		{Name: "cap", Value: scalarU(4)},
		{Name: "buf", Value: bufIR},
		{Name: "len", Value: scalarU(2)},
	}}

	got := b.specialize(ctx, 0, dqType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecVecDeque {
		t.Fatalf("expected a VecDeque specialization, got %+v", got)
	}
	if len(got.Specialized.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Specialized.Items))
	}
	v0, _ := got.Specialized.Items[0].ScalarValue.(uint64)
	v1, _ := got.Specialized.Items[1].ScalarValue.(uint64)
	if v0 != 400 || v1 != 100 {
		t.Fatalf("expected ring order [400,100], got [%d,%d]", v0, v1)
	}
}

func TestSpecializeStringReusesVecBytes(t *testing.T) {
	items := []*IR{
		{NodeKind: KindScalar, ScalarValue: uint64('H')},
		{NodeKind: KindScalar, ScalarValue: uint64('i')},
	}
	vecField := &IR{NodeKind: KindSpecialized, Specialized: &Specialized{Kind: SpecVector, Items: items}}
	ir := &IR{NodeKind: KindStruct, Fields: []Field{{Name: "vec", Value: vecField}}}

	got := specializeString(ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecString {
		t.Fatalf("expected a String specialization, got %+v", got)
	}
	if !got.Specialized.HasText || got.Specialized.Text != "Hi" {
		t.Fatalf("expected text \"Hi\", got %q (hasText=%v)", got.Specialized.Text, got.Specialized.HasText)
	}
}

func TestSpecializeStrReadsBoundedMemory(t *testing.T) {
	const base = 0x4000
	mem := &fakeSpecMemory{base: base, data: []byte("hello")}
	b := &Builder{Mem: mem}
	ctx := newCtxWithTypes()

	ir := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "data_ptr", Value: &IR{NodeKind: KindPointer, Addr: addr.Relocated(base)}},
		{Name: "length", Value: scalarU(5)},
	}}
	strType := dwarfinfo.Type{ID: 7, Name: "&str"}

	got := b.specialize(ctx, 0, strType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecStr {
		t.Fatalf("expected a str specialization, got %+v", got)
	}
	if !got.Specialized.HasText || got.Specialized.Text != "hello" {
		t.Fatalf("expected text \"hello\", got %q", got.Specialized.Text)
	}
}

func TestSpecializeHashMapWalksSwissTable(t *testing.T) {
	const base = 0x5000
	const ctrlAddr = base + 0x20
	data := make([]byte, 0x24)
	// control bytes: live at bucket 0 and 2, empty (top bit set) elsewhere.
	data[0x20] = 0x00
	data[0x21] = 0x80
	data[0x22] = 0x00
	data[0x23] = 0x80
	// bucket 0's entry sits 1*entrySize(8) bytes before ctrlAddr.
	binary.LittleEndian.PutUint32(data[0x18:], 100) // key
	binary.LittleEndian.PutUint32(data[0x1c:], 200) // value
	// bucket 2's entry sits 3*entrySize bytes before ctrlAddr.
	binary.LittleEndian.PutUint32(data[0x08:], 300)
	binary.LittleEndian.PutUint32(data[0x0c:], 400)
	mem := &fakeSpecMemory{base: base, data: data}
	b := &Builder{Mem: mem}
	ctx := newCtxWithTypes()
	putType(ctx, 0, 10, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encSigned})
	putType(ctx, 0, 11, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encSigned})

	mapType := dwarfinfo.Type{
		ID:         8,
		Name:       "HashMap<K, V, S>",
		Namespace:  []string{"std", "collections", "hash", "map"},
		TypeParams: map[string]dwarfinfo.TypeID{"K": 10, "V": 11},
	}
	inner := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "bucket_mask", Value: scalarU(3)},
		{Name: "ctrl", Value: &IR{NodeKind: KindPointer, Addr: addr.Relocated(ctrlAddr)}},
	}}
	table := &IR{NodeKind: KindStruct, Fields: []Field{{Name: "table", Value: inner}}}
	ir := &IR{NodeKind: KindStruct, Fields: []Field{{Name: "table", Value: table}}}

	got := b.specialize(ctx, 0, mapType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecHashMap {
		t.Fatalf("expected a HashMap specialization, got %+v", got)
	}
	if len(got.Specialized.Pairs) != 2 {
		t.Fatalf("expected 2 live entries, got %d", len(got.Specialized.Pairs))
	}
	k0, _ := got.Specialized.Pairs[0].Key.ScalarValue.(int64)
	v0, _ := got.Specialized.Pairs[0].Value.ScalarValue.(int64)
	k1, _ := got.Specialized.Pairs[1].Key.ScalarValue.(int64)
	v1, _ := got.Specialized.Pairs[1].Value.ScalarValue.(int64)
	if k0 != 100 || v0 != 200 || k1 != 300 || v1 != 400 {
		t.Fatalf("unexpected entries: (%d,%d) (%d,%d)", k0, v0, k1, v1)
	}
}

func TestSpecializeCellSurfacesInnerValue(t *testing.T) {
	inner := scalarU(42)
	unsafeCell := &IR{NodeKind: KindStruct, Fields: []Field{{Name: "value", Value: inner}}}
	ir := &IR{NodeKind: KindStruct, Fields: []Field{{Name: "value", Value: unsafeCell}}}
	cellType := dwarfinfo.Type{ID: 12, Name: "Cell<i32>", Namespace: []string{"cell"}}

	b := &Builder{}
	ctx := newCtxWithTypes()
	got := b.specialize(ctx, 0, cellType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecCell {
		t.Fatalf("expected a Cell specialization, got %+v", got)
	}
	if got.Specialized.Value != inner {
		t.Fatalf("expected inner value to surface directly")
	}
}

func TestSpecializeRcSurfacesCountsWithoutDereferencing(t *testing.T) {
	ptrField := &IR{NodeKind: KindPointer, Type: 77, Addr: addr.Relocated(0x9000)}
	ir := &IR{NodeKind: KindStruct, Fields: []Field{
		{Name: "pointer", Value: ptrField},
		{Name: "strong", Value: scalarU(2)},
		{Name: "weak", Value: scalarU(1)},
	}}
	rcType := dwarfinfo.Type{ID: 13, Name: "Rc<Inner>", Namespace: []string{"rc"}}

	b := &Builder{}
	ctx := newCtxWithTypes()
	got := b.specialize(ctx, 0, rcType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecRc {
		t.Fatalf("expected an Rc specialization, got %+v", got)
	}
	if got.Specialized.Strong != 2 || got.Specialized.Weak != 1 {
		t.Fatalf("unexpected counts: strong=%d weak=%d", got.Specialized.Strong, got.Specialized.Weak)
	}
	if got.Specialized.Pointee == nil || got.Specialized.Pointee.Addr != addr.Relocated(0x9000) {
		t.Fatalf("expected the inner pointer surfaced, not dereferenced")
	}
}

func TestSpecializeUUIDKeepsRawBytes(t *testing.T) {
	var items []*IR
	for i := 0; i < 16; i++ {
		items = append(items, scalarU(uint64(i)))
	}
	ir := &IR{NodeKind: KindStruct, Fields: []Field{{Name: "bytes", Value: &IR{NodeKind: KindArray, Items: items}}}}
	uuidType := dwarfinfo.Type{ID: 14, Name: "Uuid", Namespace: []string{"uuid"}}

	b := &Builder{}
	ctx := newCtxWithTypes()
	got := b.specialize(ctx, 0, uuidType, ir)
	if got.NodeKind != KindSpecialized || got.Specialized.Kind != SpecUUID {
		t.Fatalf("expected a UUID specialization, got %+v", got)
	}
	for i := 0; i < 16; i++ {
		if got.Specialized.Bytes[i] != byte(i) {
			t.Fatalf("byte %d: got %d, want %d", i, got.Specialized.Bytes[i], i)
		}
	}
}

func TestDereferenceRenamesAndReadsPointee(t *testing.T) {
	const addrVal = 0x6000
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 42)
	mem := &fakeSpecMemory{base: addrVal, data: data}
	b := &Builder{Mem: mem}
	ctx := newCtxWithTypes()
	putType(ctx, 0, 20, dwarfinfo.Type{Kind: dwarfinfo.KindPointer, TargetType: 21})
	putType(ctx, 0, 21, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encSigned})

	ptrIR := &IR{NodeKind: KindPointer, Type: 20, Addr: addr.Relocated(addrVal), ID: Identity{Name: "p", HasName: true}}
	got, ok := b.Dereference(ctx, 0, ptrIR)
	if !ok {
		t.Fatal("expected Dereference to succeed")
	}
	if got.ID.Name != "*p" {
		t.Fatalf("expected renamed identity \"*p\", got %q", got.ID.Name)
	}
	v, _ := got.ScalarValue.(int64)
	if v != 42 {
		t.Fatalf("expected dereferenced value 42, got %v", got.ScalarValue)
	}
}

func TestDereferenceRefusesFunctionPointers(t *testing.T) {
	b := &Builder{}
	ctx := newCtxWithTypes()
	ptrIR := &IR{NodeKind: KindPointer, IsFnPtr: true, Addr: addr.Relocated(0x7000)}
	if _, ok := b.Dereference(ctx, 0, ptrIR); ok {
		t.Fatal("expected Dereference to refuse a function pointer")
	}
}

func TestSliceChunksIntoItems(t *testing.T) {
	const base = 0x6000
	data := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(10*(i+1)))
	}
	mem := &fakeSpecMemory{base: base, data: data}
	b := &Builder{Mem: mem}
	ctx := newCtxWithTypes()
	putType(ctx, 0, 20, dwarfinfo.Type{Kind: dwarfinfo.KindPointer, TargetType: 21})
	putType(ctx, 0, 21, dwarfinfo.Type{Kind: dwarfinfo.KindScalar, ByteSize: 4, Encoding: encUnsigned})

	ptrIR := &IR{NodeKind: KindPointer, Type: 20, Addr: addr.Relocated(base)}
	got, ok := b.Slice(ctx, 0, ptrIR, 1, 3)
	if !ok {
		t.Fatal("expected Slice to succeed")
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	v0, _ := got.Items[0].ScalarValue.(uint64)
	v1, _ := got.Items[1].ScalarValue.(uint64)
	if v0 != 20 || v1 != 30 {
		t.Fatalf("expected [20,30], got [%d,%d]", v0, v1)
	}
}

func TestContainsSeqMatchesContiguousRun(t *testing.T) {
	ns := []string{"std", "collections", "hash", "map"}
	if !containsSeq(ns, "hash", "map") {
		t.Fatal("expected containment of a contiguous run")
	}
	if containsSeq(ns, "hash", "set") {
		t.Fatal("expected no containment of a non-matching run")
	}
	if containsSeq(ns, "collections", "map") {
		t.Fatal("expected no containment of a non-contiguous run")
	}
}

func TestRustcAtLeast(t *testing.T) {
	cases := []struct {
		version string
		want    bool
	}{
		{"rustc 1.77.0 (aedd173a2 2024-03-17)", true},
		{"rustc 1.76.0", false},
		{"rustc 1.80.1", true},
		{"garbage", false},
	}
	for _, c := range cases {
		if got := rustcAtLeast(c.version, 1, 77); got != c.want {
			t.Errorf("rustcAtLeast(%q): got %v, want %v", c.version, got, c.want)
		}
	}
}
