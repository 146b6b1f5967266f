package dwarfinfo

import (
	"debug/dwarf"
	"fmt"
)

// TypeByID implements spec.md §6's the external facade's type-graph
// lookup: a Type is parsed from its DIE on first request and cached
// under its TypeID (its DWARF section offset), which is also how the
// graph represents edges between types, so cycles (a struct containing
// a pointer to itself) resolve without recursion.
func (f *Facade) TypeByID(id TypeID) (Type, bool) {
	f.typeMu.Lock()
	defer f.typeMu.Unlock()
	if t, ok := f.types[id]; ok {
		return *t, true
	}
	t, err := f.parseType(id)
	if err != nil {
		return Type{}, false
	}
	f.types[id] = t
	return *t, true
}

// TypeName returns a type's DWARF name, or a synthesized one for
// anonymous modifier/pointer nodes.
func (f *Facade) TypeName(id TypeID) (string, bool) {
	t, ok := f.TypeByID(id)
	if !ok {
		return "", false
	}
	if t.Name != "" {
		return t.Name, true
	}
	switch t.Kind {
	case KindPointer:
		target, _ := f.TypeName(t.TargetType)
		return "*" + target, true
	case KindModified:
		target, _ := f.TypeName(t.TargetType)
		return target, true
	}
	return "", true
}

// TypeSize returns a type's size in bytes. ctx is accepted to match the
// external facade signature spec.md §6 describes (later callers may
// need an evaluation context to size a dynamically-sized DST); it is
// unused by this implementation since every type this parser produces
// already carries a static ByteSize.
func (f *Facade) TypeSize(ctx *EvalContext, id TypeID) (int64, bool) {
	t, ok := f.TypeByID(id)
	if !ok {
		return 0, false
	}
	if t.Kind == KindPointer {
		return 8, true
	}
	return t.ByteSize, true
}

// EvalContext is the (currently empty) evaluation context threaded
// through TypeSize for forward compatibility with dynamically-sized
// types; the variable builder passes its own context value through
// here unexamined.
type EvalContext struct{}

func (f *Facade) parseType(id TypeID) (*Type, error) {
	r := f.dwarf.Reader()
	r.Seek(id)
	entry, err := r.Next()
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.Offset != id {
		return nil, fmt.Errorf("dwarfinfo: no type DIE at offset %#x", id)
	}

	t := &Type{ID: id, Name: attrString(entry, dwarf.AttrName), Namespace: f.typeNS[id]}
	if bs, ok := entry.Val(dwarf.AttrByteSize).(int64); ok {
		t.ByteSize = bs
	}

	switch entry.Tag {
	case dwarf.TagBaseType:
		t.Kind = KindScalar
		if enc, ok := entry.Val(dwarf.AttrEncoding).(int64); ok {
			t.Encoding = enc
		}

	case dwarf.TagStructType, dwarf.TagUnionType, dwarf.TagClassType:
		if vp, ok := findVariantPart(r, entry); ok {
			return f.parseTaggedEnum(t, r, entry, vp)
		}
		t.Kind = KindStruct
		members, typeParams, err := readMembers(r, entry)
		if err != nil {
			return nil, err
		}
		t.Members = members
		t.TypeParams = typeParams

	case dwarf.TagArrayType:
		t.Kind = KindArray
		if et, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.ElemType = et
		}
		low, up, has, err := readSubrange(r, entry)
		if err != nil {
			return nil, err
		}
		t.LowerBound, t.UpperBound, t.HasUpperBound = low, up, has

	case dwarf.TagEnumerationType:
		t.Kind = KindCEnum
		if dt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.DiscrType = dt
		}
		variants, err := readEnumerators(r, entry)
		if err != nil {
			return nil, err
		}
		t.Variants = variants

	case dwarf.TagPointerType, dwarf.TagReferenceType:
		t.Kind = KindPointer
		if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.TargetType = tt
		}

	case dwarf.TagSubroutineType:
		t.Kind = KindSubroutine
		if rt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.ReturnType = rt
		}

	case dwarf.TagConstType:
		t.Kind, t.Modifier = KindModified, ModifierConst
		if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.TargetType = tt
		}

	case dwarf.TagVolatileType, dwarf.TagRestrictType:
		t.Kind, t.Modifier = KindModified, ModifierVolatile
		if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.TargetType = tt
		}

	case dwarf.TagTypedef:
		t.Kind, t.Modifier = KindModified, ModifierTypedef
		if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
			t.TargetType = tt
		}

	default:
		return nil, fmt.Errorf("dwarfinfo: unsupported type tag %v at %#x", entry.Tag, id)
	}
	return t, nil
}

// readMembers reads a struct/union/class DIE's direct TagMember and
// TagTemplateTypeParameter children.
func readMembers(r *dwarf.Reader, parent *dwarf.Entry) ([]Member, map[string]TypeID, error) {
	if !parent.Children {
		return nil, nil, nil
	}
	var members []Member
	var typeParams map[string]TypeID
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, nil, err
		}
		if entry == nil || entry.Tag == 0 {
			break
		}
		switch entry.Tag {
		case dwarf.TagMember:
			m := Member{Name: attrString(entry, dwarf.AttrName)}
			if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
				m.Type = tt
			}
			switch v := entry.Val(dwarf.AttrDataMemberLoc).(type) {
			case int64:
				m.OffsetConst = &v
			case []byte:
				m.OffsetExpr = v
			}
			members = append(members, m)
		case dwarf.TagTemplateTypeParameter:
			if typeParams == nil {
				typeParams = make(map[string]TypeID)
			}
			name := attrString(entry, dwarf.AttrName)
			if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
				typeParams[name] = tt
			}
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	return members, typeParams, nil
}

// findVariantPart reports whether parent directly contains a
// TagVariantPart child, the DWARF shape a tagged (Rust-style) enum
// compiles to, without consuming the reader permanently: it seeks back
// to parent's own children on miss so the caller's own member walk
// still sees every child.
func findVariantPart(r *dwarf.Reader, parent *dwarf.Entry) (*dwarf.Entry, bool) {
	if !parent.Children {
		return nil, false
	}
	r.Seek(parent.Offset)
	if _, err := r.Next(); err != nil {
		return nil, false
	}
	for {
		entry, err := r.Next()
		if err != nil || entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag == dwarf.TagVariantPart {
			vp := entry
			r.Seek(parent.Offset)
			r.Next()
			return vp, true
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	r.Seek(parent.Offset)
	r.Next()
	return nil, false
}

func (f *Facade) parseTaggedEnum(t *Type, r *dwarf.Reader, parent *dwarf.Entry, vpHint *dwarf.Entry) (*Type, error) {
	t.Kind = KindTaggedEnum
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag != dwarf.TagVariantPart {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}
		if discr, ok := entry.Val(dwarf.AttrDiscr).(dwarf.Offset); ok {
			if m, err := f.memberNameAt(discr); err == nil {
				t.DiscrMember = m
			}
		}
		if !entry.Children {
			continue
		}
		for {
			ventry, err := r.Next()
			if err != nil {
				return nil, err
			}
			if ventry == nil || ventry.Tag == 0 {
				break
			}
			if ventry.Tag != dwarf.TagVariant {
				if ventry.Children {
					r.SkipChildren()
				}
				continue
			}
			var discrVal int64
			if dv, ok := ventry.Val(dwarf.AttrDiscrValue).(int64); ok {
				discrVal = dv
			}
			if ventry.Children {
				member, err := readVariantMember(r)
				if err != nil {
					return nil, err
				}
				if member != nil {
					t.TaggedArms = append(t.TaggedArms, TaggedVariant{DiscrValue: discrVal, Payload: *member})
				}
			}
		}
	}
	return t, nil
}

func readVariantMember(r *dwarf.Reader) (*Member, error) {
	var m *Member
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag == dwarf.TagMember && m == nil {
			mm := Member{Name: attrString(entry, dwarf.AttrName)}
			if tt, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
				mm.Type = tt
			}
			if dv, ok := entry.Val(dwarf.AttrDataMemberLoc).(int64); ok {
				mm.OffsetConst = &dv
			}
			m = &mm
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	return m, nil
}

func (f *Facade) memberNameAt(id dwarf.Offset) (string, error) {
	r := f.dwarf.Reader()
	r.Seek(id)
	entry, err := r.Next()
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", fmt.Errorf("dwarfinfo: no DIE at %#x", id)
	}
	return attrString(entry, dwarf.AttrName), nil
}

func readSubrange(r *dwarf.Reader, parent *dwarf.Entry) (low, up int64, has bool, err error) {
	if !parent.Children {
		return 0, 0, false, nil
	}
	for {
		entry, nerr := r.Next()
		if nerr != nil {
			return 0, 0, false, nerr
		}
		if entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag == dwarf.TagSubrangeType {
			if lb, ok := entry.Val(dwarf.AttrLowerBound).(int64); ok {
				low = lb
			}
			if ub, ok := entry.Val(dwarf.AttrUpperBound).(int64); ok {
				up = ub + 1
				has = true
			} else if cnt, ok := entry.Val(dwarf.AttrCount).(int64); ok {
				up = low + cnt
				has = true
			}
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	return low, up, has, nil
}

func readEnumerators(r *dwarf.Reader, parent *dwarf.Entry) (map[int64]string, error) {
	if !parent.Children {
		return nil, nil
	}
	out := make(map[int64]string)
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil || entry.Tag == 0 {
			break
		}
		if entry.Tag == dwarf.TagEnumerator {
			name := attrString(entry, dwarf.AttrName)
			if cv, ok := entry.Val(dwarf.AttrConstValue).(int64); ok {
				out[cv] = name
			}
		}
		if entry.Children {
			r.SkipChildren()
		}
	}
	return out, nil
}
