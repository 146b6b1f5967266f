package dwarfinfo

import (
	"debug/dwarf"
	"fmt"
	"sort"

	"github.com/traceline/dbg/addr"
)

// scope is one level of the DIE-tree walk: the enclosing function (nil at
// file scope), and the lexical block's own Range when the scope was
// opened by a TagLexDwarfBlock. The namespace path is tracked separately.
type scope struct {
	fn      *Function
	lexical bool
	r       Range
}

// loadUnits walks every compilation unit's DIE tree with a manual
// preorder traversal (debug/dwarf.Reader.Next returns entries in
// preorder with Entry.Children marking descent and a Tag-0 entry
// marking the end of each scope's children), collecting functions,
// their parameters and lexical-block-scoped locals, and namespace paths
// for variables nested in named modules, the way a DWARF consumer for a
// namespaced source language has to.
func (f *Facade) loadUnits() error {
	r := f.dwarf.Reader()

	var nsStack []string
	var scopeStack []scope
	var curCU dwarf.Offset

	for {
		entry, err := r.Next()
		if err != nil {
			return fmt.Errorf("dwarfinfo: walk DIE tree: %w", err)
		}
		if entry == nil {
			break
		}

		if entry.Tag == 0 {
			// End of a scope's children.
			if n := len(scopeStack); n > 0 {
				top := scopeStack[n-1]
				scopeStack = scopeStack[:n-1]
				if !top.lexical && top.fn == nil && len(nsStack) > 0 {
					nsStack = nsStack[:len(nsStack)-1]
				}
			}
			continue
		}

		// Record the namespace path in effect for every DIE, not only the
		// ones this walk otherwise cares about: the type graph (parsed
		// lazily, elsewhere, by offset) needs a struct/enum type DIE's
		// enclosing DW_TAG_namespace chain to recognize standard-library
		// container layouts (spec.md §4.5's "the DIE's namespace path").
		if len(nsStack) > 0 {
			f.typeNS[entry.Offset] = append([]string(nil), nsStack...)
		}

		var curFn *Function
		for i := len(scopeStack) - 1; i >= 0; i-- {
			if scopeStack[i].fn != nil {
				curFn = scopeStack[i].fn
				break
			}
		}

		switch entry.Tag {
		case dwarf.TagCompileUnit:
			curCU = entry.Offset
			if entry.Children {
				scopeStack = append(scopeStack, scope{})
			}

		case dwarf.TagNamespace:
			name, _ := entry.Val(dwarf.AttrName).(string)
			if entry.Children {
				nsStack = append(nsStack, name)
				scopeStack = append(scopeStack, scope{})
			}

		case dwarf.TagSubprogram:
			fn := &Function{
				Name:    attrString(entry, dwarf.AttrName),
				unitOff: curCU,
			}
			if rng, ok := pcRange(entry); ok {
				fn.Ranges = []Range{rng}
			}
			if fb, ok := entry.Val(dwarf.AttrFrameBase).([]byte); ok {
				fn.FrameBase = fb
			}
			if fn.Name != "" {
				f.functions = append(f.functions, fn)
				f.funcByName[fn.Name] = fn
			}
			if entry.Children {
				scopeStack = append(scopeStack, scope{fn: fn})
			}

		case dwarf.TagLexDwarfBlock:
			var r Range
			if rng, ok := pcRange(entry); ok {
				r = rng
			}
			if entry.Children {
				scopeStack = append(scopeStack, scope{fn: curFn, lexical: true, r: r})
			}

		case dwarf.TagFormalParameter:
			if curFn == nil {
				break
			}
			v := newVariableDIE(entry, nsStack, curCU)
			curFn.params = append(curFn.params, v)

		case dwarf.TagVariable:
			v := newVariableDIE(entry, nsStack, curCU)
			if curFn == nil {
				// File- or namespace-scope variable: spec.md §6's
				// find_variables(name) must see these too.
				f.globals = append(f.globals, v)
				break
			}
			var lr Range
			for i := len(scopeStack) - 1; i >= 0; i-- {
				if scopeStack[i].lexical {
					lr = scopeStack[i].r
					break
				}
			}
			curFn.locals = append(curFn.locals, v)
			curFn.localRanges = append(curFn.localRanges, lr)
		}

		if entry.Children {
			switch entry.Tag {
			case dwarf.TagCompileUnit, dwarf.TagNamespace, dwarf.TagSubprogram, dwarf.TagLexDwarfBlock:
				// scope already pushed above
			default:
				r.SkipChildren()
			}
		}
	}

	sort.Slice(f.functions, func(i, j int) bool {
		return f.functions[i].LowPC() < f.functions[j].LowPC()
	})
	return nil
}

func newVariableDIE(entry *dwarf.Entry, nsStack []string, unitOff dwarf.Offset) *VariableDIE {
	v := &VariableDIE{
		Name:    attrString(entry, dwarf.AttrName),
		unitOff: unitOff,
	}
	if len(nsStack) > 0 {
		v.Namespace = append([]string(nil), nsStack...)
	}
	if t, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		v.TypeRef = t
		v.HasType = true
	}
	if loc, ok := entry.Val(dwarf.AttrLocation).([]byte); ok {
		v.Location = loc
	}
	return v
}

func attrString(entry *dwarf.Entry, a dwarf.Attr) string {
	s, _ := entry.Val(a).(string)
	return s
}

// pcRange reads a DIE's low/high PC pair. AttrHighpc may be encoded
// either as an absolute address (older producers) or as an offset from
// AttrLowpc (DWARF4+, when the class is a constant rather than an
// address); debug/dwarf surfaces the raw value either way so the two
// forms are disambiguated by the Go type Val returns.
func pcRange(entry *dwarf.Entry) (Range, bool) {
	lowVal := entry.Val(dwarf.AttrLowpc)
	low, ok := lowVal.(uint64)
	if !ok {
		return Range{}, false
	}
	highField := entry.AttrField(dwarf.AttrHighpc)
	if highField == nil {
		return Range{}, false
	}
	var high uint64
	switch v := highField.Val.(type) {
	case uint64:
		high = v
	case int64:
		high = low + uint64(v)
	default:
		return Range{}, false
	}
	return Range{Begin: addr.Global(low), End: addr.Global(high)}, true
}
