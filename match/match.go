package match

import (
	"math/big"

	"github.com/traceline/dbg/variable"
)

// Matches reports whether v matches lit, per spec.md §4.6's matching
// rules. Grounded on the original's VariableIR::match_literal: a node
// kind with no rule of its own (subroutine, a transparently modified
// type, an undecoded hole) never matches anything, mirroring the
// original's trailing `_ => false` arm.
func Matches(v *variable.IR, lit *Literal) bool {
	if v == nil || lit == nil {
		return false
	}
	switch v.NodeKind {
	case variable.KindScalar:
		return equalScalar(v.ScalarValue, lit)
	case variable.KindPointer:
		return lit.Kind == KindAddress && lit.Address == uint64(v.Addr)
	case variable.KindArray:
		return matchPositional(v.Items, lit)
	case variable.KindStruct:
		return matchStruct(v.Fields, lit)
	case variable.KindCEnum:
		return lit.Kind == KindEnumVariant && lit.VariantPayload == nil && v.EnumName == lit.VariantName
	case variable.KindTaggedEnum:
		return matchTaggedEnum(v, lit)
	case variable.KindSpecialized:
		return matchSpecialized(v.Specialized, lit)
	default:
		return false
	}
}

func matchTaggedEnum(v *variable.IR, lit *Literal) bool {
	if lit.Kind != KindEnumVariant || v.VariantName != lit.VariantName {
		return false
	}
	if lit.VariantPayload == nil {
		return true
	}
	return Matches(v.Payload, lit.VariantPayload)
}

// matchPositional implements "fixed array vs positional array" and,
// reused for struct-as-tuple, "structure vs positional array": lengths
// must match, each position matches per element, wildcards always match.
func matchPositional(items []*variable.IR, lit *Literal) bool {
	if lit.Kind != KindPositionalArray || len(lit.Items) != len(items) {
		return false
	}
	for i, item := range items {
		e := lit.Items[i]
		if e.Wildcard {
			continue
		}
		if !Matches(item, e.Value) {
			return false
		}
	}
	return true
}

func matchStruct(fields []variable.Field, lit *Literal) bool {
	switch lit.Kind {
	case KindPositionalArray:
		if len(lit.Items) != len(fields) {
			return false
		}
		for i, f := range fields {
			e := lit.Items[i]
			if e.Wildcard {
				continue
			}
			if !Matches(f.Value, e.Value) {
				return false
			}
		}
		return true
	case KindAssociativeArray:
		if len(lit.Fields) != len(fields) {
			return false
		}
		for _, f := range fields {
			e, ok := lit.Fields[f.Name]
			if !ok {
				return false
			}
			if e.Wildcard {
				continue
			}
			if !Matches(f.Value, e.Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// matchBag implements the set specializations' rule (spec.md §4.6):
// cardinalities must match; each item pairs with either a concrete
// literal, each consumable once, or failing that a wildcard. Any item
// left unpaired after the pass means no match.
func matchBag(items []*variable.IR, lit *Literal) bool {
	if lit.Kind != KindPositionalArray || len(lit.Items) != len(items) {
		return false
	}
	used := make([]bool, len(lit.Items))
	for _, item := range items {
		paired := -1
		for i, e := range lit.Items {
			if used[i] || e.Wildcard {
				continue
			}
			if Matches(item, e.Value) {
				paired = i
				break
			}
		}
		if paired == -1 {
			for i, e := range lit.Items {
				if !used[i] && e.Wildcard {
					paired = i
					break
				}
			}
		}
		if paired == -1 {
			return false
		}
		used[paired] = true
	}
	return true
}

func matchSpecialized(s *variable.Specialized, lit *Literal) bool {
	if s == nil {
		return false
	}
	switch s.Kind {
	case variable.SpecString, variable.SpecStr:
		return s.HasText && lit.Kind == KindString && s.Text == lit.String
	case variable.SpecUUID:
		return lit.Kind == KindString && s.RenderUUID() == lit.String
	case variable.SpecCell, variable.SpecRefCell:
		return Matches(s.Value, lit)
	case variable.SpecRc, variable.SpecArc:
		if s.Pointee == nil {
			return false
		}
		return lit.Kind == KindAddress && lit.Address == uint64(s.Pointee.Addr)
	case variable.SpecVector, variable.SpecVecDeque:
		return matchPositional(s.Items, lit)
	case variable.SpecHashSet, variable.SpecBTreeSet:
		return matchBag(s.Set, lit)
	default:
		return false
	}
}

// equalScalar implements "scalar vs numeric/boolean/string: compared
// after widening signed/unsigned to 64-bit where possible; char-scalars
// compare as one-character strings".
func equalScalar(value any, lit *Literal) bool {
	switch n := value.(type) {
	case int64:
		return lit.Kind == KindInt && lit.Int == n
	case uint64:
		return lit.Kind == KindInt && widensEqual(n, lit.Int)
	case float64:
		return lit.Kind == KindFloat && lit.Float == n
	case bool:
		return lit.Kind == KindBool && lit.Bool == n
	case string:
		return lit.Kind == KindString && lit.String == n
	case *big.Int:
		return lit.Kind == KindInt && n.Cmp(big.NewInt(lit.Int)) == 0
	default:
		return false
	}
}

// widensEqual compares an unsigned 64-bit scalar against a literal's
// int64 without sign-extension surprises for values above the int64
// range: a non-negative literal compares as unsigned, a negative one
// never equals an unsigned scalar.
func widensEqual(u uint64, litInt int64) bool {
	if litInt < 0 {
		return false
	}
	return u == uint64(litInt)
}
