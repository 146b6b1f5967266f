package dwarfinfo

import (
	"debug/dwarf"
	"io"
	"sort"

	"github.com/traceline/dbg/addr"
)

// Place is a single row of a compilation unit's line-number program: an
// address bound to a source position, and whether that address is a
// recommended breakpoint location (spec.md §6's find_place_from_pc /
// find_stmt_line return type).
type Place struct {
	Address addr.Global
	File    string
	Line    uint64
	Column  uint64
	IsStmt  bool
}

// Next returns the Place immediately after p in program order within the
// same file, or false if p is the last place in that file's table
// (stepping algorithms use this to find "the next source line").
func (p Place) Next(f *Facade) (Place, bool) {
	rows := f.places[p.File]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Address > p.Address })
	if i >= len(rows) {
		return Place{}, false
	}
	return rows[i], true
}

// loadLines reads every compilation unit's line-number program into the
// Facade's place indices. It must run after loadUnits has at least
// established compile-unit boundaries, but only depends on the DWARF
// data directly so it can run standalone.
func (f *Facade) loadLines() error {
	r := f.dwarf.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			if entry.Children {
				r.SkipChildren()
			}
			continue
		}
		if err := f.loadCULines(entry); err != nil {
			return err
		}
		if entry.Children {
			r.SkipChildren()
		}
	}

	for file := range f.places {
		rows := f.places[file]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Address < rows[j].Address })
		f.places[file] = rows
	}
	sort.Slice(f.allPlaces, func(i, j int) bool { return f.allPlaces[i].Address < f.allPlaces[j].Address })
	return nil
}

func (f *Facade) loadCULines(cu *dwarf.Entry) error {
	lr, err := f.dwarf.LineReader(cu)
	if err != nil {
		return err
	}
	if lr == nil {
		return nil
	}
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if le.EndSequence {
			continue
		}
		place := Place{
			Address: addr.Global(le.Address),
			Line:    uint64(le.Line),
			Column:  uint64(le.Column),
			IsStmt:  le.IsStmt,
		}
		if le.File != nil {
			place.File = le.File.Name
		}
		f.places[place.File] = append(f.places[place.File], place)
		f.allPlaces = append(f.allPlaces, place)
	}
}

// FindPlaceFromPC implements spec.md §6's find_place_from_pc(global): the
// row of whichever file's line table has the greatest address not
// exceeding pc.
func (f *Facade) FindPlaceFromPC(pc addr.Global) (Place, bool) {
	i := sort.Search(len(f.allPlaces), func(i int) bool { return f.allPlaces[i].Address > pc })
	if i == 0 {
		return Place{}, false
	}
	return f.allPlaces[i-1], true
}

// FindStmtLine implements spec.md §6's find_stmt_line(file, line): among
// the recommended-breakpoint rows of file, those on the lowest line at or
// after the given line, and of those the lowest-addressed one.
func (f *Facade) FindStmtLine(file string, line uint64) (Place, bool) {
	rows := f.places[file]
	best := -1
	for i, p := range rows {
		if !p.IsStmt || p.Line < line {
			continue
		}
		if best == -1 || p.Line < rows[best].Line || (p.Line == rows[best].Line && p.Address < rows[best].Address) {
			best = i
		}
	}
	if best == -1 {
		return Place{}, false
	}
	return rows[best], true
}
