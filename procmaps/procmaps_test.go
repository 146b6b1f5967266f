package procmaps

import "testing"

func TestParseLine(t *testing.T) {
	line := "00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/dbus-daemon"
	e, ok, err := parseLine(line)
	if err != nil || !ok {
		t.Fatalf("parseLine: ok=%v err=%v", ok, err)
	}
	if e.Start != 0x400000 || e.End != 0x452000 {
		t.Fatalf("unexpected bounds: %#x-%#x", e.Start, e.End)
	}
	if e.FilePath != "/usr/bin/dbus-daemon" {
		t.Fatalf("unexpected path: %q", e.FilePath)
	}
}

func TestParseLineAnonymous(t *testing.T) {
	line := "7f1234500000-7f1234521000 rw-p 00000000 00:00 0"
	e, ok, err := parseLine(line)
	if err != nil || !ok {
		t.Fatalf("parseLine: ok=%v err=%v", ok, err)
	}
	if e.FilePath != "" {
		t.Fatalf("expected no file path for anonymous mapping, got %q", e.FilePath)
	}
}

func TestLowestMapping(t *testing.T) {
	entries := []Entry{
		{Start: 0x600000, End: 0x601000, FilePath: "/bin/prog"},
		{Start: 0x400000, End: 0x500000, FilePath: "/bin/prog"},
		{Start: 0x100000, End: 0x200000, FilePath: "/lib/other.so"},
	}
	best, ok := LowestMapping(entries, "/bin/prog")
	if !ok || best.Start != 0x400000 {
		t.Fatalf("expected lowest mapping at 0x400000, got %#x ok=%v", best.Start, ok)
	}
}
