package variable

import "testing"

func TestRenderUUIDRoundTrip(t *testing.T) {
	var want [16]byte
	for i := range want {
		want[i] = byte(i * 17)
	}
	s := &Specialized{Kind: SpecUUID, Bytes: want}
	rendered := s.RenderUUID()

	got, ok := parseUUID(rendered)
	if !ok {
		t.Fatalf("parseUUID(%q): not ok", rendered)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %v, want %v", got, want)
	}
}

func TestParseUUIDRejectsGarbage(t *testing.T) {
	if _, ok := parseUUID("not-a-uuid"); ok {
		t.Fatal("expected parseUUID to reject a non-UUID string")
	}
}

func TestBigFromBytesUnsigned(t *testing.T) {
	b := make([]byte, 16)
	b[0] = 0x01 // little-endian 1
	got := bigFromBytes(b, false)
	if got.Int64() != 1 {
		t.Fatalf("expected 1, got %s", got.String())
	}
}

func TestBigFromBytesSignedNegative(t *testing.T) {
	b := make([]byte, 16)
	for i := range b {
		b[i] = 0xff // -1 in two's complement
	}
	got := bigFromBytes(b, true)
	if got.Int64() != -1 {
		t.Fatalf("expected -1, got %s", got.String())
	}
}
