package idgen

import (
	"errors"
	"regexp"
	"testing"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]+$`)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateLength(t *testing.T) {
	g := New()
	for _, n := range []int{1, 2, 8, 12, 16, 32} {
		got := g.Generate(n)
		if len(got) != 2*n {
			t.Fatalf("Generate(%d) length = %d, want %d", n, len(got), 2*n)
		}
		if !hexRe.MatchString(got) {
			t.Fatalf("Generate(%d) = %q, want lowercase hex", n, got)
		}
	}
}

func TestGenerateClampsNonPositive(t *testing.T) {
	g := New()
	for _, n := range []int{0, -3} {
		if got := g.Generate(n); len(got) != 2 {
			t.Fatalf("Generate(%d) = %q, want 2 hex chars", n, got)
		}
	}
}

func TestGenerateSuccessiveCallsDiffer(t *testing.T) {
	g := New()
	a := g.Generate(DefaultPurchaserBytes)
	b := g.Generate(DefaultPurchaserBytes)
	if a == b {
		t.Fatalf("expected distinct identifiers, got %q twice", a)
	}
}

func TestGenerateWithSourceCrypto(t *testing.T) {
	g := New()
	_, src := g.GenerateWithSource(4)
	if src != SourceCrypto {
		t.Fatalf("source = %s, want %s", src, SourceCrypto)
	}
}

func TestGenerateFallsBackToPseudo(t *testing.T) {
	g := New(WithReader(failingReader{}))
	id, src := g.GenerateWithSource(8)
	if src != SourcePseudo {
		t.Fatalf("source = %s, want %s", src, SourcePseudo)
	}
	if len(id) != 16 || !hexRe.MatchString(id) {
		t.Fatalf("fallback id = %q, want 16 hex chars", id)
	}
	if other := g.Generate(8); other == id {
		t.Fatalf("fallback produced the same id twice: %q", id)
	}
}

func TestHex(t *testing.T) {
	if got := Hex(12); len(got) != 24 {
		t.Fatalf("Hex(12) length = %d, want 24", len(got))
	}
}
