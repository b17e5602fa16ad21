package ids

import (
	"strings"
	"testing"
)

func TestNewIsUniqueAndTagged(t *testing.T) {
	t.Parallel()
	a := New(KindArtifact)
	b := New(KindArtifact)

	if a == b {
		t.Fatalf("New() produced duplicate ids: %q", a)
	}
	if !strings.HasPrefix(a, "art_") {
		t.Errorf("New(KindArtifact) = %q, want art_ prefix", a)
	}
}

func TestContentHashStableAcrossFieldOrder(t *testing.T) {
	t.Parallel()

	type pair struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}

	h1, err := ContentHash(pair{Name: "a", ID: "1"})
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	h2, err := ContentHash(pair{ID: "1", Name: "a"})
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}

	if h1 != h2 {
		t.Errorf("ContentHash not stable across construction order: %q != %q", h1, h2)
	}
}

func TestContentHashDiffersOnChange(t *testing.T) {
	t.Parallel()

	h1, _ := ContentHash(map[string]string{"a": "1"})
	h2, _ := ContentHash(map[string]string{"a": "2"})

	if h1 == h2 {
		t.Error("ContentHash should differ for different values")
	}
}

func TestHashBytesDeterministicAndDistinct(t *testing.T) {
	t.Parallel()

	data := []byte("hello\nworld\n")
	h1 := HashBytes(data)
	h2 := HashBytes(data)

	if h1 != h2 {
		t.Error("HashBytes should be deterministic")
	}
	if h1 == HashBytes([]byte("different")) {
		t.Error("HashBytes should differ for different inputs")
	}
}
