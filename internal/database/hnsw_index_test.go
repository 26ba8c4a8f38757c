package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-auth/internal/facematch"
)

func testIdentity(id string, seed float64) facematch.Identity {
	d := make(facematch.Descriptor, facematch.DescriptorSize)
	for i := range d {
		d[i] = seed + float64(i%7)*0.001
	}
	return facematch.Identity{ID: id, FullName: "User " + id, Email: id + "@example.com", Descriptor: facematch.Quantize(d)}
}

func TestHNSWIndex_Search(t *testing.T) {
	idx := NewHNSWIndex()
	idx.BuildFromIdentities([]facematch.Identity{
		testIdentity("a", 0.1),
		testIdentity("b", 0.5),
		testIdentity("c", 0.9),
	})

	if idx.Count() != 3 {
		t.Fatalf("expected 3 identities, got %d", idx.Count())
	}

	results, err := idx.Search(testIdentity("q", 0.52).Descriptor, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("expected nearest b, got %+v", results)
	}
}

func TestHNSWIndex_SkipsMalformed(t *testing.T) {
	idx := NewHNSWIndex()
	bad := facematch.Identity{ID: "bad", Descriptor: make(facematch.Descriptor, 3)}
	idx.BuildFromIdentities([]facematch.Identity{testIdentity("a", 0.1), bad})

	if idx.Count() != 1 {
		t.Errorf("expected malformed identity skipped, got %d", idx.Count())
	}
	if err := idx.Add(bad); err == nil {
		t.Error("expected Add to reject malformed descriptor")
	}
}

func TestHNSWIndex_AddToEmpty(t *testing.T) {
	idx := NewHNSWIndex()
	if !idx.IsEmpty() {
		t.Fatal("expected empty index")
	}
	results, err := idx.Search(testIdentity("q", 0.1).Descriptor, 5)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected no results from empty index, got %v %v", results, err)
	}

	if err := idx.Add(testIdentity("a", 0.2)); err != nil {
		t.Fatal(err)
	}
	if idx.Get("a") == nil {
		t.Error("expected identity a")
	}
}

func TestHNSWIndex_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identities.hnsw")
	lastEnrolled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	idx := NewHNSWIndex()
	idx.BuildFromIdentities([]facematch.Identity{testIdentity("a", 0.1), testIdentity("b", 0.7)})
	if err := idx.SaveWithMetadata(path, HNSWIndexMetadata{IdentityCount: 2, LastEnrolledAt: lastEnrolled}); err != nil {
		t.Fatalf("SaveWithMetadata() error = %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata() error = %v", err)
	}
	if meta.Stale(2, lastEnrolled) {
		t.Error("fresh metadata reported stale")
	}
	if !meta.Stale(3, lastEnrolled) {
		t.Error("count change not detected")
	}

	loaded := NewHNSWIndex()
	if err := loaded.LoadWithMetadata(path); err != nil {
		t.Fatalf("LoadWithMetadata() error = %v", err)
	}
	if loaded.Count() != 2 {
		t.Errorf("expected 2 identities, got %d", loaded.Count())
	}
	results, _ := loaded.Search(testIdentity("q", 0.69).Descriptor, 1)
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("expected b after reload, got %+v", results)
	}
}
