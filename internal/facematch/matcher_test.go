package facematch

import (
	"errors"
	"math"
	"testing"
)

const threshold = 0.6

func identity(id string, d Descriptor) Identity {
	return Identity{ID: id, FullName: "User " + id, Email: id + "@example.com", Descriptor: d}
}

// shifted returns the zero descriptor with the first component set to v,
// so its distance from the zero descriptor is exactly |v|.
func shifted(v float64) Descriptor {
	d := filled(0)
	d[0] = v
	return d
}

func TestFindBest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Identity
		wantID     string
		wantDist   float64
	}{
		{
			name:       "closest below threshold",
			candidates: []Identity{identity("a", shifted(0.81)), identity("b", shifted(0.42))},
			wantID:     "b",
			wantDist:   0.42,
		},
		{
			name:       "closest above threshold",
			candidates: []Identity{identity("a", shifted(0.81)), identity("b", shifted(0.95))},
			wantDist:   0.81,
		},
		{
			name:       "exactly at threshold",
			candidates: []Identity{identity("a", shifted(0.6))},
			wantDist:   0.6,
		},
		{
			name:       "tie keeps first seen",
			candidates: []Identity{identity("a", shifted(0.3)), identity("b", shifted(-0.3))},
			wantID:     "a",
			wantDist:   0.3,
		},
		{
			name:       "self match",
			candidates: []Identity{identity("a", shifted(0.5)), identity("self", filled(0))},
			wantID:     "self",
			wantDist:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := FindBest(filled(0), tt.candidates, threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Distance != tt.wantDist {
				t.Errorf("distance = %v, want %v", res.Distance, tt.wantDist)
			}
			if tt.wantID == "" {
				if res.Matched() {
					t.Errorf("expected no match, got %s", res.Identity.ID)
				}
				return
			}
			if !res.Matched() || res.Identity.ID != tt.wantID {
				t.Errorf("expected match %s, got %+v", tt.wantID, res.Identity)
			}
		})
	}
}

func TestFindBestEmptyCandidates(t *testing.T) {
	res, err := FindBest(filled(0), nil, threshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched() {
		t.Error("expected no match")
	}
	if !math.IsInf(res.Distance, 1) {
		t.Errorf("expected +Inf distance, got %v", res.Distance)
	}
}

func TestFindBestDimensionMismatch(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		_, err := FindBest(make(Descriptor, 127), []Identity{identity("a", filled(0))}, threshold)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("candidate", func(t *testing.T) {
		candidates := []Identity{identity("a", filled(0)), identity("b", make(Descriptor, 3))}
		_, err := FindBest(filled(0), candidates, threshold)
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}

func TestFindBestReturnsCopy(t *testing.T) {
	candidates := []Identity{identity("a", filled(0))}
	res, err := FindBest(filled(0), candidates, threshold)
	if err != nil || !res.Matched() {
		t.Fatalf("expected match, got %+v err=%v", res, err)
	}
	res.Identity.FullName = "changed"
	if candidates[0].FullName == "changed" {
		t.Error("match result aliases the candidate slice")
	}
}
