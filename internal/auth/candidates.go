package auth

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// CandidateSource returns the identities a query descriptor is compared with.
// It is called once per attempt so enrollments made since the last attempt
// are visible.
type CandidateSource interface {
	Candidates(ctx context.Context, query facematch.Descriptor) ([]facematch.Identity, error)
}

// SnapshotCandidates compares against every enrolled identity.
type SnapshotCandidates struct {
	Profiles database.ProfileReader
}

func (s SnapshotCandidates) Candidates(ctx context.Context, _ facematch.Descriptor) ([]facematch.Identity, error) {
	identities, err := s.Profiles.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading enrolled identities: %w", err)
	}
	return identities, nil
}

// IndexCandidates preselects the nearest identities from a vector index.
// The matcher still rescores them exactly. Finders return candidates in
// distance order, so they are put back into enrollment order (created_at, id)
// to keep the earliest enrollee winning exact ties. A zero Limit means
// constants.DefaultCandidateLimit.
type IndexCandidates struct {
	Finder database.CandidateFinder
	Limit  int
}

func (s IndexCandidates) Candidates(ctx context.Context, query facematch.Descriptor) ([]facematch.Identity, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = constants.DefaultCandidateLimit
	}
	identities, err := s.Finder.FindCandidates(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("finding candidate identities: %w", err)
	}
	slices.SortStableFunc(identities, enrollmentOrder)
	return identities, nil
}

// enrollmentOrder matches the order ProfileReader.Snapshot returns identities in.
func enrollmentOrder(a, b facematch.Identity) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
}
