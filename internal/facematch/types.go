// Package facematch provides the descriptor model and the nearest-neighbour
// matching used by enrollment and login.
package facematch

import (
	"errors"
	"time"
)

const (
	// DescriptorSize is the number of components produced by the face recognition model.
	DescriptorSize = 128

	// QuantizePrecision is the number of decimal digits kept in stored descriptors.
	QuantizePrecision = 5
)

// ErrDimensionMismatch is returned when a descriptor does not have DescriptorSize components.
var ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

// Descriptor is a face embedding vector.
type Descriptor []float64

// Identity is an enrolled user as stored in the profile repository.
type Identity struct {
	ID         string     `json:"id"`
	FullName   string     `json:"full_name"`
	Email      string     `json:"email"`
	Descriptor Descriptor `json:"descriptor,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MatchResult is the outcome of a nearest-neighbour search.
// Identity is nil when no candidate was closer than the threshold.
type MatchResult struct {
	Identity *Identity
	Distance float64
}

// Matched reports whether the search produced an identity.
func (r MatchResult) Matched() bool {
	return r.Identity != nil
}

// Detection is a single face found by the recognition model.
type Detection struct {
	Descriptor Descriptor
	Score      float64   // detector confidence
	BBox       []float64 // [x1, y1, x2, y2] relative to the frame
}
