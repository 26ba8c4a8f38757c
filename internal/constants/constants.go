// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// MatchThreshold is the Euclidean distance a candidate must stay strictly
	// below to be accepted as the same person
	MatchThreshold = 0.6

	// DefaultCandidateLimit is the number of nearest identities preselected by
	// the vector index before exact rescoring
	DefaultCandidateLimit = 32

	// MaxFrameSize is the maximum dimension (width or height) of a frame sent to the model
	MaxFrameSize = 640
)

// Camera constants
const (
	// DefaultFrameRate is the capture rate requested from the camera
	DefaultFrameRate = 15

	// FrameBufferSize is the number of decoded frames kept ahead of the reader
	FrameBufferSize = 2

	// MaxFrameBytes caps a single MJPEG frame read from the capture pipe
	MaxFrameBytes = 8 << 20
)

// Session and link constants
const (
	// DefaultLinkTTL is how long an emailed sign-in link stays valid
	DefaultLinkTTL = 15 * time.Minute

	// DefaultSessionTTL is the lifetime of a browser session
	DefaultSessionTTL = 7 * 24 * time.Hour

	// SessionCleanupInterval is how often expired sessions are purged
	SessionCleanupInterval = time.Hour
)
