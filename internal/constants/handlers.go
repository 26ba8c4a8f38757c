// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// DefaultIdentityListLimit is the page size for identity listings
	DefaultIdentityListLimit = 100
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for orchestrator transition events
	EventChannelBuffer = 16
)
