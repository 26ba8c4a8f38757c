package auth

import (
	"fmt"
	"time"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// State is a step of the face sign-in flow.
type State int

const (
	StateIdle State = iota
	StateCameraRequested
	StateCameraActive
	StateExtracting
	StateMatching
	StateAuthenticating
	StateNoMatch
	StateExtractionFailed
	StateFailed
	StateSessionEstablished
	StateAwaitingEmailConfirmation
)

var stateNames = map[State]string{
	StateIdle:                      "idle",
	StateCameraRequested:           "camera_requested",
	StateCameraActive:              "camera_active",
	StateExtracting:                "extracting",
	StateMatching:                  "matching",
	StateAuthenticating:            "authenticating",
	StateNoMatch:                   "no_match",
	StateExtractionFailed:          "extraction_failed",
	StateFailed:                    "failed",
	StateSessionEstablished:        "session_established",
	StateAwaitingEmailConfirmation: "awaiting_email_confirmation",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the attempt has finished in s.
func (s State) Terminal() bool {
	switch s {
	case StateNoMatch, StateExtractionFailed, StateFailed,
		StateSessionEstablished, StateAwaitingEmailConfirmation:
		return true
	}
	return false
}

// Retryable reports whether a new attempt may be started from s.
func (s State) Retryable() bool {
	switch s {
	case StateIdle, StateNoMatch, StateExtractionFailed, StateFailed:
		return true
	}
	return false
}

// holdsCamera reports whether the camera is live while in s.
func (s State) holdsCamera() bool {
	switch s {
	case StateCameraActive, StateExtracting, StateMatching:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateIdle:                      {StateCameraRequested},
	StateCameraRequested:           {StateCameraActive, StateFailed, StateIdle},
	StateCameraActive:              {StateExtracting, StateIdle},
	StateExtracting:                {StateMatching, StateExtractionFailed, StateFailed, StateIdle},
	StateMatching:                  {StateNoMatch, StateAuthenticating, StateFailed, StateIdle},
	StateAuthenticating:            {StateSessionEstablished, StateAwaitingEmailConfirmation, StateFailed, StateIdle},
	StateNoMatch:                   {StateCameraRequested, StateIdle},
	StateExtractionFailed:          {StateCameraRequested, StateIdle},
	StateFailed:                    {StateCameraRequested, StateIdle},
	StateSessionEstablished:        {StateIdle},
	StateAwaitingEmailConfirmation: {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CaptureSession is the per-attempt scratch data of the sign-in flow.
type CaptureSession struct {
	CameraState    camera.State
	LastDescriptor facematch.Descriptor
	LastMatch      *facematch.MatchResult
	StartedAt      time.Time
}

// Transition is reported to observers on every state change.
type Transition struct {
	From State
	To   State
	Err  error
	At   time.Time
}

// Observer receives transitions synchronously. It must not call back into
// the orchestrator.
type Observer func(Transition)
