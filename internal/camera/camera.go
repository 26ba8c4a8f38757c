// Package camera owns the capture device lifecycle: acquiring a stream,
// binding it to an optional preview surface and releasing it exactly once.
package camera

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the user or OS refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceUnavailable is returned when the device is missing, busy or died mid-stream.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrInvalidState is returned for operations not allowed in the current state.
	ErrInvalidState = errors.New("invalid camera state")

	// ErrReleased is returned when the camera was released while an operation was pending.
	ErrReleased = errors.New("camera released")
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Device grants camera streams.
type Device interface {
	// RequestStream blocks until the stream is live or access is refused.
	RequestStream(ctx context.Context) (Stream, error)
}

// Stream is a live camera stream. Stop must be safe to call more than once.
type Stream interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Stop() error
}

// Surface displays frames from an active stream.
type Surface interface {
	Attach() error
	Show(frame []byte) error
	Detach() error
}
