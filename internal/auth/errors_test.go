package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/extract"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrNoMatch, "No matching face found. Please try again."},
		{fmt.Errorf("scan: %w", extract.ErrNoFaceDetected), "No face detected. Please try again."},
		{camera.ErrPermissionDenied, "Camera access was denied. Allow camera access and try again."},
		{extract.ErrModelLoadFailed, "Face recognition is unavailable right now."},
		{facematch.ErrDimensionMismatch, "Stored face data is invalid. Contact an administrator."},
		{fmt.Errorf("%w: smtp", ErrLinkDispatchFailed), "Could not send the sign-in email. Please try again."},
		{context.Canceled, "Cancelled."},
		{errors.New("boom"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
