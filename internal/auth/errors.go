// Package auth implements face enrollment and the face sign-in flow.
package auth

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/extract"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

var (
	// ErrNoMatch is returned when no enrolled face is close enough.
	ErrNoMatch = errors.New("no matching face")

	// ErrInvalidEnrollment is returned when enrollment input fails validation.
	ErrInvalidEnrollment = errors.New("invalid enrollment")

	// ErrCredentialCreationFailed is returned when the credential backend rejects a new identity.
	ErrCredentialCreationFailed = errors.New("credential creation failed")

	// ErrRepositoryWriteFailed is returned when the identity record could not be stored.
	ErrRepositoryWriteFailed = errors.New("profile repository write failed")

	// ErrLinkDispatchFailed is returned when the sign-in link could not be sent.
	ErrLinkDispatchFailed = errors.New("sign-in link dispatch failed")

	// ErrSignInFailed is returned when the credential backend refused the sign-in.
	ErrSignInFailed = errors.New("sign-in failed")

	// ErrAttemptInProgress is returned when another call is still running.
	ErrAttemptInProgress = errors.New("authentication attempt in progress")

	// ErrInvalidTransition is returned when an operation is not valid in the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// UserMessage returns the text shown to the person in front of the camera for err.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, camera.ErrReleased):
		return "Cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out. Please try again."
	case errors.Is(err, camera.ErrPermissionDenied):
		return "Camera access was denied. Allow camera access and try again."
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return "No camera is available."
	case errors.Is(err, extract.ErrModelLoadFailed), errors.Is(err, extract.ErrModelNotLoaded):
		return "Face recognition is unavailable right now."
	case errors.Is(err, extract.ErrNoFaceDetected):
		return "No face detected. Please try again."
	case errors.Is(err, extract.ErrInference):
		return "Face analysis failed. Please try again."
	case errors.Is(err, facematch.ErrDimensionMismatch):
		return "Stored face data is invalid. Contact an administrator."
	case errors.Is(err, ErrNoMatch):
		return "No matching face found. Please try again."
	case errors.Is(err, ErrLinkDispatchFailed):
		return "Could not send the sign-in email. Please try again."
	case errors.Is(err, ErrSignInFailed):
		return "An error occurred during login. Please try again."
	case errors.Is(err, ErrInvalidEnrollment):
		return "Please enter your full name, your email address and capture your face."
	case errors.Is(err, database.ErrEmailExists):
		return "This email address is already registered."
	case errors.Is(err, ErrCredentialCreationFailed), errors.Is(err, ErrRepositoryWriteFailed):
		return "Error during registration. Please try again."
	case errors.Is(err, ErrAttemptInProgress):
		return "A sign-in attempt is already running."
	default:
		return "Something went wrong. Please try again."
	}
}
