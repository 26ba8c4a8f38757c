// Package extract turns a single camera frame into a face descriptor.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/face-auth/internal/facematch"
)

var (
	// ErrModelNotLoaded is returned by Extract before WarmUp has completed.
	ErrModelNotLoaded = errors.New("face model not loaded")

	// ErrModelLoadFailed is returned when the model could not be loaded. It is sticky.
	ErrModelLoadFailed = errors.New("face model failed to load")

	// ErrNoFaceDetected is returned when the model ran but found no face.
	ErrNoFaceDetected = errors.New("no face detected")

	// ErrInference is returned when the model call itself failed.
	ErrInference = errors.New("face model inference failed")
)

// Model detects faces and computes their descriptors.
type Model interface {
	WarmUp(ctx context.Context) error
	// DetectOne returns the single face used for recognition, or nil when none was found.
	DetectOne(ctx context.Context, frame []byte) (*facematch.Detection, error)
}

// FrameSource yields the current camera frame.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

type loadState int

const (
	notLoaded loadState = iota
	loading
	loaded
	failed
)

// Extractor wraps a Model with one-time warm-up and single-shot extraction.
type Extractor struct {
	model  Model
	logger *slog.Logger

	mu      sync.Mutex
	state   loadState
	loadErr error
	done    chan struct{} // closed when an in-flight warm-up finishes
}

// New creates an extractor for model.
func New(model Model, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{model: model, logger: logger}
}

// Ready reports whether the model has been loaded.
func (e *Extractor) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == loaded
}

// WarmUp loads the model once. Concurrent callers wait for the same load.
// A load interrupted by context cancellation may be retried; any other
// failure is remembered and returned to every later caller.
func (e *Extractor) WarmUp(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case loaded:
		e.mu.Unlock()
		return nil
	case failed:
		err := e.loadErr
		e.mu.Unlock()
		return err
	case loading:
		done := e.done
		e.mu.Unlock()
		select {
		case <-done:
			return e.WarmUp(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.state = loading
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	start := time.Now()
	err := e.model.WarmUp(ctx)

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		close(done)
	}()

	switch {
	case err == nil:
		e.state = loaded
		e.logger.Info("face model loaded", "duration_ms", time.Since(start).Milliseconds())
		return nil
	case ctx.Err() != nil:
		e.state = notLoaded
		return ctx.Err()
	default:
		e.state = failed
		e.loadErr = fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
		e.logger.Error("face model failed to load", "error", err)
		return e.loadErr
	}
}

// Extract reads one frame from src and returns the descriptor of the face in
// it. It never retries; a frame without a face yields ErrNoFaceDetected.
func (e *Extractor) Extract(ctx context.Context, src FrameSource) (facematch.Descriptor, error) {
	e.mu.Lock()
	state, loadErr := e.state, e.loadErr
	e.mu.Unlock()

	switch state {
	case loaded:
	case failed:
		return nil, loadErr
	default:
		return nil, ErrModelNotLoaded
	}

	frame, err := src.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}

	det, err := e.model.DetectOne(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if det == nil {
		return nil, ErrNoFaceDetected
	}
	if err := det.Descriptor.Validate(); err != nil {
		return nil, err
	}

	e.logger.Debug("face descriptor extracted", "score", det.Score)
	return det.Descriptor.Clone(), nil
}
