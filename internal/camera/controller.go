package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Controller drives a Device through Idle → Requesting → Active → Stopped.
// A failed request or a broken stream leaves it in Error. Both Stopped and
// Error return to Idle on the next Activate.
type Controller struct {
	mu      sync.Mutex
	device  Device
	surface Surface
	logger  *slog.Logger

	state   State
	stream  Stream
	lastErr error
}

// Option configures a Controller.
type Option func(*Controller)

// WithSurface binds active streams to s.
func WithSurface(s Surface) Option {
	return func(c *Controller) { c.surface = s }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates an idle controller for device.
func NewController(device Device, opts ...Option) *Controller {
	c := &Controller{device: device, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the controller into StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Activate requests a stream from the device. It is valid from Idle, Stopped
// and Error. The lock is not held while the device is asked for access, so a
// concurrent Release aborts the request and Activate returns ErrReleased.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateStopped, StateError:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: activate from %s", ErrInvalidState, state)
	}
	c.state = StateRequesting
	c.lastErr = nil
	c.mu.Unlock()

	stream, err := c.device.RequestStream(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRequesting {
		// Released while waiting for the device.
		if stream != nil {
			_ = stream.Stop()
		}
		return ErrReleased
	}

	if err != nil {
		if ctx.Err() != nil {
			c.state = StateIdle
			return fmt.Errorf("requesting camera: %w", ctx.Err())
		}
		c.state = StateError
		c.lastErr = classify(err)
		c.logger.Warn("camera request failed", "error", err)
		return c.lastErr
	}

	if c.surface != nil {
		if err := c.surface.Attach(); err != nil {
			c.logger.Warn("failed to attach preview surface", "error", err)
		}
	}

	c.stream = stream
	c.state = StateActive
	c.logger.Debug("camera active")
	return nil
}

// Frame reads the next frame from the active stream and mirrors it to the
// surface. A device failure moves the controller into Error and stops the stream.
func (c *Controller) Frame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.state != StateActive {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: read frame in %s", ErrInvalidState, state)
	}
	stream := c.stream
	c.mu.Unlock()

	frame, err := stream.ReadFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.stream != stream {
			return nil, ErrReleased
		}
		c.stopLocked()
		c.state = StateError
		c.lastErr = classify(err)
		c.logger.Warn("camera stream failed", "error", err)
		return nil, c.lastErr
	}

	if c.surface != nil {
		if err := c.surface.Show(frame); err != nil {
			c.logger.Debug("failed to show frame", "error", err)
		}
	}
	return frame, nil
}

// Release stops the live stream and detaches the surface. It is idempotent
// and reports whether a stream or pending request was actually torn down.
func (c *Controller) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle, StateStopped:
		return false
	case StateError:
		c.state = StateStopped
		return false
	case StateRequesting:
		c.state = StateStopped
		return true
	}

	c.stopLocked()
	c.state = StateStopped
	c.logger.Debug("camera released")
	return true
}

func (c *Controller) stopLocked() {
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			c.logger.Debug("stopping camera stream", "error", err)
		}
		c.stream = nil
	}
	if c.surface != nil {
		if err := c.surface.Detach(); err != nil {
			c.logger.Debug("failed to detach preview surface", "error", err)
		}
	}
}

// classify keeps known sentinels and maps anything else to ErrDeviceUnavailable.
func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
