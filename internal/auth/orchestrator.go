package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/extract"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// Camera is the camera lifecycle the flows drive. *camera.Controller implements it.
type Camera interface {
	Activate(ctx context.Context) error
	Frame(ctx context.Context) ([]byte, error)
	Release() bool
	State() camera.State
}

// Extractor turns a camera frame into a face descriptor. *extract.Extractor implements it.
type Extractor interface {
	WarmUp(ctx context.Context) error
	Extract(ctx context.Context, src extract.FrameSource) (facematch.Descriptor, error)
}

// Result describes how a scan ended.
type Result struct {
	State   State
	Match   *facematch.MatchResult
	Session *credential.Session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithThreshold overrides the match threshold. The comparison stays strict.
func WithThreshold(threshold float64) Option {
	return func(o *Orchestrator) { o.threshold = threshold }
}

// WithObserver registers a callback for every state transition.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs one face sign-in attempt at a time:
// activate the camera, scan a face, match it and complete the sign-in.
type Orchestrator struct {
	camera     Camera
	extractor  Extractor
	candidates CandidateSource
	completer  Completer
	threshold  float64
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	state      State
	lastErr    error
	session    CaptureSession
	cameraHeld bool
	busy       bool
	canceled   bool
	cancel     context.CancelFunc
}

// NewOrchestrator creates an orchestrator in the Idle state.
func NewOrchestrator(cam Camera, extractor Extractor, candidates CandidateSource, completer Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		camera:     cam,
		extractor:  extractor,
		candidates: candidates,
		completer:  completer,
		threshold:  constants.MatchThreshold,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "auth")
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the error that led to the current state, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Session returns a copy of the current attempt's capture data.
func (o *Orchestrator) Session() CaptureSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.session
	s.LastDescriptor = s.LastDescriptor.Clone()
	if s.LastMatch != nil {
		m := *s.LastMatch
		s.LastMatch = &m
	}
	return s
}

// Activate loads the face model and turns the camera on. It is valid from
// Idle and from the retryable terminal states NoMatch, ExtractionFailed and Failed.
func (o *Orchestrator) Activate(ctx context.Context) error {
	ctx, err := o.begin(ctx, State.Retryable, "activate")
	if err != nil {
		return err
	}
	defer o.end()

	if err := o.transition(StateCameraRequested, nil); err != nil {
		return err
	}

	if err := o.extractor.WarmUp(ctx); err != nil {
		return o.abort(ctx, StateFailed, err)
	}

	o.mu.Lock()
	o.cameraHeld = true
	o.mu.Unlock()

	if err := o.camera.Activate(ctx); err != nil {
		return o.abort(ctx, StateFailed, err)
	}
	return o.transition(StateCameraActive, nil)
}

// Scan captures one frame, matches it against the enrolled identities and
// completes the sign-in on a match. The camera is released before the
// attempt reaches any terminal state.
func (o *Orchestrator) Scan(ctx context.Context) (Result, error) {
	ctx, err := o.begin(ctx, func(s State) bool { return s == StateCameraActive }, "scan")
	if err != nil {
		return Result{State: o.State()}, err
	}
	defer o.end()

	var res Result
	finish := func(err error) (Result, error) {
		res.State = o.State()
		return res, err
	}

	if err := o.transition(StateExtracting, nil); err != nil {
		return finish(err)
	}
	desc, err := o.extractor.Extract(ctx, o.camera)
	if err != nil {
		to := StateFailed
		if errors.Is(err, extract.ErrNoFaceDetected) || errors.Is(err, extract.ErrInference) {
			to = StateExtractionFailed
		}
		return finish(o.abort(ctx, to, err))
	}

	o.mu.Lock()
	o.session.LastDescriptor = desc.Clone()
	o.mu.Unlock()

	if err := o.transition(StateMatching, nil); err != nil {
		return finish(err)
	}
	candidates, err := o.candidates.Candidates(ctx, desc)
	if err != nil {
		return finish(o.abort(ctx, StateFailed, err))
	}
	match, err := facematch.FindBest(desc, candidates, o.threshold)
	if err != nil {
		return finish(o.abort(ctx, StateFailed, err))
	}
	res.Match = &match

	o.mu.Lock()
	o.session.LastMatch = &match
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "face compared",
		"candidates", len(candidates),
		"distance", match.Distance,
		"matched", match.Matched())

	if !match.Matched() {
		if err := o.transition(StateNoMatch, ErrNoMatch); err != nil {
			return finish(err)
		}
		return finish(ErrNoMatch)
	}

	if err := o.transition(StateAuthenticating, nil); err != nil {
		return finish(err)
	}
	completion, err := o.completer.Complete(ctx, match.Identity)
	if err != nil {
		return finish(o.abort(ctx, StateFailed, err))
	}
	res.Session = completion.Session
	if err := o.transition(completion.State, nil); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// Cancel abandons the attempt. A running Activate or Scan is interrupted
// through its context; otherwise the camera is released and the flow
// returns to Idle right away.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.busy {
		o.canceled = true
		if o.cancel != nil {
			o.cancel()
		}
		o.mu.Unlock()
		return
	}
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	t, err := o.transitionLocked(StateIdle, context.Canceled)
	o.mu.Unlock()
	if err == nil {
		o.notify(t)
	}
}

func (o *Orchestrator) begin(ctx context.Context, allowed func(State) bool, op string) (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.busy {
		return nil, ErrAttemptInProgress
	}
	if !allowed(o.state) {
		return nil, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, op, o.state)
	}
	ctx, cancel := context.WithCancel(ctx)
	o.busy = true
	o.cancel = cancel
	return ctx, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	var (
		t      Transition
		notify bool
	)
	if o.canceled && o.state != StateIdle {
		if tr, err := o.transitionLocked(StateIdle, context.Canceled); err == nil {
			t, notify = tr, true
		}
	}
	o.busy = false
	o.canceled = false
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()

	if notify {
		o.notify(t)
	}
}

// abort ends the attempt in state to with err. An interrupted context always
// returns the flow to Idle instead.
func (o *Orchestrator) abort(ctx context.Context, to State, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		to, err = StateIdle, ctxErr
	} else if errors.Is(err, camera.ErrReleased) {
		to = StateIdle
	}
	if terr := o.transition(to, err); terr != nil {
		return terr
	}
	return err
}

func (o *Orchestrator) transition(to State, err error) error {
	o.mu.Lock()
	t, terr := o.transitionLocked(to, err)
	o.mu.Unlock()
	if terr != nil {
		o.logger.Error("rejected state transition", "error", terr)
		return terr
	}
	o.notify(t)
	return nil
}

// transitionLocked moves to state to. Leaving the states that hold the
// camera releases it first, once.
func (o *Orchestrator) transitionLocked(to State, err error) (Transition, error) {
	from := o.state
	if !canTransition(from, to) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if o.cameraHeld && !to.holdsCamera() {
		o.cameraHeld = false
		o.camera.Release()
	}
	if to == StateCameraRequested {
		o.session = CaptureSession{StartedAt: o.now()}
	}

	o.state = to
	o.lastErr = err
	o.session.CameraState = o.camera.State()
	return Transition{From: from, To: to, Err: err, At: o.now()}, nil
}

func (o *Orchestrator) notify(t Transition) {
	attrs := []any{"from", t.From.String(), "to", t.To.String()}
	if t.Err != nil {
		attrs = append(attrs, "error", t.Err)
	}
	o.logger.Debug("state changed", attrs...)
	if o.observer != nil {
		o.observer(t)
	}
}
