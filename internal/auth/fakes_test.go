package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/extract"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// descriptorAt returns a descriptor whose first component is v and the rest zero.
func descriptorAt(v float64) facematch.Descriptor {
	d := make(facematch.Descriptor, facematch.DescriptorSize)
	d[0] = v
	return d
}

type fakeCamera struct {
	mu          sync.Mutex
	state       camera.State
	activateErr error
	block       chan struct{} // Activate waits on it when set
	activations int
	releases    int
}

func (c *fakeCamera) Activate(ctx context.Context) error {
	c.mu.Lock()
	c.activations++
	c.state = camera.StateRequesting
	block := c.block
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			c.mu.Lock()
			c.state = camera.StateIdle
			c.mu.Unlock()
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activateErr != nil {
		c.state = camera.StateError
		return c.activateErr
	}
	c.state = camera.StateActive
	return nil
}

func (c *fakeCamera) Frame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != camera.StateActive {
		return nil, camera.ErrInvalidState
	}
	return []byte("frame"), nil
}

func (c *fakeCamera) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	wasActive := c.state == camera.StateActive
	c.state = camera.StateStopped
	return wasActive
}

func (c *fakeCamera) State() camera.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeCamera) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

type extraction struct {
	desc facematch.Descriptor
	err  error
}

type fakeExtractor struct {
	mu       sync.Mutex
	warmErr  error
	results  []extraction
	warmUps  int
	extracts int
}

func (e *fakeExtractor) WarmUp(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warmUps++
	return e.warmErr
}

func (e *fakeExtractor) Extract(ctx context.Context, src extract.FrameSource) (facematch.Descriptor, error) {
	if _, err := src.Frame(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.extracts++
	if len(e.results) == 0 {
		return nil, extract.ErrNoFaceDetected
	}
	r := e.results[0]
	e.results = e.results[1:]
	return r.desc, r.err
}

type fakeBackend struct {
	mu          sync.Mutex
	createErr   error
	signInErr   error
	sendErr     error
	creates     []string
	signIns     []string
	linksSentTo []string
	returnURLs  []string
}

func (b *fakeBackend) CreateIdentity(ctx context.Context, email, secret string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return "", b.createErr
	}
	b.creates = append(b.creates, email+"|"+secret)
	return "id-" + email, nil
}

func (b *fakeBackend) SignIn(ctx context.Context, email, secret string) (*credential.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signInErr != nil {
		return nil, b.signInErr
	}
	b.signIns = append(b.signIns, email+"|"+secret)
	return &credential.Session{ID: "session-1", IdentityID: "id-" + email, Email: email}, nil
}

func (b *fakeBackend) SendSignInLink(ctx context.Context, email, returnURL string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.linksSentTo = append(b.linksSentTo, email)
	b.returnURLs = append(b.returnURLs, returnURL)
	return nil
}

func (b *fakeBackend) CompleteSignInFromLink(ctx context.Context, email, linkURL string) (*credential.Session, error) {
	return nil, errors.New("not used")
}

var (
	_ Camera             = (*fakeCamera)(nil)
	_ Extractor          = (*fakeExtractor)(nil)
	_ credential.Backend = (*fakeBackend)(nil)
)
