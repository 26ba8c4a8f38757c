package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/face-auth/internal/facematch"
)

type fakeModel struct {
	warmCalls atomic.Int32
	warmErr   error
	warmDelay time.Duration

	detection *facematch.Detection
	detectErr error
}

func (m *fakeModel) WarmUp(ctx context.Context) error {
	m.warmCalls.Add(1)
	if m.warmDelay > 0 {
		select {
		case <-time.After(m.warmDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.warmErr
}

func (m *fakeModel) DetectOne(ctx context.Context, frame []byte) (*facematch.Detection, error) {
	return m.detection, m.detectErr
}

type staticFrames struct {
	err   error
	reads int
}

func (s *staticFrames) Frame(ctx context.Context) ([]byte, error) {
	s.reads++
	return []byte("jpeg"), s.err
}

func descriptor(n int) facematch.Descriptor {
	d := make(facematch.Descriptor, n)
	for i := range d {
		d[i] = 0.01 * float64(i)
	}
	return d
}

func TestExtract_BeforeWarmUp(t *testing.T) {
	model := &fakeModel{detection: &facematch.Detection{Descriptor: descriptor(128)}}
	e := New(model, nil)
	src := &staticFrames{}

	_, err := e.Extract(context.Background(), src)
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("expected ErrModelNotLoaded, got %v", err)
	}
	if src.reads != 0 {
		t.Error("frame should not be read before the model is loaded")
	}
}

func TestExtract_Success(t *testing.T) {
	d := descriptor(128)
	model := &fakeModel{detection: &facematch.Detection{Descriptor: d, Score: 0.9}}
	e := New(model, nil)
	if err := e.WarmUp(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := e.Extract(context.Background(), &staticFrames{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 128 || got[5] != d[5] {
		t.Errorf("unexpected descriptor")
	}
	got[0] = 42
	if d[0] == 42 {
		t.Error("extracted descriptor aliases model output")
	}
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		model   *fakeModel
		src     *staticFrames
		wantErr error
	}{
		{
			name:    "no face",
			model:   &fakeModel{},
			src:     &staticFrames{},
			wantErr: ErrNoFaceDetected,
		},
		{
			name:    "wrong dimension",
			model:   &fakeModel{detection: &facematch.Detection{Descriptor: descriptor(512)}},
			src:     &staticFrames{},
			wantErr: facematch.ErrDimensionMismatch,
		},
		{
			name:    "model error",
			model:   &fakeModel{detectErr: errors.New("boom")},
			src:     &staticFrames{},
			wantErr: ErrInference,
		},
		{
			name:    "frame error passes through",
			model:   &fakeModel{},
			src:     &staticFrames{err: context.DeadlineExceeded},
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.model, nil)
			if err := e.WarmUp(context.Background()); err != nil {
				t.Fatal(err)
			}
			_, err := e.Extract(context.Background(), tt.src)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWarmUp_Idempotent(t *testing.T) {
	model := &fakeModel{warmDelay: 20 * time.Millisecond}
	e := New(model, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.WarmUp(context.Background()); err != nil {
				t.Errorf("WarmUp() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if err := e.WarmUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := model.warmCalls.Load(); n != 1 {
		t.Errorf("expected model loaded once, got %d", n)
	}
	if !e.Ready() {
		t.Error("expected extractor ready")
	}
}

func TestWarmUp_FailureIsSticky(t *testing.T) {
	model := &fakeModel{warmErr: errors.New("weights missing")}
	e := New(model, nil)

	for range 2 {
		if err := e.WarmUp(context.Background()); !errors.Is(err, ErrModelLoadFailed) {
			t.Fatalf("expected ErrModelLoadFailed, got %v", err)
		}
	}
	if n := model.warmCalls.Load(); n != 1 {
		t.Errorf("expected single load attempt, got %d", n)
	}

	_, err := e.Extract(context.Background(), &staticFrames{})
	if !errors.Is(err, ErrModelLoadFailed) {
		t.Errorf("expected Extract to report load failure, got %v", err)
	}
}

func TestWarmUp_CanceledCanRetry(t *testing.T) {
	model := &fakeModel{warmDelay: time.Second}
	e := New(model, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.WarmUp(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	model.warmDelay = 0
	if err := e.WarmUp(context.Background()); err != nil {
		t.Errorf("retry after cancel failed: %v", err)
	}
}
