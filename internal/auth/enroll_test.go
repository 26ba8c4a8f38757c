package auth

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/database/mock"
	"github.com/kozaktomas/face-auth/internal/extract"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

func TestEnroller_Enroll(t *testing.T) {
	backend := &fakeBackend{}
	repo := mock.NewMockProfileRepository()
	e := NewEnroller(backend, repo, nil, nil, nil)

	raw := descriptorAt(0.1234567)
	identity, err := e.Enroll(context.Background(), "  Alice   Example ", "Alice@Example.com", raw)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	if identity.ID != "id-alice@example.com" {
		t.Errorf("identity id = %s", identity.ID)
	}
	if identity.FullName != "Alice Example" {
		t.Errorf("full name = %q", identity.FullName)
	}
	if identity.Descriptor[0] != 0.12346 {
		t.Errorf("descriptor not quantized: %v", identity.Descriptor[0])
	}
	if raw[0] != 0.1234567 {
		t.Error("input descriptor must not be modified")
	}

	if len(backend.creates) != 1 || backend.creates[0] != "alice@example.com|alice@example.com" {
		t.Errorf("credential created with %v, want email as secret", backend.creates)
	}
	if len(repo.PutCalls) != 1 || repo.PutCalls[0].ID != identity.ID {
		t.Fatalf("put calls = %+v", repo.PutCalls)
	}
	stored, err := repo.Get(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Descriptor[0] != 0.12346 {
		t.Errorf("stored descriptor not quantized: %v", stored.Descriptor[0])
	}
}

func TestEnroller_RejectsInvalidInputBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name       string
		fullName   string
		email      string
		descriptor facematch.Descriptor
		wantField  string
	}{
		{"empty name", "", "alice@example.com", descriptorAt(0), "FullName"},
		{"blank name", "   \t", "alice@example.com", descriptorAt(0), "FullName"},
		{"empty email", "Alice", "", descriptorAt(0), "Email"},
		{"malformed email", "Alice", "alice-at-example", descriptorAt(0), "Email"},
		{"missing descriptor", "Alice", "alice@example.com", nil, "Descriptor"},
		{"short descriptor", "Alice", "alice@example.com", make(facematch.Descriptor, 64), "Descriptor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			repo := mock.NewMockProfileRepository()
			e := NewEnroller(backend, repo, nil, nil, nil)

			_, err := e.Enroll(context.Background(), tt.fullName, tt.email, tt.descriptor)
			if !errors.Is(err, ErrInvalidEnrollment) {
				t.Fatalf("Enroll() error = %v, want ErrInvalidEnrollment", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not name %s", err, tt.wantField)
			}
			if len(backend.creates) != 0 || len(repo.PutCalls) != 0 {
				t.Error("no collaborator may be called for invalid input")
			}
		})
	}
}

func TestEnroller_CredentialFailure(t *testing.T) {
	backend := &fakeBackend{createErr: database.ErrEmailExists}
	repo := mock.NewMockProfileRepository()
	e := NewEnroller(backend, repo, nil, nil, nil)

	_, err := e.Enroll(context.Background(), "Alice", "alice@example.com", descriptorAt(0))
	if !errors.Is(err, ErrCredentialCreationFailed) {
		t.Fatalf("Enroll() error = %v, want ErrCredentialCreationFailed", err)
	}
	if !errors.Is(err, database.ErrEmailExists) {
		t.Errorf("cause must be kept, got %v", err)
	}
	if len(repo.PutCalls) != 0 {
		t.Error("profile must not be written when the credential failed")
	}
	if UserMessage(err) != "This email address is already registered." {
		t.Errorf("UserMessage() = %q", UserMessage(err))
	}
}

func TestEnroller_RepositoryFailureLeavesOrphan(t *testing.T) {
	backend := &fakeBackend{}
	repo := mock.NewMockProfileRepository()
	repo.PutError = errors.New("disk full")
	e := NewEnroller(backend, repo, nil, nil, nil)

	_, err := e.Enroll(context.Background(), "Alice", "alice@example.com", descriptorAt(0))
	if !errors.Is(err, ErrRepositoryWriteFailed) {
		t.Fatalf("Enroll() error = %v, want ErrRepositoryWriteFailed", err)
	}
	if !strings.Contains(err.Error(), "id-alice@example.com") {
		t.Errorf("error must name the orphaned identity: %v", err)
	}
	if len(backend.creates) != 1 {
		t.Errorf("credential should remain created, got %d creates", len(backend.creates))
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("repository holds %d identities, want 0", n)
	}
}

func TestEnroller_Capture(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cam := &fakeCamera{}
		ex := &fakeExtractor{results: []extraction{{desc: descriptorAt(0.9876543)}}}
		e := NewEnroller(&fakeBackend{}, mock.NewMockProfileRepository(), cam, ex, nil)

		desc, err := e.Capture(context.Background())
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		if desc[0] != 0.98765 {
			t.Errorf("descriptor not quantized: %v", desc[0])
		}
		if cam.releaseCount() != 1 || cam.State() != camera.StateStopped {
			t.Errorf("camera not released: releases=%d state=%s", cam.releaseCount(), cam.State())
		}
	})

	t.Run("no face", func(t *testing.T) {
		cam := &fakeCamera{}
		ex := &fakeExtractor{}
		e := NewEnroller(&fakeBackend{}, mock.NewMockProfileRepository(), cam, ex, nil)

		if _, err := e.Capture(context.Background()); !errors.Is(err, extract.ErrNoFaceDetected) {
			t.Fatalf("Capture() error = %v", err)
		}
		if cam.releaseCount() != 1 {
			t.Errorf("camera releases = %d, want 1", cam.releaseCount())
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		cam := &fakeCamera{activateErr: camera.ErrPermissionDenied}
		e := NewEnroller(&fakeBackend{}, mock.NewMockProfileRepository(), cam, &fakeExtractor{}, nil)

		if _, err := e.Capture(context.Background()); !errors.Is(err, camera.ErrPermissionDenied) {
			t.Fatalf("Capture() error = %v", err)
		}
	})

	t.Run("without camera", func(t *testing.T) {
		e := NewEnroller(&fakeBackend{}, mock.NewMockProfileRepository(), nil, nil, nil)
		if _, err := e.Capture(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestEnrollThenScan(t *testing.T) {
	enrolled := descriptorAt(0)
	enrolled[1] = 0.1234567

	tests := []struct {
		name      string
		offset    float64
		wantState State
		wantErr   error
		wantLinks int
	}{
		{"close face gets a link", 0.42, StateAwaitingEmailConfirmation, nil, 1},
		{"distant face is rejected", 0.81, StateNoMatch, ErrNoMatch, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			repo := mock.NewMockProfileRepository()
			enroller := NewEnroller(backend, repo, nil, nil, nil)

			identity, err := enroller.Enroll(context.Background(), "Jane Doe", "jane@example.com", enrolled)
			if err != nil {
				t.Fatalf("Enroll() error = %v", err)
			}

			query := enrolled.Clone()
			query[0] = tt.offset
			cam := &fakeCamera{}
			orch := NewOrchestrator(cam, &fakeExtractor{results: []extraction{{desc: query}}},
				SnapshotCandidates{Profiles: repo},
				&LinkCompleter{Backend: backend, ReturnURL: testReturnURL})

			if err := orch.Activate(context.Background()); err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			res, err := orch.Scan(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Scan() error = %v, want %v", err, tt.wantErr)
			}

			if res.State != tt.wantState {
				t.Errorf("result state = %s, want %s", res.State, tt.wantState)
			}
			if res.Match == nil || math.Abs(res.Match.Distance-tt.offset) > 1e-4 {
				t.Fatalf("unexpected match %+v", res.Match)
			}
			if tt.wantErr == nil && res.Match.Identity.ID != identity.ID {
				t.Errorf("matched %s, want %s", res.Match.Identity.ID, identity.ID)
			}
			if len(backend.linksSentTo) != tt.wantLinks {
				t.Errorf("links sent = %v, want %d", backend.linksSentTo, tt.wantLinks)
			}
			if cam.releaseCount() != 1 {
				t.Errorf("camera releases = %d, want 1", cam.releaseCount())
			}
		})
	}
}
