package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/face-auth/internal/credential"
	"github.com/kozaktomas/face-auth/internal/database"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

// EnrollmentRequest is the validated input of an enrollment.
type EnrollmentRequest struct {
	FullName   string               `validate:"required"`
	Email      string               `validate:"required,email"`
	Descriptor facematch.Descriptor `validate:"required,len=128"`
}

// Enroller registers a new identity: a credential with the backend and a
// face profile in the repository.
type Enroller struct {
	backend   credential.Backend
	profiles  database.ProfileWriter
	camera    Camera
	extractor Extractor
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewEnroller creates an enroller. camera and extractor are only needed for Capture.
func NewEnroller(backend credential.Backend, profiles database.ProfileWriter, cam Camera, extractor Extractor, logger *slog.Logger) *Enroller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enroller{
		backend:   backend,
		profiles:  profiles,
		camera:    cam,
		extractor: extractor,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("component", "enroll"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Capture turns the camera on, extracts one descriptor and turns the camera
// off again. The returned descriptor is quantized.
func (e *Enroller) Capture(ctx context.Context) (facematch.Descriptor, error) {
	if e.camera == nil || e.extractor == nil {
		return nil, errors.New("enroller has no camera or extractor")
	}
	if err := e.extractor.WarmUp(ctx); err != nil {
		return nil, err
	}

	defer e.camera.Release()
	if err := e.camera.Activate(ctx); err != nil {
		return nil, err
	}

	desc, err := e.extractor.Extract(ctx, e.camera)
	if err != nil {
		return nil, err
	}
	return facematch.Quantize(desc), nil
}

// Enroll validates the input, creates the credential and stores the face
// profile under the new identity id. The email doubles as the secret.
//
// A failed profile write is not compensated: the credential stays behind
// and the returned error names its identity id.
func (e *Enroller) Enroll(ctx context.Context, fullName, email string, descriptor facematch.Descriptor) (*facematch.Identity, error) {
	req := EnrollmentRequest{
		FullName:   facematch.CleanFullName(fullName),
		Email:      facematch.NormalizeEmail(email),
		Descriptor: descriptor,
	}
	if err := e.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnrollment, describeValidation(err))
	}

	id, err := e.backend.CreateIdentity(ctx, req.Email, req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialCreationFailed, err)
	}

	identity := facematch.Identity{
		ID:         id,
		FullName:   req.FullName,
		Email:      req.Email,
		Descriptor: facematch.Quantize(req.Descriptor),
		CreatedAt:  e.now(),
	}
	if err := e.profiles.Put(ctx, id, identity); err != nil {
		e.logger.ErrorContext(ctx, "face profile not stored, credential orphaned",
			"identity_id", id, "email", req.Email, "error", err)
		return nil, fmt.Errorf("%w: orphaned identity %s: %w", ErrRepositoryWriteFailed, id, err)
	}

	e.logger.InfoContext(ctx, "identity enrolled", "identity_id", id, "email", req.Email)
	return &identity, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		case "len":
			msgs = append(msgs, fmt.Sprintf("%s must have %s components", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	sort.Strings(msgs)
	return strings.Join(msgs, ", ")
}
