package credential

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	linkIssuer     = "face-auth"
	linkAudience   = "finish-signin"
	linkTokenParam = "token"
	devSecret      = "face-auth-dev-secret-change-in-production"
)

// linkClaims are embedded in the token of an emailed sign-in link.
type linkClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// LinkSigner issues and verifies HS256 sign-in link tokens.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewLinkSigner creates a signer. An empty secret falls back to a development secret.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if secret == "" {
		secret = devSecret
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl}
}

// IssuedLink is a signed sign-in link ready to be emailed.
type IssuedLink struct {
	JTI       string
	URL       string
	ExpiresAt time.Time
}

// Issue signs a token for email and appends it to returnURL.
func (s *LinkSigner) Issue(email, returnURL string, now time.Time) (*IssuedLink, error) {
	u, err := url.Parse(returnURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid return URL %q", returnURL)
	}

	jti := uuid.NewString()
	expiresAt := now.Add(s.ttl)
	claims := linkClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    linkIssuer,
			Audience:  jwt.ClaimStrings{linkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("signing link token: %w", err)
	}

	q := u.Query()
	q.Set(linkTokenParam, signed)
	u.RawQuery = q.Encode()
	return &IssuedLink{JTI: jti, URL: u.String(), ExpiresAt: expiresAt}, nil
}

// Verify extracts and validates the token carried by linkURL.
// It returns the token id and the email it was issued for.
func (s *LinkSigner) Verify(linkURL string, now time.Time) (jti, email string, err error) {
	u, err := url.Parse(linkURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	raw := u.Query().Get(linkTokenParam)
	if raw == "" {
		return "", "", fmt.Errorf("%w: missing token", ErrInvalidLink)
	}

	var claims linkClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(linkIssuer),
		jwt.WithAudience(linkAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if claims.ID == "" || claims.Email == "" {
		return "", "", fmt.Errorf("%w: token is missing id or email", ErrInvalidLink)
	}
	return claims.ID, claims.Email, nil
}
