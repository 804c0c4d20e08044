package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the caller behind a valid credential
type Identity struct {
	UserID string
	Email  string
}

// Resolver maps an opaque credential to an optional identity
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Identity, bool)
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service verifies and issues HMAC signed JWTs
type Service struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates an auth service. An empty secret disables verification.
func NewService(cfg *config.AuthConfig) (*Service, error) {
	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.Algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing algorithm %s is not HMAC", cfg.Algorithm)
	}

	return &Service{
		secret: []byte(cfg.Secret),
		method: method,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}, nil
}

// Enabled reports whether a secret is configured
func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

// IssueToken signs a token for userID
func (s *Service) IssueToken(userID, email string) (string, error) {
	if !s.Enabled() {
		return "", errors.New("auth secret is not configured")
	}

	now := s.now()
	token := jwt.NewWithClaims(s.method, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// Resolve returns the identity for a valid token. Absent, malformed or
// expired credentials resolve to no identity.
func (s *Service) Resolve(ctx context.Context, credential string) (*Identity, bool) {
	credential = strings.TrimSpace(credential)
	if !s.Enabled() || credential == "" {
		return nil, false
	}

	var c claims
	token, err := jwt.ParseWithClaims(credential, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || c.Subject == "" {
		return nil, false
	}

	return &Identity{UserID: c.Subject, Email: c.Email}, true
}

type identityKey struct{}

// WithIdentity attaches id to ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by WithIdentity
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// UserID returns the caller's user id, or "" for anonymous callers
func UserID(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id.UserID
	}
	return ""
}
