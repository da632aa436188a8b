// Package testauth issues bearer tokens for tests and local tooling.
// This package should NEVER be used in production code.
//
// Tokens are signed with the same HKDF-derived key the server validates
// against, so a request authorized here passes the identity middleware of a
// server configured with the same secret and issuer.
package testauth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/auth"
)

const (
	// DevSecret is the well-known development secret (matches .env default).
	DevSecret = "dev_jwt_secret_change_me_in_production"
	DevIssuer = "gatherings"
)

// Issuer signs tokens for arbitrary subjects.
type Issuer struct {
	manager *auth.JWTManager
}

// Config configures an Issuer. Empty fields fall back to DEV_JWT_SECRET,
// then DevSecret, DevIssuer and a one hour expiry.
type Config struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

func New(cfg Config) (*Issuer, error) {
	secret := cfg.Secret
	if secret == "" {
		secret = os.Getenv("DEV_JWT_SECRET")
	}
	if secret == "" {
		secret = DevSecret
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = DevIssuer
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	manager, err := auth.NewJWTManager(secret, expiry, issuer)
	if err != nil {
		return nil, fmt.Errorf("testauth: %w", err)
	}
	return &Issuer{manager: manager}, nil
}

// Token signs a token for subject.
func (i *Issuer) Token(subject string, role auth.Role) (string, error) {
	return i.manager.Generate(subject, role)
}

// Authorize sets the Authorization header on req. An empty subject leaves the
// request anonymous.
func (i *Issuer) Authorize(req *http.Request, subject string, role auth.Role) error {
	if req == nil || strings.TrimSpace(subject) == "" {
		return nil
	}
	token, err := i.Token(subject, role)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Validator returns the manager that verifies tokens from this issuer.
func (i *Issuer) Validator() *auth.JWTManager {
	return i.manager
}
