// Package auth validates the signed session cookie presented on a realtime
// upgrade request and resolves it to a user id.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-monolith/mono/pkg/types"
)

// Authentication failures. Each one rejects the upgrade.
var (
	ErrNoSessionCookie     = errors.New("no session cookie")
	ErrInvalidSignature    = errors.New("invalid session signature")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNoAuthenticatedUser = errors.New("session has no authenticated user")
	ErrNoSecrets           = errors.New("at least one session secret is required")
)

// SessionStore looks up server-side sessions by id. Get returns (nil, nil)
// when the session does not exist or has expired.
type SessionStore interface {
	Get(ctx context.Context, sid string) (*Session, error)
}

// Authenticator resolves session cookies to user ids.
type Authenticator struct {
	store   SessionStore
	secrets []string
	logger  types.Logger
}

// NewAuthenticator creates an authenticator. secrets are tried in order so
// a rotated-out secret can stay at the end of the list.
func NewAuthenticator(store SessionStore, secrets []string, logger types.Logger) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if len(secrets) == 0 {
		return nil, ErrNoSecrets
	}
	return &Authenticator{
		store:   store,
		secrets: append([]string(nil), secrets...),
		logger:  logger,
	}, nil
}

// Authenticate verifies rawCookie and returns the authenticated user id.
func (a *Authenticator) Authenticate(ctx context.Context, rawCookie string) (int64, error) {
	if rawCookie == "" {
		return 0, ErrNoSessionCookie
	}

	sid, ok := Unsign(rawCookie, a.secrets)
	if !ok {
		return 0, ErrInvalidSignature
	}

	session, err := a.store.Get(ctx, sid)
	if err != nil {
		a.logger.Error("Session lookup failed", "error", err)
		return 0, fmt.Errorf("session lookup: %w", err)
	}
	if session == nil {
		return 0, ErrSessionNotFound
	}
	if session.UserID <= 0 {
		return 0, ErrNoAuthenticatedUser
	}

	return session.UserID, nil
}
