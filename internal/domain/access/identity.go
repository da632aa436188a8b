// Package access holds the authorization core: the caller identity and the
// visibility and mutation policies evaluated against event snapshots.
//
// Every function in this package is a pure predicate. Services call them
// before touching the store so a rejected check never reaches a write.
package access

import (
	"context"
	"strings"
)

// Identity is the caller of a single request: either anonymous or an
// authenticated user, optionally with staff privileges. The zero value is
// Anonymous.
type Identity struct {
	userID string
	staff  bool
}

// Anonymous returns the unauthenticated identity.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns an identity for userID. A blank userID yields Anonymous.
func Authenticated(userID string, staff bool) Identity {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}
	}
	return Identity{userID: userID, staff: staff}
}

func (i Identity) IsAnonymous() bool {
	return i.userID == ""
}

func (i Identity) UserID() string {
	return i.userID
}

// IsStaff reports staff privileges. Anonymous callers are never staff.
func (i Identity) IsStaff() bool {
	return i.userID != "" && i.staff
}

func (i Identity) String() string {
	if i.IsAnonymous() {
		return "anonymous"
	}
	if i.staff {
		return "staff:" + i.userID
	}
	return "user:" + i.userID
}

type identityKey struct{}

// WithIdentity stores the resolved identity on ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// FromContext returns the identity stored on ctx, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous()
	}
	if identity, ok := ctx.Value(identityKey{}).(Identity); ok {
		return identity
	}
	return Anonymous()
}
