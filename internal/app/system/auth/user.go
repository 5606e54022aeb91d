package auth

import (
	"context"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserFetcher loads the current profile for a session's user id.
type UserFetcher interface {
	// FetchUser returns nil when the user is gone, disabled, or cannot be
	// loaded; the session is then treated as signed out.
	FetchUser(ctx context.Context, userID string) *SessionUser
}

// SessionTracker reports whether the server-side record behind a session
// token is still open, recording activity on it as a side effect.
type SessionTracker interface {
	Check(ctx context.Context, token string) (open bool, err error)
}

// SessionUser is the signed-in user attached to the request context. It is
// reloaded on each request so plan upgrades, timezone changes and disabled
// accounts take effect immediately.
type SessionUser struct {
	ID       string
	Name     string
	Email    string
	Role     string
	Plan     string
	Timezone string // IANA zone; empty means UTC
	Token    string // server-side session token
}

// UserID returns the id as an ObjectID, or the zero id when malformed.
func (u *SessionUser) UserID() primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// Location returns the user's zone, falling back to UTC when the stored
// name does not load.
func (u *SessionUser) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ctxKey struct{}

// CurrentUser returns the signed-in user, if any.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(ctxKey{}).(*SessionUser)
	return u, ok
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, u))
}

// WithTestUser attaches u to r. Tests use it to skip the cookie round trip.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}
