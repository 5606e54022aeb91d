// Package authapi provides JSON sign-up, sign-in and session endpoints.
//
// Endpoints (mounted at /api/auth):
//   - POST /signup   - Create an account and sign in
//   - POST /login    - Sign in with email and password
//   - POST /logout   - End the current session
//   - GET  /me       - The signed-in user
//   - GET  /sessions - The user's open sessions
//
// CSRFToken serves GET /api/csrf.
package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/store/loginattempts"
	"github.com/consistencygrid/consistencygrid/internal/app/store/sessions"
	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/authutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/htmlsanitize"
	"github.com/consistencygrid/consistencygrid/internal/app/system/inputval"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/network"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/gorilla/csrf"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the auth endpoints.
type Handler struct {
	users      *userstore.Store
	sessions   *sessions.Store
	attempts   *loginattempts.Store
	sessionMgr *auth.SessionManager
	inv        *invalidate.Invalidator
	sessionTTL time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

// NewHandler creates an auth handler. sessionTTL bounds how long a tracked
// session record stays open; it should match the cookie lifetime.
func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	attempts *loginattempts.Store,
	inv *invalidate.Invalidator,
	sessionTTL time.Duration,
	c clock.Clock,
	logger *zap.Logger,
) *Handler {
	c = clock.OrReal(c)
	return &Handler{
		users:      userstore.New(db),
		sessions:   sessions.New(db, c),
		attempts:   attempts,
		sessionMgr: sessionMgr,
		inv:        inv,
		sessionTTL: sessionTTL,
		clock:      c,
		logger:     logger,
	}
}

// Me is the public view of the signed-in user.
type Me struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Plan     string `json:"plan"`
	Timezone string `json:"timezone"`
}

func meFromUser(u *models.User) Me {
	return Me{ID: u.ID.Hex(), Name: u.Name, Email: u.Email, Role: u.Role, Plan: u.Plan, Timezone: u.Timezone}
}

type signupInput struct {
	Name     string `json:"name" validate:"max=200" label:"Name"`
	Email    string `json:"email" validate:"required,email,max=254" label:"Email"`
	Password string `json:"password" validate:"required" label:"Password"`
	Timezone string `json:"timezone" label:"Time zone"`
}

// Signup handles POST /api/auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var in signupInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	if err := authutil.ValidatePasswordFor(in.Password, in.Email); err != nil {
		jsonutil.ValidationError(w, map[string]string{"password": err.Error()})
		return
	}

	hash, err := authutil.HashPassword(in.Password)
	if err != nil {
		h.logger.Error("hash password failed", zap.Error(err))
		jsonutil.InternalError(w, "Failed to create account")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	user, err := h.users.Create(ctx, models.User{
		Name:         htmlsanitize.Line(in.Name, 200),
		Email:        in.Email,
		PasswordHash: hash,
		Timezone:     in.Timezone,
	})
	switch {
	case errors.Is(err, userstore.ErrDuplicateEmail):
		jsonutil.Conflict(w, "An account with this email already exists")
		return
	case userstore.IsValidationError(err):
		jsonutil.BadRequest(w, err.Error())
		return
	case err != nil:
		h.logger.Error("create user failed", zap.Error(err))
		jsonutil.InternalError(w, "Failed to create account")
		return
	}

	if err := h.startSession(ctx, w, r, user.ID, user.Role); err != nil {
		h.logger.Error("failed to create session", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Account created but sign-in failed")
		return
	}

	h.logger.Info("user signed up", zap.String("user_id", user.ID.Hex()))
	jsonutil.Created(w, meFromUser(&user))
}

type loginInput struct {
	Email    string `json:"email" validate:"required" label:"Email"`
	Password string `json:"password" validate:"required" label:"Password"`
}

// Login handles POST /api/auth/login. Failures count against the email's
// lockout budget whether or not the account exists.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if allowed, _, lockedUntil := h.attempts.CheckAllowed(ctx, in.Email); !allowed {
		h.logger.Info("login rejected: locked out", zap.String("ip", network.ClientIP(r)))
		h.lockedOut(w, lockedUntil)
		return
	}

	user, err := h.users.GetByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		h.logger.Error("database error during login lookup", zap.Error(err))
		jsonutil.Error(w, http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again.")
		return
	}

	var hash string
	if user != nil {
		hash = user.PasswordHash
	}
	if !authutil.CheckPassword(in.Password, hash) {
		if locked, lockedUntil := h.attempts.RecordFailure(ctx, in.Email); locked {
			h.lockedOut(w, lockedUntil)
			return
		}
		jsonutil.Unauthorized(w, "Invalid credentials")
		return
	}

	if user.IsDisabled() {
		h.attempts.RecordFailure(ctx, in.Email)
		jsonutil.Forbidden(w, "Account is disabled")
		return
	}

	if err := h.attempts.ClearOnSuccess(ctx, in.Email); err != nil {
		h.logger.Warn("failed to clear login attempts", zap.Error(err))
	}
	if authutil.NeedsRehash(user.PasswordHash) {
		h.rehash(ctx, user.ID, in.Password)
	}

	if err := h.startSession(ctx, w, r, user.ID, user.Role); err != nil {
		h.logger.Error("failed to create session", zap.String("user_id", user.ID.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Sign-in failed")
		return
	}

	jsonutil.OK(w, meFromUser(user))
}

// rehash upgrades a stored hash to the current cost. Failure only logs;
// the old hash keeps working.
func (h *Handler) rehash(ctx context.Context, id primitive.ObjectID, password string) {
	hash, err := authutil.HashPassword(password)
	if err == nil {
		err = h.users.UpdatePassword(ctx, id, hash)
	}
	if err != nil {
		h.logger.Warn("password rehash failed", zap.String("user_id", id.Hex()), zap.Error(err))
	}
}

// Logout handles POST /api/auth/logout. Cached aggregates for the user are
// dropped along with the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if u, ok := auth.CurrentUser(r); ok {
		ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
		defer cancel()

		if u.Token != "" {
			if err := h.sessions.Close(ctx, u.Token, sessions.EndReasonLogout); err != nil && !errors.Is(err, sessions.ErrNotFound) {
				h.logger.Warn("failed to close session in store", zap.Error(err))
			}
		}
		_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeAll)
	}

	h.sessionMgr.DestroySession(w, r)
	jsonutil.NoContent(w)
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	jsonutil.OK(w, Me{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Plan:     u.Plan,
		Timezone: u.Location().String(),
	})
}

// Sessions handles GET /api/auth/sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.sessions.ListOpen(ctx, u.UserID())
	if err != nil {
		h.logger.Error("list sessions failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load sessions")
		return
	}

	type view struct {
		sessions.Session
		Current bool `json:"current"`
	}
	out := make([]view, 0, len(list))
	for _, s := range list {
		out = append(out, view{Session: s, Current: s.Token == u.Token})
	}
	jsonutil.OK(w, map[string]any{"sessions": out})
}

// CSRFToken handles GET /api/csrf. Clients echo the token in the
// X-CSRF-Token header on unsafe requests.
func CSRFToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	jsonutil.OK(w, map[string]string{"csrfToken": csrf.Token(r)})
}

// startSession sets the session cookie and records the sign-in. A failed
// record is logged; the cookie alone is enough to proceed.
func (h *Handler) startSession(ctx context.Context, w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, role string) error {
	token, err := h.sessionMgr.CreateSession(w, r, userID, role)
	if err != nil {
		return err
	}

	_, err = h.sessions.Create(ctx, sessions.Session{
		Token:     token,
		UserID:    userID,
		IPAddress: network.ClientIP(r),
		UserAgent: r.UserAgent(),
		ExpiresAt: h.clock.Now().Add(h.sessionTTL),
	})
	if err != nil {
		h.logger.Warn("failed to track session", zap.Error(err))
	}
	return nil
}

func (h *Handler) lockedOut(w http.ResponseWriter, lockedUntil *time.Time) {
	var remaining time.Duration
	if lockedUntil != nil {
		remaining = lockedUntil.Sub(h.clock.Now())
	}
	msg := "Too many failed sign-in attempts. Please try again later."
	switch {
	case remaining > time.Minute:
		msg = fmt.Sprintf("Too many failed sign-in attempts. Please try again in %d minute(s).", int(remaining.Minutes())+1)
	case remaining > 0:
		msg = fmt.Sprintf("Too many failed sign-in attempts. Please try again in %d second(s).", jsonutil.RetryAfterSeconds(remaining))
	}
	jsonutil.TooManyRequests(w, remaining, msg)
}
