package auth

import (
	"net/http"

	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/network"
	"github.com/consistencygrid/consistencygrid/internal/app/system/normalize"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// LoadSessionUser attaches the signed-in user to the request context. A bad
// cookie, an unknown or disabled user, or a closed server-side session all
// leave the request anonymous.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.logSessionError(r, err)
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			if u := sm.resolve(r, sess); u != nil {
				r = withUser(r, u)
			} else {
				clearAuth(sess)
				_ = sess.Save(r, w)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (sm *SessionManager) resolve(r *http.Request, sess *sessions.Session) *SessionUser {
	userID := getString(sess, userIDKey)
	token := getString(sess, sessionTokenKey)
	if userID == "" {
		return nil
	}

	if sm.tracker != nil && token != "" {
		open, err := sm.tracker.Check(r.Context(), token)
		switch {
		case err != nil:
			// Keep the user signed in when the session store is unavailable.
			sm.logger.Warn("session check failed", zap.String("user_id", userID), zap.Error(err))
		case !open:
			sm.logger.Info("session closed server-side", zap.String("user_id", userID))
			return nil
		}
	}

	if sm.fetcher == nil {
		return &SessionUser{ID: userID, Role: getString(sess, userRoleKey), Token: token}
	}
	u := sm.fetcher.FetchUser(r.Context(), userID)
	if u == nil {
		sm.logger.Info("session invalidated: user not found or disabled",
			zap.String("user_id", userID),
			zap.String("path", r.URL.Path))
		return nil
	}
	u.Token = token
	return u
}

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, category := classifySessionError(err)
	fields := []zap.Field{zap.String("category", category), zap.String("path", r.URL.Path)}
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session", fields...)
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			append(fields, zap.String("ip", network.ClientIP(r)), zap.String("user_agent", r.UserAgent()))...)
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session", fields...)
	default:
		sm.logger.Error("session store error, starting fresh session", append(fields, zap.Error(err))...)
	}
}

// RequireSignedIn answers 401 unless a user is attached.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			jsonutil.Unauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 for anonymous requests and 403 unless the user
// holds one of the allowed roles (case-insensitive).
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[normalize.Role(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				jsonutil.Unauthorized(w, "Authentication required")
				return
			}
			if _, has := set[normalize.Role(u.Role)]; !has {
				jsonutil.Forbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
