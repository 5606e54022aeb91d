// Package auth is the cookie session layer: who is signed in, and the
// middleware that requires it. Every response it writes is JSON.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const defaultSessionName = "consistencygrid-session"

// Cookie values.
const (
	isAuthKey       = "is_authenticated"
	userIDKey       = "user_id"
	userRoleKey     = "user_role"
	sessionTokenKey = "session_token"
)

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string { return e.Message }

// SessionManager owns the cookie store and resolves the signed-in user.
type SessionManager struct {
	store   *sessions.CookieStore
	logger  *zap.Logger
	name    string
	fetcher UserFetcher
	tracker SessionTracker
}

// NewSessionManager builds a manager around a signed cookie store.
// sessionKey must be at least 32 characters and not a placeholder when
// secure is set; in development a weak key only logs a warning.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide at least 32 random characters"}
	}

	if weak := len(sessionKey) < 32 || isDefaultKey(sessionKey); weak {
		if secure {
			return nil, &SessionConfigError{
				Message: "session key is too weak for production; provide at least 32 random characters",
			}
		}
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = defaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain))

	return &SessionManager{store: store, logger: logger, name: name}, nil
}

// SessionName returns the cookie name.
func (sm *SessionManager) SessionName() string { return sm.name }

// SetUserFetcher makes LoadSessionUser reload the user on every request.
// Without one only the id and role stored in the cookie are known.
func (sm *SessionManager) SetUserFetcher(uf UserFetcher) { sm.fetcher = uf }

// SetSessionTracker makes LoadSessionUser honor server-side session state,
// so a session closed by logout-everywhere or the idle job stops resolving
// even while its cookie is still valid.
func (sm *SessionManager) SetSessionTracker(st SessionTracker) { sm.tracker = st }

// CreateSession signs the user in on this browser and returns the session
// token the server-side record is keyed by.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, role string) (string, error) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sess, _ = sm.store.New(r, sm.name)
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = userID.Hex()
	sess.Values[userRoleKey] = role
	sess.Values[sessionTokenKey] = token

	return token, sess.Save(r, w)
}

// DestroySession clears the cookie.
func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return
	}
	clearAuth(sess)
	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
}

// GenerateSessionToken returns 32 random bytes, URL-safe encoded.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func clearAuth(sess *sessions.Session) {
	sess.Values[isAuthKey] = false
	delete(sess.Values, userIDKey)
	delete(sess.Values, userRoleKey)
	delete(sess.Values, sessionTokenKey)
}

func getString(s *sessions.Session, key string) string {
	v, _ := s.Values[key].(string)
	return v
}

var placeholderKeyParts = []string{
	"dev-only", "change-me", "placeholder", "default", "example",
	"insecure", "test-key", "secret123", "password",
}

// isDefaultKey reports whether key looks like a shipped placeholder.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range placeholderKeyParts {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Cookie decode failures, by how loudly they should be logged.
type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // normal
	sessionErrTampered                   // MAC invalid
	sessionErrCorrupted                  // decode failed or key rotated
	sessionErrBackend
)

func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	var scErr securecookie.Error
	if !errors.As(err, &scErr) {
		return sessionErrBackend, "unknown"
	}
	if !scErr.IsDecode() {
		return sessionErrBackend, "backend"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "expired timestamp"):
		return sessionErrExpired, "expired"
	case strings.Contains(msg, "mac") || strings.Contains(msg, "hash"):
		return sessionErrTampered, "mac_invalid"
	case strings.Contains(msg, "decrypt"):
		return sessionErrCorrupted, "decrypt_failed"
	case strings.Contains(msg, "base64") || strings.Contains(msg, "decode"):
		return sessionErrCorrupted, "decode_failed"
	default:
		return sessionErrCorrupted, "decode_other"
	}
}
