// Package auth keeps the signed-in identity in a gorilla/sessions cookie
// and exposes it to handlers through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// DefaultSessionName is the cookie name when none is configured.
const DefaultSessionName = "libreta-session"

const (
	isAuthKey = "is_authenticated"
	uidKey    = "uid"
	emailKey  = "email"
)

// SessionUser is what the session remembers about the signed-in identity.
type SessionUser struct {
	UID   string
	Email string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user LoadSessionUser placed in the context.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser returns r carrying u, as LoadSessionUser would.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// SessionManager reads and writes the session cookie.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds the cookie store. An empty key is replaced with
// a random one, which signs everyone out on restart. In production
// (secure=true) cookies are Secure with SameSite=None; over plain http in
// development they use SameSite=Lax so browsers accept them.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	key := []byte(sessionKey)
	switch {
	case len(key) == 0:
		key = securecookie.GenerateRandomKey(32)
		if key == nil {
			return nil, errors.New("generate session key")
		}
		logger.Warn("no session key configured; sessions will not survive a restart")
	case len(key) < 32:
		logger.Warn("session key is short; 32+ chars recommended", zap.Int("length", len(key)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// GetSession returns the request's session. On a cookie that no longer
// decodes (rotated key, tampering) it returns a fresh session and the error.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// SignIn stores u in the session cookie.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, err := sm.GetSession(r)
	if err != nil && !isDecodeError(err) {
		return fmt.Errorf("load session: %w", err)
	}
	sess.Values[isAuthKey] = true
	sess.Values[uidKey] = u.UID
	sess.Values[emailKey] = u.Email
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.GetSession(r)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// LoadSessionUser injects the signed-in user, if any, into the context.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.GetSession(r)
		if err != nil {
			if isDecodeError(err) {
				sm.log.Debug("ignoring undecodable session cookie", zap.Error(err))
			} else {
				sm.log.Warn("session store error", zap.Error(err))
			}
		}
		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			r = withUser(r, &SessionUser{
				UID:   getString(sess, uidKey),
				Email: getString(sess, emailKey),
			})
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn answers 401 when LoadSessionUser found no user.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := CurrentUser(r); !ok || u.UID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func isDecodeError(err error) bool {
	var scErr securecookie.Error
	return errors.As(err, &scErr) && scErr.IsDecode()
}
