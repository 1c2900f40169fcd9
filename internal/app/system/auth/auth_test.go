package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oriundostartup/libreta/internal/app/system/auth"
	"go.uber.org/zap"
)

func newTestSessionManager(t *testing.T) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(
		"test-session-key-must-be-32-chars-long",
		"test-session",
		"",
		24*time.Hour,
		false,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return sm
}

// echoUID writes the signed-in uid, or "-" when there is none.
func echoUID(w http.ResponseWriter, r *http.Request) {
	if u, ok := auth.CurrentUser(r); ok {
		w.Write([]byte(u.UID))
		return
	}
	w.Write([]byte("-"))
}

func TestSignIn_RoundTrip(t *testing.T) {
	sm := newTestSessionManager(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/accounts/login", nil)
	if err := sm.SignIn(rec, req, auth.SessionUser{UID: "uid-1", Email: "a@example.com"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	next := httptest.NewRequest("GET", "/accounts/me", nil)
	for _, c := range cookies {
		next.AddCookie(c)
	}
	out := httptest.NewRecorder()
	sm.LoadSessionUser(http.HandlerFunc(echoUID)).ServeHTTP(out, next)

	if got := out.Body.String(); got != "uid-1" {
		t.Errorf("user = %q, want uid-1", got)
	}
}

func TestLoadSessionUser_IgnoresForeignCookie(t *testing.T) {
	sm := newTestSessionManager(t)

	req := httptest.NewRequest("GET", "/accounts/me", nil)
	req.AddCookie(&http.Cookie{Name: "test-session", Value: "not-a-valid-cookie"})
	rec := httptest.NewRecorder()
	sm.LoadSessionUser(http.HandlerFunc(echoUID)).ServeHTTP(rec, req)

	if got := rec.Body.String(); got != "-" {
		t.Errorf("user = %q, want none", got)
	}
}

func TestSignOut_ExpiresCookie(t *testing.T) {
	sm := newTestSessionManager(t)

	rec := httptest.NewRecorder()
	if err := sm.SignOut(rec, httptest.NewRequest("POST", "/accounts/logout", nil)); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v, want one expired cookie", cookies)
	}
}

func TestRequireSignedIn_NoUser_Returns401(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/accounts/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestRequireSignedIn_WithUser_Proceeds(t *testing.T) {
	sm := newTestSessionManager(t)

	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := auth.WithTestUser(httptest.NewRequest("GET", "/accounts/me", nil), &auth.SessionUser{UID: "uid-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestNewSessionManager_GeneratesKeyWhenEmpty(t *testing.T) {
	sm, err := auth.NewSessionManager("", "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	rec := httptest.NewRecorder()
	if err := sm.SignIn(rec, httptest.NewRequest("POST", "/", nil), auth.SessionUser{UID: "uid-1"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != auth.DefaultSessionName {
		t.Errorf("cookies = %+v, want %s", cookies, auth.DefaultSessionName)
	}
}
