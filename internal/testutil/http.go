package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/oriundostartup/libreta/internal/app/system/auth"
)

// WithUser adds a signed-in identity to the request context.
// This bypasses the session middleware and injects the user directly.
func WithUser(r *http.Request, uid, email string) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{UID: uid, Email: email})
}

// NewAuthenticatedRequest creates an HTTP request with an identity in context.
func NewAuthenticatedRequest(method, target, uid string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return WithUser(req, uid, uid+"@test.com")
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}

// AssertJSON checks the Content-Type header.
func (r *ResponseRecorder) AssertJSON(t interface{ Errorf(string, ...any) }) {
	if ct := r.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
}
