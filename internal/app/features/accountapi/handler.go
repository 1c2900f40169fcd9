// internal/app/features/accountapi/handler.go
package accountapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oriundostartup/libreta/internal/app/accounts"
	"github.com/oriundostartup/libreta/internal/app/system/accounterr"
	"github.com/oriundostartup/libreta/internal/app/system/auditlog"
	"github.com/oriundostartup/libreta/internal/app/system/auth"
	"github.com/oriundostartup/libreta/internal/app/system/federated"
	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/app/system/ratelimit"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies; registrations are small.
const maxBodyBytes = 64 << 10

// Registrar runs registrations. *accounts.Flow satisfies it.
type Registrar interface {
	Register(ctx context.Context, reg accounts.Registration) (*accounts.ProvisionedAccount, error)
	CompleteProfile(ctx context.Context, uid string, reg accounts.Registration) (*accounts.ProvisionedAccount, error)
}

// SessionResolver signs in and resolves identities. *accounts.Resolver
// satisfies it.
type SessionResolver interface {
	ResolveCurrentUser(ctx context.Context, uid string) (*accounts.Session, error)
	SignIn(ctx context.Context, email, password string) (*accounts.Session, error)
	SignInWithCredential(ctx context.Context, cred federated.Credential) (*accounts.Session, error)
}

// Handler serves the JSON account API.
type Handler struct {
	Flow     Registrar
	Resolver SessionResolver
	Sessions *auth.SessionManager
	Limiter  *ratelimit.LoginLimiter
	Audit    *auditlog.Logger
	Activity ActivityLog
	Log      *zap.Logger
}

func NewHandler(flow Registrar, resolver SessionResolver, sessions *auth.SessionManager, limiter *ratelimit.LoginLimiter, audit *auditlog.Logger, activity ActivityLog, logger *zap.Logger) *Handler {
	return &Handler{
		Flow:     flow,
		Resolver: resolver,
		Sessions: sessions,
		Limiter:  limiter,
		Audit:    audit,
		Activity: activity,
		Log:      logger,
	}
}

// registerRequest is the body of POST /accounts/register. Role selects
// which of the role-specific fields apply.
type registerRequest struct {
	accounts.AccountForm
	Role       string                `json:"role"`
	FirstClass *accounts.ClassForm   `json:"first_class,omitempty"`
	Student    *accounts.StudentForm `json:"student,omitempty"`
	JoinCode   string                `json:"join_code,omitempty"`
	External   *federated.Credential `json:"external,omitempty"`
}

func (req registerRequest) registration() (accounts.Registration, error) {
	reg := accounts.Registration{Account: req.AccountForm, External: req.External}
	switch req.Role {
	case accounts.RoleTeacher:
		reg.Intent = accounts.TeacherIntent{FirstClass: req.FirstClass}
	case accounts.RoleParent:
		reg.Intent = accounts.ParentIntent{Student: req.Student, JoinCode: req.JoinCode}
	default:
		return reg, accounterr.Invalid("role", "role must be teacher or parent")
	}
	return reg, nil
}

type loginRequest struct {
	Email      string                `json:"email"`
	Password   string                `json:"password"`
	Credential *federated.Credential `json:"credential,omitempty"`
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Kind       string   `json:"kind"`
	MessageKey string   `json:"message_key"`
	Remedy     string   `json:"remedy"`
	Missing    []string `json:"missing,omitempty"`
}

type syncResponse struct {
	Status   string   `json:"status"`
	Degraded []string `json:"degraded,omitempty"`
}

// HandleRegister handles POST /accounts/register.
//
// 201 with the mirrored records on success; the new identity is signed in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	reg, err := req.registration()
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Flow(), h.Log, "register")
	defer cancel()

	out, err := h.Flow.Register(ctx, reg)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.Sessions.SignIn(w, r, auth.SessionUser{UID: out.UID, Email: out.Profile.Email}); err != nil {
		h.Log.Error("session save failed after registration", zap.String("uid", out.UID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandleCompleteProfile handles POST /accounts/me/profile: the register
// remedy for a signed-in identity whose profile is missing. The body is a
// registration without a password; the email is the session's.
func (h *Handler) HandleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Email = u.Email
	req.Password = ""
	reg, err := req.registration()
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Flow(), h.Log, "complete profile")
	defer cancel()

	out, err := h.Flow.CompleteProfile(ctx, u.UID, reg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandleLogin handles POST /accounts/login with either email/password or
// a linked federated credential. Attempts are rate limited per IP and
// per email.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	email := normalize.Email(req.Email)

	if ok, limit := h.Limiter.Check(r, email); !ok {
		h.Log.Warn("login rate limited", zap.String("limit", limit), zap.String("ip", h.Limiter.ClientIP(r)))
		h.Audit.LoginRateLimited(r.Context(), r, email)
		http.Error(w, "too many login attempts", http.StatusTooManyRequests)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Flow(), h.Log, "login")
	defer cancel()

	var (
		sess *accounts.Session
		err  error
	)
	if req.Credential != nil {
		sess, err = h.Resolver.SignInWithCredential(ctx, *req.Credential)
	} else {
		sess, err = h.Resolver.SignIn(ctx, email, req.Password)
	}
	if err != nil {
		if errors.Is(err, accounterr.InvalidCredentials) {
			h.Audit.LoginFailed(r.Context(), r, email, "invalid_credentials")
		}
		h.writeError(w, err)
		return
	}

	if email == "" {
		email = sess.Profile.Email
	}
	h.Limiter.ResetEmail(email)
	h.Audit.LoginSuccess(r.Context(), r, sess.UID, email)

	if err := h.Sessions.SignIn(w, r, auth.SessionUser{UID: sess.UID, Email: sess.Profile.Email}); err != nil {
		h.Log.Error("session save failed", zap.String("uid", sess.UID), zap.Error(err))
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleLogout handles POST /accounts/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if u, ok := auth.CurrentUser(r); ok {
		h.Audit.Logout(r.Context(), r, u.UID)
	}
	if err := h.Sessions.SignOut(w, r); err != nil {
		h.Log.Warn("session clear failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeMe handles GET /accounts/me. The mirror is resynced first.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleSync handles POST /accounts/me/sync, the retry-sync remedy.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.resolve(w, r)
	if !ok {
		return
	}
	resp := syncResponse{Status: "ok", Degraded: sess.Degraded}
	if len(sess.Degraded) > 0 {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*accounts.Session, bool) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Flow(), h.Log, "resolve")
	defer cancel()

	sess, err := h.Resolver.ResolveCurrentUser(ctx, u.UID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, accounterr.Invalid("body", err.Error()))
		return false
	}
	return true
}

// writeError renders err by kind. Causes are logged, never sent.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := accounterr.KindOf(err)
	resp := errorResponse{
		Kind:       kind.String(),
		MessageKey: kind.MessageKey(),
		Remedy:     string(kind.Remedy()),
	}
	var e *accounterr.Error
	if errors.As(err, &e) {
		resp.Missing = e.Missing
	}

	if status := kind.HTTPStatus(); status >= http.StatusInternalServerError {
		h.Log.Error("account request failed", zap.String("kind", resp.Kind), zap.Error(err))
	} else {
		h.Log.Info("account request rejected", zap.String("kind", resp.Kind), zap.Error(err))
	}
	writeJSON(w, kind.HTTPStatus(), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
