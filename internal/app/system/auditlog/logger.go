// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strings"

	"github.com/oriundostartup/libreta/internal/app/store/audit"
	"github.com/oriundostartup/libreta/internal/app/system/ratelimit"
	"go.uber.org/zap"
)

// Destination settings accepted by Config fields.
const (
	All = "all" // MongoDB + zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off"
)

// Config holds audit logging configuration, one destination per category.
type Config struct {
	Auth    string
	Account string
	Sync    string
}

// Uniform returns a Config that sends every category to the same destination.
func Uniform(setting string) Config {
	return Config{Auth: setting, Account: setting, Sync: setting}
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store   *audit.Store
	zapLog  *zap.Logger
	config  Config
	proxies ratelimit.Proxies
}

// New creates a new audit Logger. store may be nil when every category
// is configured for "log" or "off".
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// TrustProxies makes recorded IPs follow forwarding headers set by these
// proxies. Without it the TCP peer is recorded.
func (l *Logger) TrustProxies(p ratelimit.Proxies) {
	if l != nil {
		l.proxies = p
	}
}

func (l *Logger) clientIP(r *http.Request) string {
	if l == nil || r == nil {
		return ""
	}
	return l.proxies.ClientIP(r)
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}
	if event.UID != "" {
		fields = append(fields, zap.String("uid", event.UID))
	}
	if event.Email != "" {
		fields = append(fields, zap.String("email", event.Email))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	switch category {
	case audit.CategoryAuth:
		return l.config.Auth
	case audit.CategoryAccount:
		return l.config.Account
	case audit.CategorySync:
		return l.config.Sync
	}
	return All
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.setting(event.Category)
	if setting == "" {
		setting = All
	}
	if setting == Off {
		return
	}

	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Authentication Events ---

// LoginSuccess logs a successful sign-in.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, uid, email string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginSuccess,
		UID:       uid,
		Email:     email,
		IP:        l.clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// LoginFailed logs a rejected sign-in.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, email, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailed,
		Email:         email,
		IP:            l.clientIP(r),
		UserAgent:     r.UserAgent(),
		FailureReason: reason,
	})
}

// LoginRateLimited logs a sign-in refused by the rate limiter.
func (l *Logger) LoginRateLimited(ctx context.Context, r *http.Request, email string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginRateLimited,
		Email:         email,
		IP:            l.clientIP(r),
		UserAgent:     r.UserAgent(),
		FailureReason: "rate limit exceeded",
	})
}

// Logout logs a sign-out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, uid string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		UID:       uid,
		IP:        l.clientIP(r),
		UserAgent: r.UserAgent(),
		Success:   true,
	})
}

// CredentialLinked logs an external credential attached to an identity.
func (l *Logger) CredentialLinked(ctx context.Context, uid, provider string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventCredentialLinked,
		UID:       uid,
		Success:   true,
		Details:   map[string]string{"provider": provider},
	})
}

// CredentialNotLinked logs an external credential that could not be attached.
// Registration continues without it.
func (l *Logger) CredentialNotLinked(ctx context.Context, uid, provider string, err error) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventCredentialNotLinked,
		UID:           uid,
		FailureReason: errString(err),
		Details:       map[string]string{"provider": provider},
	})
}

// --- Account Events ---

// RegistrationSucceeded logs a completed registration.
func (l *Logger) RegistrationSucceeded(ctx context.Context, uid, email, role string) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAccount,
		EventType: audit.EventRegistrationSucceeded,
		UID:       uid,
		Email:     email,
		Success:   true,
		Details:   map[string]string{"role": role},
	})
}

// RegistrationFailed logs a registration that ended with an error. uid is
// empty when the failure happened before the identity existed.
func (l *Logger) RegistrationFailed(ctx context.Context, uid, email, role, kind string, err error) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAccount,
		EventType:     audit.EventRegistrationFailed,
		UID:           uid,
		Email:         email,
		FailureReason: errString(err),
		Details: map[string]string{
			"role": role,
			"kind": kind,
		},
	})
}

// CompensationFailed logs an undo step that could not remove what its
// forward step wrote. Such records usually need manual cleanup.
func (l *Logger) CompensationFailed(ctx context.Context, uid, step string, err error) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAccount,
		EventType:     audit.EventCompensationFailed,
		UID:           uid,
		FailureReason: errString(err),
		Details:       map[string]string{"step": step},
	})
}

// --- Sync Events ---

// SyncPartial logs a sync where some categories failed.
func (l *Logger) SyncPartial(ctx context.Context, uid string, failed []string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySync,
		EventType:     audit.EventSyncPartial,
		UID:           uid,
		FailureReason: "categories failed",
		Details:       map[string]string{"failed": strings.Join(failed, ",")},
	})
}

// ProfileMissing logs a sync for an identity with no remote profile.
func (l *Logger) ProfileMissing(ctx context.Context, uid string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategorySync,
		EventType:     audit.EventProfileMissing,
		UID:           uid,
		FailureReason: "remote profile not found",
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
