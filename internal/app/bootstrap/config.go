// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/oriundostartup/libreta/internal/app/accounts"
	"github.com/oriundostartup/libreta/internal/app/syncengine"
	"github.com/oriundostartup/libreta/internal/app/system/auditlog"
	"github.com/oriundostartup/libreta/internal/app/system/auth"
	"github.com/oriundostartup/libreta/internal/app/system/ratelimit"
	"github.com/oriundostartup/libreta/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Libreta.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, mirror_path, etc.
//   - Environment variables: LIBRETA_MONGO_URI, LIBRETA_MIRROR_PATH, etc.
//   - Command-line flags: --mongo_uri, --mirror_path, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "libreta", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mirror_path", Default: "./data/mirror.db", Desc: "Path of the local SQLite mirror"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: auth.DefaultSessionName, Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime (e.g., 24h, 720h)"},

	// Provisioning and sync
	{Name: "remote_write_attempts", Default: 1, Desc: "Attempts per remote write during registration (1 disables retries)"},
	{Name: "remote_retry_backoff", Default: "500ms", Desc: "Base backoff between remote write attempts"},
	{Name: "sync_concurrency", Default: syncengine.DefaultConcurrency, Desc: "Categories fetched in parallel during a sync"},
	{Name: "sync_timeout", Default: "30s", Desc: "Timeout for a full sync of one identity"},
	{Name: "flow_timeout", Default: "60s", Desc: "Timeout for a whole registration or sign-in"},

	// Login throttling
	{Name: "login_rate_limit", Default: ratelimit.DefaultLoginsPerMinute, Desc: "Sign-in attempts allowed per IP per minute"},
	{Name: "trusted_proxies", Default: "", Desc: "Comma-separated proxy CIDRs whose X-Forwarded-For is trusted (blank trusts none)"},

	// Audit logging settings
	{Name: "audit_log", Default: auditlog.All, Desc: "Audit event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Google credential linking
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// environment variables (WAFFLE_* for core, LIBRETA_* for app) and flags,
// with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "LIBRETA", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MirrorPath:       appValues.String("mirror_path"),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		RemoteWriteAttempts: appValues.Int("remote_write_attempts"),
		RemoteRetryBackoff:  appValues.Duration("remote_retry_backoff", accounts.DefaultRetryBackoff),
		SyncConcurrency:     appValues.Int("sync_concurrency"),
		SyncTimeout:         appValues.Duration("sync_timeout", timeouts.DefaultSync),
		FlowTimeout:         appValues.Duration("flow_timeout", timeouts.DefaultFlow),

		LoginRateLimit: appValues.Int("login_rate_limit"),
		TrustedProxies: appValues.String("trusted_proxies"),
		AuditLog:       appValues.String("audit_log"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The MongoDB URI is checked before any connection is attempted; the
// remaining checks reject values the flow and sync engine cannot run with.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateAppConfig(appCfg)
}

func validateAppConfig(appCfg AppConfig) error {
	var errs []error
	if appCfg.MongoDatabase == "" {
		errs = append(errs, errors.New("mongo_database must not be empty"))
	}
	if appCfg.MirrorPath == "" {
		errs = append(errs, errors.New("mirror_path must not be empty"))
	}
	if appCfg.RemoteWriteAttempts < 1 {
		errs = append(errs, fmt.Errorf("remote_write_attempts must be at least 1, got %d", appCfg.RemoteWriteAttempts))
	}
	if appCfg.RemoteRetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("remote_retry_backoff must not be negative, got %s", appCfg.RemoteRetryBackoff))
	}
	if appCfg.SyncConcurrency < 1 {
		errs = append(errs, fmt.Errorf("sync_concurrency must be at least 1, got %d", appCfg.SyncConcurrency))
	}
	if appCfg.LoginRateLimit < 1 {
		errs = append(errs, fmt.Errorf("login_rate_limit must be at least 1, got %d", appCfg.LoginRateLimit))
	}
	if _, err := ratelimit.ParseProxies(appCfg.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("trusted_proxies: %w", err))
	}
	switch appCfg.AuditLog {
	case auditlog.All, auditlog.DB, auditlog.Log, auditlog.Off:
	default:
		errs = append(errs, fmt.Errorf("audit_log must be one of all, db, log, off; got %q", appCfg.AuditLog))
	}
	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		errs = append(errs, errors.New("google_client_id and google_client_secret must be set together"))
	}
	return errors.Join(errs...)
}
