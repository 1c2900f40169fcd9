// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers ports, TLS, logging and CORS. Everything
// Libreta needs on top of that lives here and is passed to every
// lifecycle hook.
type AppConfig struct {
	// Remote document store (MongoDB)
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connections in the driver pool

	// Local mirror (SQLite)
	MirrorPath string // File path of the mirror database

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: libreta-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Cookie lifetime

	// Provisioning and sync
	RemoteWriteAttempts int           // Attempts per remote write during registration (1 = no retry)
	RemoteRetryBackoff  time.Duration // Base backoff between attempts, multiplied by attempt number
	SyncConcurrency     int           // Categories fetched in parallel during a sync

	// Timeouts
	SyncTimeout time.Duration // Whole sync of one identity
	FlowTimeout time.Duration // Whole registration or sign-in

	// Login throttling
	LoginRateLimit int    // Sign-in attempts per IP per minute
	TrustedProxies string // Comma-separated CIDRs whose X-Forwarded-For is believed

	// Audit logging: 'all' (db+log), 'db', 'log', or 'off'
	AuditLog string

	// Google credential linking (optional)
	GoogleClientID     string
	GoogleClientSecret string
}
