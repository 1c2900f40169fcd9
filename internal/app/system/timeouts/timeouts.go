// Package timeouts provides centralized timeout values for remote calls,
// mirror writes and whole flows.
//
// Guidelines for choosing a timeout:
//   - Ping: health checks against Mongo and the mirror
//   - Short: single-document reads and point lookups (join code, profile)
//   - Step: one remote write inside a provisioning step
//   - Sync: a full remote-to-mirror sync for one identity
//   - Flow: a whole registration or login, sync included
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing  = 2 * time.Second
	DefaultShort = 5 * time.Second
	DefaultStep  = 10 * time.Second
	DefaultSync  = 30 * time.Second
	DefaultFlow  = 60 * time.Second
)

var mu sync.RWMutex

var (
	ping  = DefaultPing
	short = DefaultShort
	step  = DefaultStep
	syncT = DefaultSync
	flow  = DefaultFlow
)

// Ping returns the timeout for connectivity checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for point reads.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Step returns the timeout for one remote write in a provisioning step.
func Step() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return step
}

// Sync returns the timeout for a full sync of one identity.
func Sync() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return syncT
}

// Flow returns the timeout for a whole registration or login.
func Flow() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return flow
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping  time.Duration
	Short time.Duration
	Step  time.Duration
	Sync  time.Duration
	Flow  time.Duration
}

// Configure sets custom timeout values. Call during startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Step > 0 {
		step = cfg.Step
	}
	if cfg.Sync > 0 {
		syncT = cfg.Sync
	}
	if cfg.Flow > 0 {
		flow = cfg.Flow
	}
}

// Reset restores all timeouts to their default values.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	step = DefaultStep
	syncT = DefaultSync
	flow = DefaultFlow
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Short: short, Step: step, Sync: syncT, Flow: flow}
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the deadline was hit.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Sync(), log, "sync all")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
