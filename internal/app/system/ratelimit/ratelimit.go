// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a set of token buckets, one per key. It is safe for
// concurrent use and runs no background goroutine: idle buckets are swept
// during Allow.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New allows limit requests per key in any window of length per.
func New(limit int, per time.Duration) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(per / time.Duration(limit)),
		burst:   limit,
		idle:    per * 2,
		now:     time.Now,
	}
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idle {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

// Reset forgets key, giving it a full bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep drops buckets idle long enough to have refilled. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Proxies are the networks whose forwarding headers are believed. With no
// proxies configured the client is always the TCP peer.
type Proxies []netip.Prefix

// ParseProxies reads a comma-separated list of CIDRs or bare addresses.
func ParseProxies(list string) (Proxies, error) {
	var out Proxies
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		pfx, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		out = append(out, pfx.Masked())
	}
	return out, nil
}

func (p Proxies) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, pfx := range p {
		if pfx.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address the request came from. X-Forwarded-For is
// consulted only when the TCP peer is a trusted proxy, and is read right to
// left so entries a client prepends are never reached while an untrusted
// hop remains.
func (p Proxies) ClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !p.trusts(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !p.trusts(hop) {
				return hop
			}
		}
		if first := strings.TrimSpace(hops[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// LoginLimiter limits sign-in attempts per client IP and per email, so
// neither one address hammering many accounts nor many addresses hammering
// one account get through.
type LoginLimiter struct {
	ip      *Limiter
	email   *Limiter
	proxies Proxies
}

// DefaultLoginsPerMinute is the per-IP budget when none is configured.
const DefaultLoginsPerMinute = 10

// NewLoginLimiter allows perMinute attempts per IP per minute and half as
// many per email over five minutes. Client IPs are resolved through proxies.
func NewLoginLimiter(perMinute int, proxies Proxies) *LoginLimiter {
	if perMinute < 1 {
		perMinute = DefaultLoginsPerMinute
	}
	perEmail := perMinute / 2
	if perEmail < 1 {
		perEmail = 1
	}
	return &LoginLimiter{
		ip:      New(perMinute, time.Minute),
		email:   New(perEmail, 5*time.Minute),
		proxies: proxies,
	}
}

// Check reports whether an attempt may proceed and, if not, which limit
// stopped it ("ip" or "email").
func (ll *LoginLimiter) Check(r *http.Request, email string) (bool, string) {
	if !ll.ip.Allow(ll.proxies.ClientIP(r)) {
		return false, "ip"
	}
	if key := emailKey(email); key != "" && !ll.email.Allow(key) {
		return false, "email"
	}
	return true, ""
}

// ClientIP is the address Check keys the per-IP budget on.
func (ll *LoginLimiter) ClientIP(r *http.Request) string {
	return ll.proxies.ClientIP(r)
}

// ResetEmail clears the email budget after a successful sign-in.
func (ll *LoginLimiter) ResetEmail(email string) {
	if key := emailKey(email); key != "" {
		ll.email.Reset(key)
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
