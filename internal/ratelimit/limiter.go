// Package ratelimit provides sliding-window admission control keyed by
// client identity, with pluggable backing stores.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// The caller decides whether to fail open or closed; an outage is not a
// security decision.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Policy configures one admission tier.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// String renders the policy for rejection messages, e.g. "100 requests per 1h0m0s".
func (p Policy) String() string {
	return fmt.Sprintf("%d requests per %s", p.MaxRequests, p.Window)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is a conservative hint: the window length minus the age of
	// the oldest retained timestamp. Zero when Allowed.
	RetryAfter time.Duration
}

// Store records admitted-request timestamps per identity. Implementations
// must trim-and-count atomically per key so two concurrent requests from the
// same identity can never both slip under the limit.
type Store interface {
	Admit(ctx context.Context, key string, now time.Time, policy Policy) (Decision, error)
}

// Limiter binds a store to a policy tier. The tier name prefixes store keys,
// so tiers sharing one store keep independent windows per identity.
type Limiter struct {
	store  Store
	tier   string
	policy Policy
	now    func() time.Time
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, tier string, policy Policy) *Limiter {
	return &Limiter{store: store, tier: tier, policy: policy, now: time.Now}
}

// WithClock replaces the limiter clock. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Policy returns the configured tier.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// Admit decides whether one more request from key may proceed now.
func (l *Limiter) Admit(ctx context.Context, key string) (Decision, error) {
	return l.store.Admit(ctx, l.tier+":"+key, l.now(), l.policy)
}

// ClientKey resolves the rate-limit identity of a request: first hop of
// X-Forwarded-For, else X-Real-IP, else the transport peer address, else a
// shared "unknown" bucket.
func ClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return "ip:" + realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}
	// Callers landing here share one limiter; accepted degradation.
	return "ip:unknown"
}
