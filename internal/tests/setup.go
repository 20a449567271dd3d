// Package tests contains end-to-end tests running the full HTTP stack over
// in-memory backends.
package tests

import (
	"net/http/httptest"
	"sync"
	"time"

	"github.com/skillforge/server/internal/auth"
	httphandler "github.com/skillforge/server/internal/http"
	"github.com/skillforge/server/internal/http/handlers"
	"github.com/skillforge/server/internal/ratelimit"
	"github.com/skillforge/server/internal/repo"
)

// FakeClock is shared by the auth service and the rate limiters so a test can
// move time forward deterministically.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts at the current wall time, truncated to seconds.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Now().Truncate(time.Second)}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake time forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestServerOptions tune the stack under test.
type TestServerOptions struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthLimit       ratelimit.Policy
	GeneralLimit    ratelimit.Policy
	RotateRefresh   bool
}

// DefaultOptions mirror production defaults with generous limits.
func DefaultOptions() TestServerOptions {
	return TestServerOptions{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		AuthLimit:       ratelimit.Policy{MaxRequests: 100, Window: time.Hour},
		GeneralLimit:    ratelimit.Policy{MaxRequests: 500, Window: time.Hour},
		RotateRefresh:   true,
	}
}

// TestServer is a full API stack over in-memory stores.
type TestServer struct {
	Server  *httptest.Server
	Clock   *FakeClock
	Service *auth.Service
}

// NewTestServer builds the stack and starts an httptest server. The caller
// owns shutdown via t.Cleanup or Close.
func NewTestServer(opts TestServerOptions) *TestServer {
	clock := NewFakeClock()

	users := repo.NewMemoryUserRepo()
	sessions := repo.NewMemorySessionRepo()
	hasher := auth.NewPasswordHasher(1)
	codec := auth.NewTokenCodec("e2e-test-secret", opts.AccessTokenTTL, opts.RefreshTokenTTL)
	service := auth.NewService(users, sessions, hasher, codec, opts.RotateRefresh).WithClock(clock.Now)

	store := ratelimit.NewMemoryStore()
	authLimiter := ratelimit.NewLimiter(store, "auth", opts.AuthLimit).WithClock(clock.Now)
	generalLimiter := ratelimit.NewLimiter(store, "general", opts.GeneralLimit).WithClock(clock.Now)

	authHandler := handlers.NewAuthHandler(service)
	router := httphandler.NewRouter(authHandler, service, authLimiter, generalLimiter)

	return &TestServer{
		Server:  httptest.NewServer(router),
		Clock:   clock,
		Service: service,
	}
}

// BaseURL returns the server's base URL.
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// Close shuts the server down.
func (ts *TestServer) Close() {
	ts.Server.Close()
}
