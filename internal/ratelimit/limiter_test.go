package ratelimit

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AdmitUpToLimitThenReject(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 5, Window: time.Hour}
	now := time.Now()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := store.Admit(ctx, "ip:1.2.3.4", now.Add(time.Duration(i)*time.Second), policy)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d must be admitted", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d, err := store.Admit(ctx, "ip:1.2.3.4", now.Add(10*time.Second), policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "request over the limit must be rejected")
	assert.Positive(t, d.RetryAfter)
	assert.LessOrEqual(t, d.RetryAfter, policy.Window)
}

func TestMemoryStore_WindowSlides(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 2, Window: time.Minute}
	now := time.Now()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := store.Admit(ctx, "k", now, policy)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := store.Admit(ctx, "k", now, policy)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// After the window passes, admission resumes
	d, err = store.Admit(ctx, "k", now.Add(policy.Window+time.Second), policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStore_RetryAfterHint(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 1, Window: time.Minute}
	now := time.Now()
	ctx := context.Background()

	_, err := store.Admit(ctx, "k", now, policy)
	require.NoError(t, err)

	// 20s into the window: the oldest (only) timestamp is 20s old,
	// so the hint is the remaining 40s.
	d, err := store.Admit(ctx, "k", now.Add(20*time.Second), policy)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 1, Window: time.Hour}
	now := time.Now()
	ctx := context.Background()

	d, err := store.Admit(ctx, "ip:1.1.1.1", now, policy)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = store.Admit(ctx, "ip:2.2.2.2", now, policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a saturated key must not throttle another")
}

func TestMemoryStore_ConcurrentSameKeyNeverOverAdmits(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 50, Window: time.Hour}
	now := time.Now()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.Admit(ctx, "hot-key", now, policy)
			if err == nil && d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted, "concurrent requests must not bypass the limit")
}

func TestMemoryStore_ZeroPolicyRejectsWithoutPanic(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 0, Window: time.Minute}
	ctx := context.Background()

	d, err := store.Admit(ctx, "k", time.Now(), policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "a zero-request policy admits nothing")
	assert.Equal(t, policy.Window, d.RetryAfter)
}

func TestMemoryStore_SweepEvictsIdleKeys(t *testing.T) {
	store := NewMemoryStore()
	policy := Policy{MaxRequests: 10, Window: time.Minute}
	now := time.Now()
	ctx := context.Background()

	_, err := store.Admit(ctx, "idle", now, policy)
	require.NoError(t, err)
	_, err = store.Admit(ctx, "busy", now.Add(2*time.Minute), policy)
	require.NoError(t, err)

	evicted := store.Sweep(now.Add(2*time.Minute+time.Second), policy.Window)
	assert.Equal(t, 1, evicted, "only the idle identity is evicted")
}

func TestLimiter_UsesInjectedClock(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	limiter := NewLimiter(store, "test", Policy{MaxRequests: 1, Window: time.Minute}).
		WithClock(func() time.Time { return current })
	ctx := context.Background()

	d, err := limiter.Admit(ctx, "k")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = limiter.Admit(ctx, "k")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	current = current.Add(2 * time.Minute)
	d, err = limiter.Admit(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_TiersShareStoreNotWindows(t *testing.T) {
	store := NewMemoryStore()
	authTier := NewLimiter(store, "auth", Policy{MaxRequests: 1, Window: time.Hour})
	generalTier := NewLimiter(store, "general", Policy{MaxRequests: 5, Window: time.Hour})
	ctx := context.Background()

	d, err := authTier.Admit(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = authTier.Admit(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// The same identity is untouched on the other tier
	d, err = generalTier.Admit(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestClientKey(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "203.0.113.9", "", "10.0.0.1:1234", "ip:203.0.113.9"},
		{"forwarded chain takes first", "203.0.113.9, 10.0.0.2", "", "10.0.0.1:1234", "ip:203.0.113.9"},
		{"real ip fallback", "", "198.51.100.7", "10.0.0.1:1234", "ip:198.51.100.7"},
		{"remote addr fallback", "", "", "10.0.0.1:1234", "ip:10.0.0.1"},
		{"remote addr without port", "", "", "10.0.0.1", "ip:10.0.0.1"},
		{"nothing known", "", "", "", "ip:unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, ClientKey(r))
		})
	}
}
