package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// MemoryStore is a process-local sliding-window store. Keys are sharded
// across independently locked maps, so admission for one identity never
// contends with another beyond its shard.
type MemoryStore struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].windows = make(map[string][]time.Time)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// Admit prunes timestamps older than the window, counts the rest, and either
// appends now or rejects with a retry-after hint.
func (s *MemoryStore) Admit(ctx context.Context, key string, now time.Time, policy Policy) (Decision, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cutoff := now.Add(-policy.Window)
	window := sh.windows[key]

	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= policy.MaxRequests {
		// A non-positive MaxRequests rejects everything; with nothing
		// retained the full window is the only hint available.
		retryAfter := policy.Window
		if len(kept) > 0 {
			retryAfter = policy.Window - now.Sub(kept[0])
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		sh.windows[key] = kept
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	kept = append(kept, now)
	sh.windows[key] = kept
	return Decision{Allowed: true, Remaining: policy.MaxRequests - len(kept)}, nil
}

// Sweep evicts identities whose windows are empty as of now-window. Returns
// the number of evicted keys. Run periodically to bound memory.
func (s *MemoryStore) Sweep(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	evicted := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, timestamps := range sh.windows {
			live := false
			for _, t := range timestamps {
				if t.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(sh.windows, key)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval, window time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now, window)
			}
		}
	}()
}
