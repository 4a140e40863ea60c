package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// memorySweepInterval bounds how often the bucket map is walked for expired
// entries. Between sweeps passed buckets are reset in place on their next hit.
const memorySweepInterval = time.Minute

type bucket struct {
	mu      sync.Mutex
	gone    bool
	count   int
	resetAt time.Time
}

// Memory is the default in-process limiter. Each key owns its own locked
// bucket, so the per-key update is the only serialization point and unrelated
// keys never contend. Buckets are created lazily on first hit and swept once
// their window has passed, so the map stays bounded by recent traffic.
type Memory struct {
	buckets   sync.Map // string -> *bucket
	nextSweep atomic.Int64
	now       func() time.Time
}

// NewMemory creates an in-process limiter.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, rule Rule) (bool, time.Duration, error) {
	now := m.now()
	m.maybeSweep(now)

	b := m.bucket(key)
	defer b.mu.Unlock()

	if !now.Before(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(rule.Window)
	}

	b.count++
	if b.count > rule.Max {
		return false, b.resetAt.Sub(now), nil
	}
	return true, 0, nil
}

// bucket returns the key's bucket with its lock held, creating it on first
// use. A bucket removed by a sweep carries the gone flag; the loop retries
// until it holds a live one.
func (m *Memory) bucket(key string) *bucket {
	for {
		v, ok := m.buckets.Load(key)
		if !ok {
			v, _ = m.buckets.LoadOrStore(key, &bucket{})
		}
		b := v.(*bucket)
		b.mu.Lock()
		if b.gone {
			b.mu.Unlock()
			continue
		}
		return b
	}
}

// maybeSweep drops buckets whose window has passed, at most once per sweep
// interval. The CAS elects a single sweeper off the hot path; everyone else
// carries on without waiting.
func (m *Memory) maybeSweep(now time.Time) {
	next := m.nextSweep.Load()
	if now.UnixNano() < next || !m.nextSweep.CompareAndSwap(next, now.Add(memorySweepInterval).UnixNano()) {
		return
	}
	m.buckets.Range(func(key, v any) bool {
		b := v.(*bucket)
		b.mu.Lock()
		if !b.gone && !now.Before(b.resetAt) {
			b.gone = true
			m.buckets.Delete(key)
		}
		b.mu.Unlock()
		return true
	})
}

// SetClock overrides the time source. Test hook; call before the limiter sees
// traffic.
func (m *Memory) SetClock(now func() time.Time) {
	m.now = now
}

var _ Limiter = (*Memory)(nil)
