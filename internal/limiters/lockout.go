package limiters

import (
	"sync"
	"sync/atomic"
	"time"
)

// LockoutConfig holds configuration for the failed-login lockout tracker.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

type lockoutEntry struct {
	mu        sync.Mutex
	gone      bool
	failures  int
	lockedAt  time.Time
	updatedAt time.Time
}

func (e *lockoutEntry) locked(d time.Duration, now time.Time) bool {
	return !e.lockedAt.IsZero() && now.Sub(e.lockedAt) < d
}

func (e *lockoutEntry) stale(d time.Duration, now time.Time) bool {
	return now.Sub(e.updatedAt) >= d && !e.locked(d, now)
}

// Lockout tracks consecutive failed login attempts per subject in process
// memory. Every subject owns its own locked entry, so concurrent attempts
// against one subject serialize on that entry alone and unrelated subjects
// never contend. Stale entries are reset in place on access and swept from
// the map at most once per lockout duration.
type Lockout struct {
	entries   sync.Map // string -> *lockoutEntry
	nextSweep atomic.Int64
	config    LockoutConfig
	now       func() time.Time
}

// NewLockout creates a lockout tracker.
func NewLockout(cfg LockoutConfig) *Lockout {
	return &Lockout{
		config: cfg,
		now:    time.Now,
	}
}

// entry returns the subject's entry with its lock held, creating it when
// create is set. An entry removed by a sweep carries the gone flag; the loop
// retries until it holds a live one. Returns nil only when create is false
// and the subject is unknown.
func (l *Lockout) entry(subject string, create bool) *lockoutEntry {
	for {
		v, ok := l.entries.Load(subject)
		if !ok {
			if !create {
				return nil
			}
			v, _ = l.entries.LoadOrStore(subject, &lockoutEntry{})
		}
		e := v.(*lockoutEntry)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		return e
	}
}

// RecordFailure counts one failed attempt. Returns true when the subject has
// just crossed the threshold and is now locked.
func (l *Lockout) RecordFailure(subject string) bool {
	if subject == "" {
		return false
	}

	now := l.now()
	l.maybeSweep(now)

	e := l.entry(subject, true)
	defer e.mu.Unlock()

	if e.stale(l.config.Duration, now) {
		e.failures = 0
		e.lockedAt = time.Time{}
	}
	if e.locked(l.config.Duration, now) {
		e.updatedAt = now
		return true
	}

	e.failures++
	e.updatedAt = now
	if e.failures >= l.config.Threshold {
		e.lockedAt = now
		return true
	}
	return false
}

// RecordSuccess clears the subject's failure history.
func (l *Lockout) RecordSuccess(subject string) {
	v, ok := l.entries.Load(subject)
	if !ok {
		return
	}
	e := v.(*lockoutEntry)
	e.mu.Lock()
	e.gone = true
	l.entries.Delete(subject)
	e.mu.Unlock()
}

// IsLocked reports whether the subject is currently locked out.
func (l *Lockout) IsLocked(subject string) bool {
	e := l.entry(subject, false)
	if e == nil {
		return false
	}
	defer e.mu.Unlock()
	return e.locked(l.config.Duration, l.now())
}

// Remaining returns how long the subject's lock has left to run, zero when the
// subject is not locked.
func (l *Lockout) Remaining(subject string) time.Duration {
	e := l.entry(subject, false)
	if e == nil {
		return 0
	}
	defer e.mu.Unlock()

	now := l.now()
	if !e.locked(l.config.Duration, now) {
		return 0
	}
	return l.config.Duration - now.Sub(e.lockedAt)
}

// FailureCount returns the subject's current consecutive failure count.
func (l *Lockout) FailureCount(subject string) int {
	e := l.entry(subject, false)
	if e == nil {
		return 0
	}
	defer e.mu.Unlock()

	if e.stale(l.config.Duration, l.now()) {
		return 0
	}
	return e.failures
}

// maybeSweep drops stale entries, at most once per lockout duration. The CAS
// elects a single sweeper; everyone else carries on without waiting.
func (l *Lockout) maybeSweep(now time.Time) {
	next := l.nextSweep.Load()
	if now.UnixNano() < next || !l.nextSweep.CompareAndSwap(next, now.Add(l.config.Duration).UnixNano()) {
		return
	}
	l.entries.Range(func(key, v any) bool {
		e := v.(*lockoutEntry)
		e.mu.Lock()
		if !e.gone && e.stale(l.config.Duration, now) {
			e.gone = true
			l.entries.Delete(key)
		}
		e.mu.Unlock()
		return true
	})
}

// SetClock overrides the time source. Test hook; call before the tracker sees
// traffic.
func (l *Lockout) SetClock(now func() time.Time) {
	l.now = now
}
