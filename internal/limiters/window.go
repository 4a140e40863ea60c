package limiters

import (
	"sync"
	"sync/atomic"
	"time"
)

type windowEntry struct {
	mu      sync.Mutex
	gone    bool
	count   int
	resetAt time.Time
}

// Window is a fixed-window counter keyed by subject. One instance throttles
// reset requests per contact. Each key owns its own locked entry, so the
// per-key update is the only serialization point and unrelated keys never
// contend. Passed windows are reset in place on the next hit and swept from
// the map at most once per span.
type Window struct {
	entries   sync.Map // string -> *windowEntry
	nextSweep atomic.Int64
	max       int
	span      time.Duration
	now       func() time.Time
}

// NewWindow creates a counter allowing max hits per span for each key.
func NewWindow(max int, span time.Duration) *Window {
	return &Window{
		max:  max,
		span: span,
		now:  time.Now,
	}
}

// entry returns the key's entry with its lock held, creating it on first use.
// An entry removed by a sweep carries the gone flag; the loop retries until
// it holds a live one.
func (w *Window) entry(key string) *windowEntry {
	for {
		v, ok := w.entries.Load(key)
		if !ok {
			v, _ = w.entries.LoadOrStore(key, &windowEntry{})
		}
		e := v.(*windowEntry)
		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		return e
	}
}

// Hit counts one occurrence for the key. It returns false, along with the time
// left in the window, when the key has exceeded its budget.
func (w *Window) Hit(key string) (bool, time.Duration) {
	now := w.now()
	w.maybeSweep(now)

	e := w.entry(key)
	defer e.mu.Unlock()

	if !now.Before(e.resetAt) {
		e.count = 0
		e.resetAt = now.Add(w.span)
	}

	e.count++
	if e.count > w.max {
		return false, e.resetAt.Sub(now)
	}
	return true, 0
}

// Blocked reports whether the key is over budget without counting a hit.
func (w *Window) Blocked(key string) (bool, time.Duration) {
	v, ok := w.entries.Load(key)
	if !ok {
		return false, 0
	}
	e := v.(*windowEntry)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := w.now()
	if e.gone || !now.Before(e.resetAt) {
		return false, 0
	}
	if e.count >= w.max {
		return true, e.resetAt.Sub(now)
	}
	return false, 0
}

// Reset forgets the key.
func (w *Window) Reset(key string) {
	v, ok := w.entries.Load(key)
	if !ok {
		return
	}
	e := v.(*windowEntry)
	e.mu.Lock()
	e.gone = true
	w.entries.Delete(key)
	e.mu.Unlock()
}

// maybeSweep drops entries whose window has passed, at most once per span.
// The CAS elects a single sweeper off the hot path; everyone else carries on
// without waiting.
func (w *Window) maybeSweep(now time.Time) {
	next := w.nextSweep.Load()
	if now.UnixNano() < next || !w.nextSweep.CompareAndSwap(next, now.Add(w.span).UnixNano()) {
		return
	}
	w.entries.Range(func(key, v any) bool {
		e := v.(*windowEntry)
		e.mu.Lock()
		if !e.gone && !now.Before(e.resetAt) {
			e.gone = true
			w.entries.Delete(key)
		}
		e.mu.Unlock()
		return true
	})
}

// SetClock overrides the time source. Test hook; call before the counter sees
// traffic.
func (w *Window) SetClock(now func() time.Time) {
	w.now = now
}
