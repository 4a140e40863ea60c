// Package metrics keeps lock-free in-process counters for the engine's hot
// paths. Counters are read through Snapshot; exporting them to a metrics
// system is the host application's business.
package metrics

import "sync/atomic"

// ID names one counter.
type ID uint8

const (
	LoginSuccess ID = iota
	LoginFailure
	LoginLockedOut
	RateLimited
	TokenIssued
	TokenRevoked
	RefreshSuccess
	RefreshFailure
	CodeIssued
	CodeVerified
	CodeRejected
	ResetRequested
	ResetConfirmed
	ResetRejected
	idCount
)

var names = [idCount]string{
	LoginSuccess:   "login_success",
	LoginFailure:   "login_failure",
	LoginLockedOut: "login_locked_out",
	RateLimited:    "rate_limited",
	TokenIssued:    "token_issued",
	TokenRevoked:   "token_revoked",
	RefreshSuccess: "refresh_success",
	RefreshFailure: "refresh_failure",
	CodeIssued:     "code_issued",
	CodeVerified:   "code_verified",
	CodeRejected:   "code_rejected",
	ResetRequested: "reset_requested",
	ResetConfirmed: "reset_confirmed",
	ResetRejected:  "reset_rejected",
}

// String returns the counter's snake_case name.
func (id ID) String() string {
	if id >= idCount {
		return "unknown"
	}
	return names[id]
}

// Set is a fixed array of atomic counters. The zero value is not usable;
// construct with New. A nil Set ignores all operations.
type Set struct {
	counters [idCount]atomic.Uint64
}

// New returns an empty counter set.
func New() *Set {
	return &Set{}
}

// Inc adds one to the counter.
func (s *Set) Inc(id ID) {
	if s == nil || id >= idCount {
		return
	}
	s.counters[id].Add(1)
}

// Value reads one counter.
func (s *Set) Value(id ID) uint64 {
	if s == nil || id >= idCount {
		return 0
	}
	return s.counters[id].Load()
}

// Snapshot returns all counters keyed by name.
func (s *Set) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, int(idCount))
	for id := ID(0); id < idCount; id++ {
		if s == nil {
			out[id.String()] = 0
			continue
		}
		out[id.String()] = s.counters[id].Load()
	}
	return out
}
