// Package limiters provides the process-local failure and frequency trackers.
//
//   - [Lockout]: consecutive-failure counter with a timed lock, used for
//     login attempts and reset confirmations.
//   - [Window]: fixed-window counter for reset-request frequency.
//
// Both keep their state in process memory on purpose: the counters protect
// against bursts, and losing them on restart is acceptable. Entries expire on
// their own, so neither needs a background sweeper.
//
// The limiters only count. Flow code decides what a rejected hit means.
package limiters
