// Package internal holds helpers that are private to credtrust: secure random
// material for codes, tokens, and reset secrets, and the fast digest used for
// long opaque tokens.
//
// # Sub-packages
//
//   - audit: async security event dispatch (Dispatcher + Sink implementations)
//   - limiters: in-process lockout and fixed-window counters
//   - metrics: lock-free counters behind Engine.Metrics
//   - rate: endpoint rate limiting with memory and Redis backends
package internal
