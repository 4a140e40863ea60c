// Package rate provides the fixed-window endpoint limiter.
//
// Buckets are keyed by (endpoint, client address, optional discriminator) via
// [Key]. Two backends implement [Limiter]: [Memory] for single-process
// deployments, and [Redis] (INCR + first-hit EXPIRE) when counting must be
// shared across processes. Semantics are defined by the memory backend; the
// Redis backend matches them within the usual fixed-window boundary slack.
package rate
