// Package credtrust is a credential and session-trust core: signed bearer
// tokens backed by a revocable ledger, out-of-band verification codes,
// login lockout and rate limiting, a password reset protocol, and an async
// security event recorder.
//
// The package has no network surface of its own. Callers construct an
// [Engine] through [Builder], hand it a store.Store implementation and a
// [Notifier], and bind the engine's methods to whatever routing layer they
// own. All Engine methods are safe for concurrent use after Build.
//
// # Architecture boundaries
//
// credtrust is the public surface: [Engine], [Builder], [Config], error
// variables, and value types. Coordination code (limiters, rate buckets,
// audit dispatch, random material) lives under internal/ and is never
// exported. Reusable primitives sit in the sibling packages jwt and
// password; persistence contracts and backends in store, store/memory, and
// store/postgres.
//
// # Trust model
//
// A bearer token is trusted only while its signature and embedded expiry
// validate AND its ledger record is not revoked. Plaintext codes, reset
// secrets, and passwords are never stored; only their hashes are. Lockout
// counters and rate buckets are process-local and reset on restart unless
// the Redis rate backend is configured.
package credtrust
