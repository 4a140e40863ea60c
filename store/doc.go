// Package store defines the persisted record types and the storage contract the
// credential engine runs against.
//
// The engine only assumes a relational shape: per-row locking reads for one-time
// code consumption and atomic set-based updates for bulk token revocation. Any
// backend that honors the [Store] contract works; the module ships
// store/postgres for production and store/memory for tests and embedding
// without a database.
package store
