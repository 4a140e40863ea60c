package postgres

import "context"

// Schema is the DDL for the four persisted tables. EnsureSchema applies it
// idempotently; hosts with their own migration tooling can feed it there
// instead.
const Schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id             UUID PRIMARY KEY,
	username       TEXT NOT NULL UNIQUE,
	email          TEXT UNIQUE,
	phone          TEXT UNIQUE,
	third_party_id TEXT,
	password_hash  TEXT NOT NULL DEFAULT '',
	login_type     TEXT NOT NULL,
	status         TEXT NOT NULL,
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	phone_verified BOOLEAN NOT NULL DEFAULT FALSE,
	last_login_at  TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS issued_tokens (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES credentials (id),
	token      TEXT NOT NULL UNIQUE,
	token_type TEXT NOT NULL,
	issued_at  TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS issued_tokens_user_idx ON issued_tokens (user_id) WHERE NOT revoked;
CREATE INDEX IF NOT EXISTS issued_tokens_expiry_idx ON issued_tokens (expires_at);

CREATE TABLE IF NOT EXISTS verification_codes (
	id         UUID PRIMARY KEY,
	user_id    UUID NOT NULL REFERENCES credentials (id),
	code_hash  TEXT NOT NULL,
	sent_to    TEXT NOT NULL,
	purpose    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	verified   BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS verification_codes_pending_idx
	ON verification_codes (user_id, purpose) WHERE NOT verified;
CREATE INDEX IF NOT EXISTS verification_codes_expiry_idx ON verification_codes (expires_at);

CREATE TABLE IF NOT EXISTS reset_tokens (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL REFERENCES credentials (id),
	secret_hash TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reset_tokens_expiry_idx ON reset_tokens (expires_at);

CREATE TABLE IF NOT EXISTS security_events (
	id         UUID PRIMARY KEY,
	user_id    UUID,
	event_type TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	ip         TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS security_events_user_idx ON security_events (user_id, created_at);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}
