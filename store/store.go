package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint (username, email,
	// phone) would be violated.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrCodeMismatch is returned by ConsumePendingCode when a pending row
	// exists but the supplied code does not match its hash.
	ErrCodeMismatch = errors.New("store: code mismatch")
)

// CredentialStore persists credential records.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	CredentialByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	// CredentialByContact resolves a credential by email or phone, whichever
	// matches.
	CredentialByContact(ctx context.Context, contact string) (*Credential, error)
	UpdateCredential(ctx context.Context, cred *Credential) error
}

// TokenStore is the issued-token ledger.
type TokenStore interface {
	SaveToken(ctx context.Context, rec *TokenRecord) error
	// TokenByValue returns the record for the exact token string whether or
	// not it has been revoked, or ErrNotFound when no record exists. Callers
	// inspect Revoked themselves so a never-saved token and a revoked one can
	// be reported differently.
	TokenByValue(ctx context.Context, token string) (*TokenRecord, error)
	// RevokeToken flips the single matching non-revoked record. Revoking a
	// token with no matching record is a no-op.
	RevokeToken(ctx context.Context, token string) error
	// RevokeAllTokens revokes every non-revoked token of the subject in one
	// atomic set-based update; tokenType "" matches all types. Returns the
	// number of rows flipped.
	RevokeAllTokens(ctx context.Context, userID uuid.UUID, tokenType TokenType) (int64, error)
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// CodeStore persists verification-code challenges.
type CodeStore interface {
	SaveCode(ctx context.Context, code *VerificationCode) error
	// InvalidatePendingCodes marks every pending (unverified, unexpired) row
	// for the subject and purpose as verified, returning how many it touched.
	InvalidatePendingCodes(ctx context.Context, userID uuid.UUID, purpose CodePurpose, now time.Time) (int64, error)
	// PendingCodeHashes returns the stored hashes of every pending row across
	// all subjects for the given purposes. Used for collision checks on
	// numeric code generation.
	PendingCodeHashes(ctx context.Context, now time.Time, purposes ...CodePurpose) ([]string, error)
	// PendingCodeByHash finds the pending row of the purpose whose stored
	// hash equals the supplied digest, across all subjects. Email-link flows
	// only carry the token, so the lookup cannot be scoped to a subject.
	PendingCodeByHash(ctx context.Context, purpose CodePurpose, codeHash string, now time.Time) (*VerificationCode, error)
	// CodeByHash finds the newest row of the purpose with the given hash
	// regardless of state. Lets a repeated email-link click be answered with
	// an idempotent success after the pending row was consumed.
	CodeByHash(ctx context.Context, purpose CodePurpose, codeHash string) (*VerificationCode, error)
	MarkCodeVerified(ctx context.Context, id uuid.UUID) error
	// ConsumePendingCode locates the subject's pending row for the purpose
	// under a locking read, invokes match with the stored hash, and marks the
	// row verified when match reports true. The lock guarantees that of N
	// concurrent callers holding the same valid code, exactly one consumes
	// it. Returns ErrNotFound when no pending row exists and ErrCodeMismatch
	// when match reports false.
	ConsumePendingCode(ctx context.Context, userID uuid.UUID, purpose CodePurpose, now time.Time, match func(codeHash string) bool) (*VerificationCode, error)
	DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error)
}

// ResetStore persists password-reset secrets.
type ResetStore interface {
	SaveResetToken(ctx context.Context, tok *ResetToken) error
	// ActiveResetTokens returns every unexpired reset row. Secrets are stored
	// hashed, so confirmation has to hash-compare against all candidates.
	ActiveResetTokens(ctx context.Context, now time.Time) ([]ResetToken, error)
	DeleteResetToken(ctx context.Context, id uuid.UUID) error
	DeleteResetTokensForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// EventStore appends security-event rows. Implementations must write each
// event in its own unit of work, never inside a caller's transaction.
type EventStore interface {
	SaveSecurityEvent(ctx context.Context, event *SecurityEvent) error
}

// Store is the full persistence contract the engine is built against.
type Store interface {
	CredentialStore
	TokenStore
	CodeStore
	ResetStore
	EventStore
}
