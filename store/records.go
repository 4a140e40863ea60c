package store

import (
	"time"

	"github.com/google/uuid"
)

// CredentialStatus is the lifecycle state of a credential record.
type CredentialStatus string

const (
	// StatusInactive marks a credential whose required channels are not verified yet.
	StatusInactive CredentialStatus = "INACTIVE"
	// StatusActive marks a credential allowed to log in.
	StatusActive CredentialStatus = "ACTIVE"
	// StatusSuspended marks a credential blocked by an operator.
	StatusSuspended CredentialStatus = "SUSPENDED"
	// StatusLocked marks a credential locked by the platform.
	StatusLocked CredentialStatus = "LOCKED"
)

// LoginType declares which contact channels a credential logs in with, and
// therefore which verified flags are required before activation.
type LoginType string

const (
	// LoginEmail requires a verified email address.
	LoginEmail LoginType = "EMAIL"
	// LoginPhone requires a verified phone number.
	LoginPhone LoginType = "PHONE"
	// LoginBoth requires both channels verified.
	LoginBoth LoginType = "BOTH"
	// LoginThirdParty is an upstream-identity credential; no channel flags are
	// required and the record activates immediately.
	LoginThirdParty LoginType = "THIRD_PARTY"
)

// RequiredFlagsSet reports whether every verified flag demanded by the login
// type is true. This is the single activation predicate: a credential becomes
// ACTIVE exactly when it holds.
func (t LoginType) RequiredFlagsSet(emailVerified, phoneVerified bool) bool {
	switch t {
	case LoginEmail:
		return emailVerified
	case LoginPhone:
		return phoneVerified
	case LoginBoth:
		return emailVerified && phoneVerified
	case LoginThirdParty:
		return true
	default:
		return false
	}
}

// TokenType distinguishes access from refresh tokens in the ledger.
type TokenType string

const (
	// TokenAccess is a short-horizon bearer token.
	TokenAccess TokenType = "ACCESS"
	// TokenRefresh is the long-horizon token used to mint new access tokens.
	TokenRefresh TokenType = "REFRESH"
)

// CodePurpose identifies the out-of-band proof a verification code backs.
type CodePurpose string

const (
	// PurposeEmailVerification is a long opaque email-link token.
	PurposeEmailVerification CodePurpose = "EMAIL_VERIFICATION"
	// PurposePhoneVerification is a six-digit SMS code.
	PurposePhoneVerification CodePurpose = "PHONE_VERIFICATION"
	// PurposePasswordReset is a six-digit reset code delivered out of band.
	PurposePasswordReset CodePurpose = "PASSWORD_RESET"
)

// Numeric reports whether codes for this purpose are short numeric OTPs
// (stored behind a slow hash) rather than long opaque tokens (fast digest).
func (p CodePurpose) Numeric() bool {
	return p == PurposePhoneVerification || p == PurposePasswordReset
}

// Credential is the per-subject account record. It is mutated by registration,
// verification, and login, and is never hard-deleted by this module.
type Credential struct {
	ID            uuid.UUID
	Username      string
	Email         string
	Phone         string
	ThirdPartyID  string
	PasswordHash  string
	LoginType     LoginType
	Status        CredentialStatus
	EmailVerified bool
	PhoneVerified bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenRecord is the ledger row behind one minted bearer token. IssuedAt and
// ExpiresAt mirror the signed token's own claims and are never recomputed.
// The only mutation ever applied is flipping Revoked to true.
type TokenRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// VerificationCode is one issued challenge. Only the hash of the code is
// stored. Verified doubles as the invalidation flag: issuing a new code for
// the same (subject, purpose) marks the prior rows verified.
type VerificationCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	CodeHash  string
	SentTo    string
	Purpose   CodePurpose
	CreatedAt time.Time
	ExpiresAt time.Time
	Verified  bool
}

// Pending reports whether the code can still be consumed at the given instant.
func (c *VerificationCode) Pending(now time.Time) bool {
	return !c.Verified && now.Before(c.ExpiresAt)
}

// ResetToken holds the hash of a high-entropy password-reset secret with a
// short expiry. Confirming a reset deletes the row.
type ResetToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	SecretHash string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// SecurityEvent is one append-only audit row. UserID is nil when the event
// could not be attributed to a known credential.
type SecurityEvent struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	EventType string
	Detail    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}
