package credtrust

import (
	"io"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/credtrust/credtrust/internal/audit"
	"github.com/credtrust/credtrust/store"
)

// Record and enum aliases so embedding applications rarely need to import
// package store directly.
type (
	Credential       = store.Credential
	TokenRecord      = store.TokenRecord
	VerificationCode = store.VerificationCode
	ResetToken       = store.ResetToken
	SecurityEvent    = store.SecurityEvent

	CredentialStatus = store.CredentialStatus
	LoginType        = store.LoginType
	TokenType        = store.TokenType
	CodePurpose      = store.CodePurpose
)

const (
	StatusInactive  = store.StatusInactive
	StatusActive    = store.StatusActive
	StatusSuspended = store.StatusSuspended
	StatusLocked    = store.StatusLocked

	LoginEmail      = store.LoginEmail
	LoginPhone      = store.LoginPhone
	LoginBoth       = store.LoginBoth
	LoginThirdParty = store.LoginThirdParty

	TokenAccess  = store.TokenAccess
	TokenRefresh = store.TokenRefresh

	PurposeEmailVerification = store.PurposeEmailVerification
	PurposePhoneVerification = store.PurposePhoneVerification
	PurposePasswordReset     = store.PurposePasswordReset
)

// Endpoint names the engine rate-limits by default. RateLimit accepts
// arbitrary endpoint strings, so a routing layer can guard its own routes.
const (
	EndpointLogin    = "login"
	EndpointRegister = "register"
	EndpointVerify   = "verify"
	EndpointReset    = "reset"
	EndpointRefresh  = "refresh"
)

// RegisterRequest carries the inputs of Register. The login type is derived
// from which contacts are supplied, never chosen by the caller.
type RegisterRequest struct {
	Username     string
	Email        string
	Phone        string
	Password     string
	ThirdPartyID string
}

// TokenPair is the result of Login and Refresh: a signed access token and a
// signed refresh token, with expiries mirrored from their claims.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenInfo is the result of ValidateToken.
type TokenInfo struct {
	UserID    uuid.UUID
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// VerifyResult reports a verification outcome. AlreadyVerified marks the
// idempotent path where the channel was verified before the call; Activated
// marks the call that promoted the credential to ACTIVE.
type VerifyResult struct {
	UserID          uuid.UUID
	Purpose         CodePurpose
	AlreadyVerified bool
	Activated       bool
}

// CleanupResult counts the rows removed by one cleanup pass.
type CleanupResult struct {
	Tokens      int64
	Codes       int64
	ResetTokens int64
}

// Total returns the number of rows removed across all tables.
func (r CleanupResult) Total() int64 {
	return r.Tokens + r.Codes + r.ResetTokens
}

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
