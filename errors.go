package credtrust

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers the login failures the caller is not
	// allowed to distinguish: unknown identifier or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned by Register when a contact or username is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountUnverified is returned on login before any required channel is verified.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrAccountSuspended is returned when the credential is operator-suspended.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountLocked is returned when the credential is platform-locked.
	ErrAccountLocked = errors.New("account locked")

	// ErrTokenInvalid reports a token that fails signature or claim checks, or
	// has no ledger record.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked reports a valid token whose ledger record is revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrCodeInvalid reports a verification code that is wrong, expired, or
	// has no pending challenge.
	ErrCodeInvalid = errors.New("verification code invalid")
	// ErrEmailNotVerified is returned by phone verification when the login
	// type demands the email channel first.
	ErrEmailNotVerified = errors.New("email must be verified first")

	// ErrPasswordPolicy reports a password below the strength policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse reports a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrResetInvalid is the generic failure for reset confirmation: wrong or
	// expired secret, unknown subject. Deliberately unspecific.
	ErrResetInvalid = errors.New("password reset invalid")

	// ErrRateLimited reports a request over its fixed-window budget. Usually
	// wrapped in a RetryableError carrying the wait.
	ErrRateLimited = errors.New("rate limited")
	// ErrTooManyAttempts reports a subject locked out after consecutive
	// failures. Usually wrapped in a RetryableError carrying the wait.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrUnavailable reports a storage or notifier backend failure.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrInvalidInput reports a request the engine cannot act on: empty
	// identifier, malformed contact, missing fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// RetryableError wraps ErrRateLimited or ErrTooManyAttempts with the time the
// caller should wait before trying again.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: retry after %s", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func retryable(err error, after time.Duration) error {
	return &RetryableError{Err: err, RetryAfter: after}
}
