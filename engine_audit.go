package credtrust

import (
	"context"
	"errors"
	"time"

	"github.com/credtrust/credtrust/internal/audit"
)

// Security event types recorded by the engine.
const (
	eventRegisterSuccess  = "register_success"
	eventRegisterFailure  = "register_failure"
	eventLoginSuccess     = "login_success"
	eventLoginFailure     = "login_failure"
	eventLoginLockedOut   = "login_locked_out"
	eventRefreshSuccess   = "refresh_success"
	eventRefreshFailure   = "refresh_failure"
	eventLogout           = "logout"
	eventForceLogout      = "force_logout"
	eventTokenRevoked     = "token_revoked"
	eventCodeIssued       = "verification_code_issued"
	eventCodeVerified     = "verification_success"
	eventCodeRejected     = "verification_failure"
	eventAccountActivated = "account_activated"
	eventResetRequested   = "password_reset_requested"
	eventResetConfirmed   = "password_reset_confirmed"
	eventResetRejected    = "password_reset_rejected"
	eventRateLimited      = "rate_limited"
)

// auditErrorCode flattens an error chain to the short code stored on the
// event. Generic messaging rules apply upstream; the recorder keeps the real
// cause.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountExists):
		return "duplicate"
	case errors.Is(err, ErrAccountUnverified):
		return "account_unverified"
	case errors.Is(err, ErrAccountSuspended):
		return "account_suspended"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrCodeInvalid):
		return "code_invalid"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, ErrResetInvalid):
		return "reset_invalid"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts"
	case errors.Is(err, ErrUnavailable):
		return "backend_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, err error, detail string) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Detail:    detail,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Error:     auditErrorCode(err),
	}
	e.audit.Emit(ctx, event)
}
