package credtrust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/internal/metrics"
	"github.com/credtrust/credtrust/jwt"
	"github.com/credtrust/credtrust/store"
)

// Login authenticates a contact identifier against its password and mints a
// token pair. Five consecutive failures (by default) lock the identifier out
// for the configured cool-down; the lockout answer comes back before any
// storage read so a locked identifier cannot test for the account's existence.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*TokenPair, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	if e.lockout.IsLocked(identifier) {
		e.metrics.Inc(metrics.LoginLockedOut)
		e.emitAudit(ctx, eventLoginLockedOut, false, "", ErrTooManyAttempts, "identifier="+identifier)
		return nil, retryable(ErrTooManyAttempts, e.lockout.Remaining(identifier))
	}

	cred, err := e.store.CredentialByContact(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, e.loginFailure(ctx, identifier, "", ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	userID := cred.ID.String()

	switch cred.Status {
	case StatusSuspended:
		e.emitAudit(ctx, eventLoginFailure, false, userID, ErrAccountSuspended, "")
		e.metrics.Inc(metrics.LoginFailure)
		return nil, ErrAccountSuspended
	case StatusLocked:
		e.emitAudit(ctx, eventLoginFailure, false, userID, ErrAccountLocked, "")
		e.metrics.Inc(metrics.LoginFailure)
		return nil, ErrAccountLocked
	case StatusActive:
	default:
		e.emitAudit(ctx, eventLoginFailure, false, userID, ErrAccountUnverified, "")
		e.metrics.Inc(metrics.LoginFailure)
		return nil, ErrAccountUnverified
	}

	if cred.PasswordHash == "" {
		return nil, e.loginFailure(ctx, identifier, userID, ErrInvalidCredentials)
	}
	ok, err := e.hasher.Verify(secret, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil, e.loginFailure(ctx, identifier, userID, ErrInvalidCredentials)
	}

	e.lockout.RecordSuccess(identifier)

	// Re-hash transparently when cost parameters have moved since the stored
	// hash was made. A failed upgrade never fails the login.
	if upgrade, err := e.hasher.NeedsUpgrade(cred.PasswordHash); err == nil && upgrade {
		if rehash, err := e.hasher.Hash(secret); err == nil {
			cred.PasswordHash = rehash
		}
	}

	now := time.Now()
	cred.LastLoginAt = &now
	cred.UpdatedAt = now
	if err := e.store.UpdateCredential(ctx, cred); err != nil {
		e.logger.Error("last-login stamp failed", "user_id", userID, "error", err)
	}

	pair, err := e.mintPair(ctx, cred.ID)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(metrics.LoginSuccess)
	e.emitAudit(ctx, eventLoginSuccess, true, userID, nil, "")
	return pair, nil
}

// loginFailure records one failed attempt and returns the error the caller
// should surface. Crossing the lockout threshold swaps the generic credential
// error for a retryable lockout.
func (e *Engine) loginFailure(ctx context.Context, identifier, userID string, cause error) error {
	e.metrics.Inc(metrics.LoginFailure)

	if e.lockout.RecordFailure(identifier) {
		e.metrics.Inc(metrics.LoginLockedOut)
		e.emitAudit(ctx, eventLoginLockedOut, false, userID, ErrTooManyAttempts, "identifier="+identifier)
		return retryable(ErrTooManyAttempts, e.lockout.Remaining(identifier))
	}

	e.emitAudit(ctx, eventLoginFailure, false, userID, cause, "")
	return cause
}

// Refresh exchanges a live refresh token for a fresh pair. The old refresh
// token is revoked in the same call, so each refresh token works exactly once.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	pair, userID, err := e.refresh(ctx, refreshToken)
	if err != nil {
		e.metrics.Inc(metrics.RefreshFailure)
		e.emitAudit(ctx, eventRefreshFailure, false, userID, err, "")
		return nil, err
	}

	e.metrics.Inc(metrics.RefreshSuccess)
	e.emitAudit(ctx, eventRefreshSuccess, true, userID, nil, "")
	return pair, nil
}

func (e *Engine) refresh(ctx context.Context, refreshToken string) (*TokenPair, string, error) {
	claims, err := e.jwtManager.Parse(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, "", ErrTokenExpired
		}
		return nil, "", ErrTokenInvalid
	}
	if claims.Purpose != jwt.PurposeRefresh {
		return nil, claims.Subject, ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, claims.Subject, ErrTokenInvalid
	}

	rec, err := e.store.TokenByValue(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, claims.Subject, ErrTokenInvalid
		}
		return nil, claims.Subject, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rec.Revoked {
		return nil, claims.Subject, ErrTokenRevoked
	}

	cred, err := e.store.CredentialByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, claims.Subject, ErrTokenInvalid
		}
		return nil, claims.Subject, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch cred.Status {
	case StatusSuspended:
		return nil, claims.Subject, ErrAccountSuspended
	case StatusLocked:
		return nil, claims.Subject, ErrAccountLocked
	case StatusActive:
	default:
		return nil, claims.Subject, ErrAccountUnverified
	}

	if err := e.revokeToken(ctx, refreshToken); err != nil {
		return nil, claims.Subject, err
	}

	pair, err := e.mintPair(ctx, userID)
	if err != nil {
		return nil, claims.Subject, err
	}
	return pair, claims.Subject, nil
}

// Logout revokes the session's access and refresh tokens. Unknown or already
// revoked tokens are ignored, so repeating a logout is harmless.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if accessToken != "" {
		if err := e.revokeToken(ctx, accessToken); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		if err := e.revokeToken(ctx, refreshToken); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, eventLogout, true, "", nil, "")
	return nil
}

// ForceLogout revokes every live token of the subject, access and refresh
// alike. Returns the number of tokens revoked.
func (e *Engine) ForceLogout(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}

	n, err := e.revokeAll(ctx, userID, "")
	if err != nil {
		return 0, err
	}

	e.emitAudit(ctx, eventForceLogout, true, userID.String(), nil, fmt.Sprintf("revoked=%d", n))
	return n, nil
}
