package credtrust

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/internal"
	"github.com/credtrust/credtrust/internal/metrics"
	"github.com/credtrust/credtrust/password"
	"github.com/credtrust/credtrust/store"
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

// RequestPasswordReset starts a reset for the contact, auto-detecting whether
// it is an email address or a phone number. Email contacts receive an opaque
// high-entropy secret, phone contacts a numeric code. The answer is the same
// whether or not the contact maps to a credential, so the operation leaks
// nothing about account existence.
func (e *Engine) RequestPasswordReset(ctx context.Context, contact string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	isEmail := emailPattern.MatchString(contact)
	if !isEmail && !phonePattern.MatchString(contact) {
		return fmt.Errorf("%w: contact is neither email nor phone", ErrInvalidInput)
	}

	// The budget is spent before the lookup so unknown contacts consume it
	// the same way known ones do.
	if ok, retryAfter := e.resetRequests.Hit(contact); !ok {
		e.metrics.Inc(metrics.RateLimited)
		e.emitAudit(ctx, eventResetRequested, false, "", ErrRateLimited, "contact throttled")
		return retryable(ErrRateLimited, retryAfter)
	}

	cred, err := e.store.CredentialByContact(ctx, contact)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.emitAudit(ctx, eventResetRequested, false, "", nil, "unknown contact")
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := rejectUnusableStatus(cred.Status); err != nil {
		e.emitAudit(ctx, eventResetRequested, false, cred.ID.String(), err, "")
		return err
	}

	now := time.Now()
	if _, err := e.store.DeleteResetTokensForUser(ctx, cred.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := e.store.InvalidatePendingCodes(ctx, cred.ID, PurposePasswordReset, now); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if isEmail {
		if err := e.issueResetSecret(ctx, cred, now); err != nil {
			return err
		}
	} else {
		if err := e.issueCode(ctx, cred.ID, PurposePasswordReset, cred.Phone, KindPasswordReset); err != nil {
			return err
		}
	}

	e.metrics.Inc(metrics.ResetRequested)
	e.emitAudit(ctx, eventResetRequested, true, cred.ID.String(), nil, "")
	return nil
}

func (e *Engine) issueResetSecret(ctx context.Context, cred *Credential, now time.Time) error {
	secret, err := internal.NewResetSecret()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	secretHash, err := e.hasher.Hash(secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	row := &ResetToken{
		ID:         uuid.New(),
		UserID:     cred.ID,
		SecretHash: secretHash,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.config.Reset.SecretTTL),
	}
	if err := e.store.SaveResetToken(ctx, row); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := e.notifier.Send(ctx, Message{Kind: KindPasswordReset, Destination: cred.Email, Secret: secret}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ConfirmPasswordReset completes an email-variant reset. Secrets are stored
// hashed, so the token is compared against every live reset row. The matched
// row is deleted on success and the subject's bearer tokens are revoked.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if !password.Strong(newPassword) {
		return ErrPasswordPolicy
	}

	rows, err := e.store.ActiveResetTokens(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var matched *ResetToken
	for i := range rows {
		if ok, verr := e.hasher.Verify(token, rows[i].SecretHash); verr == nil && ok {
			matched = &rows[i]
			break
		}
	}
	if matched == nil {
		e.metrics.Inc(metrics.ResetRejected)
		e.emitAudit(ctx, eventResetRejected, false, "", ErrResetInvalid, "")
		return ErrResetInvalid
	}

	// The row goes before the password changes: a secret is spent by the
	// attempt that matched it, even when the new password is rejected.
	if err := e.store.DeleteResetToken(ctx, matched.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := e.applyNewPassword(ctx, matched.UserID, newPassword); err != nil {
		return err
	}

	e.metrics.Inc(metrics.ResetConfirmed)
	e.emitAudit(ctx, eventResetConfirmed, true, matched.UserID.String(), nil, "variant=secret")
	return nil
}

// ConfirmPasswordResetOTP completes a phone-variant reset. Confirmation
// attempts run through their own lockout, separate from the login tracker, so
// guessing codes locks the subject out of confirmation without touching login.
func (e *Engine) ConfirmPasswordResetOTP(ctx context.Context, contact, otp, newPassword string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	cred, err := e.store.CredentialByContact(ctx, contact)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metrics.Inc(metrics.ResetRejected)
			return ErrResetInvalid
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	subject := cred.ID.String()

	if e.resetConfirm.IsLocked(subject) {
		e.emitAudit(ctx, eventResetRejected, false, subject, ErrTooManyAttempts, "variant=otp")
		return retryable(ErrTooManyAttempts, e.resetConfirm.Remaining(subject))
	}
	if !password.Strong(newPassword) {
		return ErrPasswordPolicy
	}

	_, err = e.store.ConsumePendingCode(ctx, cred.ID, PurposePasswordReset, time.Now(), func(codeHash string) bool {
		match, verr := e.hasher.Verify(otp, codeHash)
		return verr == nil && match
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCodeMismatch) {
			e.metrics.Inc(metrics.ResetRejected)
			if e.resetConfirm.RecordFailure(subject) {
				e.emitAudit(ctx, eventResetRejected, false, subject, ErrTooManyAttempts, "variant=otp")
				return retryable(ErrTooManyAttempts, e.resetConfirm.Remaining(subject))
			}
			e.emitAudit(ctx, eventResetRejected, false, subject, ErrCodeInvalid, "variant=otp")
			return ErrCodeInvalid
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.resetConfirm.RecordSuccess(subject)

	if err := e.applyNewPassword(ctx, cred.ID, newPassword); err != nil {
		return err
	}

	e.metrics.Inc(metrics.ResetConfirmed)
	e.emitAudit(ctx, eventResetConfirmed, true, subject, nil, "variant=otp")
	return nil
}

// rejectUnusableStatus maps SUSPENDED and LOCKED to their errors. Reset
// operations refuse both outright; an operator decision is not undone by a
// self-service flow.
func rejectUnusableStatus(status CredentialStatus) error {
	switch status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusLocked:
		return ErrAccountLocked
	default:
		return nil
	}
}

// applyNewPassword rejects reuse of the current password, stores the new
// hash, clears leftover reset state, and revokes every live bearer token so a
// stolen session does not outlive the reset.
func (e *Engine) applyNewPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	cred, err := e.credentialByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := rejectUnusableStatus(cred.Status); err != nil {
		e.emitAudit(ctx, eventResetRejected, false, userID.String(), err, "")
		return err
	}

	if cred.PasswordHash != "" {
		if same, verr := e.hasher.Verify(newPassword, cred.PasswordHash); verr == nil && same {
			e.metrics.Inc(metrics.ResetRejected)
			e.emitAudit(ctx, eventResetRejected, false, userID.String(), ErrPasswordReuse, "")
			return ErrPasswordReuse
		}
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	cred.PasswordHash = hash
	cred.UpdatedAt = time.Now()
	if err := e.store.UpdateCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if _, err := e.store.DeleteResetTokensForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := e.store.InvalidatePendingCodes(ctx, userID, PurposePasswordReset, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if _, err := e.revokeAll(ctx, userID, ""); err != nil {
		return err
	}
	return nil
}
