package credtrust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/internal"
	"github.com/credtrust/credtrust/internal/metrics"
	"github.com/credtrust/credtrust/store"
)

// issueCode invalidates the subject's pending codes for the purpose, generates
// a fresh challenge, stores its hash, and delivers the plaintext through the
// notifier. Numeric codes are regenerated while they collide with any pending
// numeric code of any subject, bounded by the configured retry count.
func (e *Engine) issueCode(ctx context.Context, userID uuid.UUID, purpose CodePurpose, destination, kind string) error {
	now := time.Now()

	if _, err := e.store.InvalidatePendingCodes(ctx, userID, purpose, now); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var plaintext, codeHash string
	if purpose.Numeric() {
		otp, err := e.generateOTP(ctx, now)
		if err != nil {
			return err
		}
		hash, err := e.hasher.Hash(otp)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		plaintext, codeHash = otp, hash
	} else {
		token, err := internal.NewEmailToken()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		plaintext, codeHash = token, internal.Digest(token)
	}

	code := &VerificationCode{
		ID:        uuid.New(),
		UserID:    userID,
		CodeHash:  codeHash,
		SentTo:    destination,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.Verification.CodeTTL),
	}
	if err := e.store.SaveCode(ctx, code); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := e.notifier.Send(ctx, Message{Kind: kind, Destination: destination, Secret: plaintext}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.Inc(metrics.CodeIssued)
	e.emitAudit(ctx, eventCodeIssued, true, userID.String(), nil, "purpose="+string(purpose))
	return nil
}

// generateOTP draws numeric codes until one is distinct from every pending
// numeric code in the system. Distinctness means a valid code identifies
// exactly one challenge.
func (e *Engine) generateOTP(ctx context.Context, now time.Time) (string, error) {
	hashes, err := e.store.PendingCodeHashes(ctx, now, PurposePhoneVerification, PurposePasswordReset)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for attempt := 0; attempt < e.config.Verification.CollisionRetries; attempt++ {
		otp, err := internal.NewOTP(e.config.Verification.OTPDigits)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		collides := false
		for _, hash := range hashes {
			if match, err := e.hasher.Verify(otp, hash); err == nil && match {
				collides = true
				break
			}
		}
		if !collides {
			return otp, nil
		}
	}
	return "", fmt.Errorf("%w: could not generate a distinct code", ErrUnavailable)
}

// SendEmailVerification issues an email verification token for the subject.
// Sending again invalidates the previous token. A channel already verified is
// left alone.
func (e *Engine) SendEmailVerification(ctx context.Context, userID uuid.UUID) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	cred, err := e.credentialByID(ctx, userID)
	if err != nil {
		return err
	}
	if cred.Email == "" {
		return fmt.Errorf("%w: credential has no email", ErrInvalidInput)
	}
	if cred.EmailVerified {
		return nil
	}

	return e.issueCode(ctx, userID, PurposeEmailVerification, cred.Email, KindEmailVerification)
}

// SendPhoneVerification issues a numeric SMS code for the subject. Sending
// again invalidates the previous code. A channel already verified is left
// alone.
func (e *Engine) SendPhoneVerification(ctx context.Context, userID uuid.UUID) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	cred, err := e.credentialByID(ctx, userID)
	if err != nil {
		return err
	}
	if cred.Phone == "" {
		return fmt.Errorf("%w: credential has no phone", ErrInvalidInput)
	}
	if cred.PhoneVerified {
		return nil
	}

	return e.issueCode(ctx, userID, PurposePhoneVerification, cred.Phone, KindPhoneVerification)
}

// VerifyEmail consumes an email verification token. The link carries only the
// token, so the pending row is located by digest across all subjects. A
// subject whose email is already verified gets an idempotent success.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*VerifyResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	now := time.Now()
	digest := internal.Digest(token)
	code, err := e.store.PendingCodeByHash(ctx, PurposeEmailVerification, digest, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if result, ok := e.verifiedEmailResult(ctx, digest); ok {
				return result, nil
			}
			e.metrics.Inc(metrics.CodeRejected)
			e.emitAudit(ctx, eventCodeRejected, false, "", ErrCodeInvalid, "purpose="+string(PurposeEmailVerification))
			return nil, ErrCodeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := e.store.MarkCodeVerified(ctx, code.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return e.completeVerification(ctx, code.UserID, PurposeEmailVerification)
}

// verifiedEmailResult answers a repeated click of an already-consumed email
// link. When the token's consumed row still exists and the owning credential's
// email flag is set, the caller gets the same idempotent success a verified
// subject would.
func (e *Engine) verifiedEmailResult(ctx context.Context, digest string) (*VerifyResult, bool) {
	prior, err := e.store.CodeByHash(ctx, PurposeEmailVerification, digest)
	if err != nil {
		return nil, false
	}
	cred, err := e.store.CredentialByID(ctx, prior.UserID)
	if err != nil || !cred.EmailVerified {
		return nil, false
	}
	return &VerifyResult{UserID: prior.UserID, Purpose: PurposeEmailVerification, AlreadyVerified: true}, true
}

// VerifyPhone consumes a numeric SMS code. The store's locking consumption
// guarantees that of N concurrent callers holding the same valid code exactly
// one wins. With login type BOTH the email channel must be verified first.
func (e *Engine) VerifyPhone(ctx context.Context, userID uuid.UUID, otp string) (*VerifyResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	cred, err := e.credentialByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.PhoneVerified {
		return &VerifyResult{UserID: userID, Purpose: PurposePhoneVerification, AlreadyVerified: true}, nil
	}
	if cred.LoginType == LoginBoth && !cred.EmailVerified {
		e.emitAudit(ctx, eventCodeRejected, false, userID.String(), ErrEmailNotVerified, "purpose="+string(PurposePhoneVerification))
		return nil, ErrEmailNotVerified
	}

	_, err = e.store.ConsumePendingCode(ctx, userID, PurposePhoneVerification, time.Now(), func(codeHash string) bool {
		match, verr := e.hasher.Verify(otp, codeHash)
		return verr == nil && match
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCodeMismatch) {
			e.metrics.Inc(metrics.CodeRejected)
			e.emitAudit(ctx, eventCodeRejected, false, userID.String(), ErrCodeInvalid, "purpose="+string(PurposePhoneVerification))
			return nil, ErrCodeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return e.completeVerification(ctx, userID, PurposePhoneVerification)
}

// completeVerification flips the verified flag behind the purpose and promotes
// the credential to ACTIVE once every flag its login type demands holds.
func (e *Engine) completeVerification(ctx context.Context, userID uuid.UUID, purpose CodePurpose) (*VerifyResult, error) {
	cred, err := e.credentialByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{UserID: userID, Purpose: purpose}

	switch purpose {
	case PurposeEmailVerification:
		if cred.EmailVerified {
			result.AlreadyVerified = true
			return result, nil
		}
		cred.EmailVerified = true
	case PurposePhoneVerification:
		if cred.PhoneVerified {
			result.AlreadyVerified = true
			return result, nil
		}
		cred.PhoneVerified = true
	}

	if cred.Status == StatusInactive && cred.LoginType.RequiredFlagsSet(cred.EmailVerified, cred.PhoneVerified) {
		cred.Status = StatusActive
		result.Activated = true
	}

	cred.UpdatedAt = time.Now()
	if err := e.store.UpdateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.Inc(metrics.CodeVerified)
	e.emitAudit(ctx, eventCodeVerified, true, userID.String(), nil, "purpose="+string(purpose))
	if result.Activated {
		e.emitAudit(ctx, eventAccountActivated, true, userID.String(), nil, "")
	}
	return result, nil
}

func (e *Engine) credentialByID(ctx context.Context, userID uuid.UUID) (*Credential, error) {
	cred, err := e.store.CredentialByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown credential", ErrInvalidInput)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return cred, nil
}
