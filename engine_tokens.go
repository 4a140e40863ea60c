package credtrust

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/internal/metrics"
	"github.com/credtrust/credtrust/jwt"
	"github.com/credtrust/credtrust/store"
)

func purposeForType(t TokenType) jwt.Purpose {
	if t == TokenRefresh {
		return jwt.PurposeRefresh
	}
	return jwt.PurposeAccess
}

// mintToken signs one token and records it in the ledger. The ledger row
// mirrors the iat and exp claims returned by the signer, never a recomputed
// clock reading.
func (e *Engine) mintToken(ctx context.Context, userID uuid.UUID, tokenType TokenType) (*TokenRecord, error) {
	token, issuedAt, expiresAt, err := e.jwtManager.Issue(userID.String(), purposeForType(tokenType), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec := &TokenRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		Type:      tokenType,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if err := e.store.SaveToken(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e.metrics.Inc(metrics.TokenIssued)
	return rec, nil
}

func (e *Engine) mintPair(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := e.mintToken(ctx, userID, TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := e.mintToken(ctx, userID, TokenRefresh)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// ValidateToken checks a bearer token of the expected type. A token is usable
// only while its signature and embedded expiry validate AND a non-revoked
// ledger record still exists; the three failure modes come back as
// ErrTokenInvalid, ErrTokenExpired, and ErrTokenRevoked.
func (e *Engine) ValidateToken(ctx context.Context, token string, tokenType TokenType) (*TokenInfo, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != purposeForType(tokenType) {
		return nil, ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	rec, err := e.store.TokenByValue(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// A well-signed token the ledger never recorded was not issued
			// here. Only a deliberately withdrawn token reads as revoked.
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rec.Revoked {
		return nil, ErrTokenRevoked
	}

	return &TokenInfo{
		UserID:    userID,
		Type:      tokenType,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RevokeToken withdraws a single token. Revoking a token the ledger does not
// know, or one already revoked, is a no-op.
func (e *Engine) RevokeToken(ctx context.Context, token string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.revokeToken(ctx, token)
}

func (e *Engine) revokeToken(ctx context.Context, token string) error {
	if err := e.store.RevokeToken(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	e.metrics.Inc(metrics.TokenRevoked)
	return nil
}

// RevokeAll withdraws every live token of the subject in one atomic update.
// An empty tokenType matches both types. Returns the number of tokens
// revoked.
func (e *Engine) RevokeAll(ctx context.Context, userID uuid.UUID, tokenType TokenType) (int64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	return e.revokeAll(ctx, userID, tokenType)
}

func (e *Engine) revokeAll(ctx context.Context, userID uuid.UUID, tokenType TokenType) (int64, error) {
	n, err := e.store.RevokeAllTokens(ctx, userID, tokenType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n > 0 {
		e.metrics.Inc(metrics.TokenRevoked)
	}
	return n, nil
}
