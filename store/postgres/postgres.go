// Package postgres implements the storage contract over a pgx connection
// pool. One-time code consumption takes a row lock (SELECT ... FOR UPDATE)
// and bulk revocation is a single set-based UPDATE, so the concurrency
// guarantees the engine depends on hold across processes.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/credtrust/credtrust/store"
)

const uniqueViolation = "23505"

// Store is a pgxpool-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against the connection string and pings it.
func Connect(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) CreateCredential(ctx context.Context, cred *store.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials
			(id, username, email, phone, third_party_id, password_hash,
			 login_type, status, email_verified, phone_verified,
			 last_login_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6,
			$7, $8, $9, $10, $11, $12, $13)
	`, cred.ID, cred.Username, cred.Email, cred.Phone, cred.ThirdPartyID,
		cred.PasswordHash, cred.LoginType, cred.Status,
		cred.EmailVerified, cred.PhoneVerified,
		cred.LastLoginAt, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

const credentialColumns = `
	id, username, COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(third_party_id, ''), password_hash, login_type, status,
	email_verified, phone_verified, last_login_at, created_at, updated_at`

func scanCredential(row pgx.Row) (*store.Credential, error) {
	var cred store.Credential
	err := row.Scan(&cred.ID, &cred.Username, &cred.Email, &cred.Phone,
		&cred.ThirdPartyID, &cred.PasswordHash, &cred.LoginType, &cred.Status,
		&cred.EmailVerified, &cred.PhoneVerified,
		&cred.LastLoginAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &cred, nil
}

func (s *Store) CredentialByID(ctx context.Context, id uuid.UUID) (*store.Credential, error) {
	return scanCredential(s.pool.QueryRow(ctx, `
		SELECT`+credentialColumns+`
		FROM credentials
		WHERE id = $1
	`, id))
}

func (s *Store) CredentialByContact(ctx context.Context, contact string) (*store.Credential, error) {
	return scanCredential(s.pool.QueryRow(ctx, `
		SELECT`+credentialColumns+`
		FROM credentials
		WHERE email = $1 OR phone = $1
	`, contact))
}

func (s *Store) UpdateCredential(ctx context.Context, cred *store.Credential) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE credentials
		SET username = $2, email = NULLIF($3, ''), phone = NULLIF($4, ''),
			third_party_id = NULLIF($5, ''), password_hash = $6,
			login_type = $7, status = $8,
			email_verified = $9, phone_verified = $10,
			last_login_at = $11, updated_at = $12
		WHERE id = $1
	`, cred.ID, cred.Username, cred.Email, cred.Phone, cred.ThirdPartyID,
		cred.PasswordHash, cred.LoginType, cred.Status,
		cred.EmailVerified, cred.PhoneVerified,
		cred.LastLoginAt, cred.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveToken(ctx context.Context, rec *store.TokenRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO issued_tokens (id, user_id, token, token_type, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.Token, rec.Type, rec.IssuedAt, rec.ExpiresAt, rec.Revoked)
	return mapNil(err)
}

func (s *Store) TokenByValue(ctx context.Context, token string) (*store.TokenRecord, error) {
	var rec store.TokenRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token, token_type, issued_at, expires_at, revoked
		FROM issued_tokens
		WHERE token = $1
	`, token).Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.Type,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.Revoked)
	if err != nil {
		return nil, mapError(err)
	}
	return &rec, nil
}

func (s *Store) RevokeToken(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE issued_tokens
		SET revoked = TRUE
		WHERE token = $1 AND NOT revoked
	`, token)
	return mapNil(err)
}

func (s *Store) RevokeAllTokens(ctx context.Context, userID uuid.UUID, tokenType store.TokenType) (int64, error) {
	if tokenType == "" {
		tag, err := s.pool.Exec(ctx, `
			UPDATE issued_tokens
			SET revoked = TRUE
			WHERE user_id = $1 AND NOT revoked
		`, userID)
		if err != nil {
			return 0, mapError(err)
		}
		return tag.RowsAffected(), nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE issued_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND token_type = $2 AND NOT revoked
	`, userID, tokenType)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM issued_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SaveCode(ctx context.Context, code *store.VerificationCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verification_codes (id, user_id, code_hash, sent_to, purpose, created_at, expires_at, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, code.ID, code.UserID, code.CodeHash, code.SentTo, code.Purpose,
		code.CreatedAt, code.ExpiresAt, code.Verified)
	return mapNil(err)
}

func (s *Store) InvalidatePendingCodes(ctx context.Context, userID uuid.UUID, purpose store.CodePurpose, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE verification_codes
		SET verified = TRUE
		WHERE user_id = $1 AND purpose = $2 AND NOT verified AND expires_at > $3
	`, userID, purpose, now)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) PendingCodeHashes(ctx context.Context, now time.Time, purposes ...store.CodePurpose) ([]string, error) {
	names := make([]string, len(purposes))
	for i, p := range purposes {
		names[i] = string(p)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT code_hash
		FROM verification_codes
		WHERE purpose = ANY($1) AND NOT verified AND expires_at > $2
	`, names, now)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, mapError(err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (s *Store) PendingCodeByHash(ctx context.Context, purpose store.CodePurpose, codeHash string, now time.Time) (*store.VerificationCode, error) {
	return scanCode(s.pool.QueryRow(ctx, `
		SELECT id, user_id, code_hash, sent_to, purpose, created_at, expires_at, verified
		FROM verification_codes
		WHERE purpose = $1 AND code_hash = $2 AND NOT verified AND expires_at > $3
	`, purpose, codeHash, now))
}

func (s *Store) CodeByHash(ctx context.Context, purpose store.CodePurpose, codeHash string) (*store.VerificationCode, error) {
	return scanCode(s.pool.QueryRow(ctx, `
		SELECT id, user_id, code_hash, sent_to, purpose, created_at, expires_at, verified
		FROM verification_codes
		WHERE purpose = $1 AND code_hash = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, purpose, codeHash))
}

func scanCode(row pgx.Row) (*store.VerificationCode, error) {
	var code store.VerificationCode
	err := row.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.SentTo,
		&code.Purpose, &code.CreatedAt, &code.ExpiresAt, &code.Verified)
	if err != nil {
		return nil, mapError(err)
	}
	return &code, nil
}

func (s *Store) MarkCodeVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE verification_codes SET verified = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ConsumePendingCode(ctx context.Context, userID uuid.UUID, purpose store.CodePurpose, now time.Time, match func(codeHash string) bool) (*store.VerificationCode, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// The row lock holds until commit, so concurrent consumers of the same
	// code queue here and the losers see the row already verified.
	code, err := scanCode(tx.QueryRow(ctx, `
		SELECT id, user_id, code_hash, sent_to, purpose, created_at, expires_at, verified
		FROM verification_codes
		WHERE user_id = $1 AND purpose = $2 AND NOT verified AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, userID, purpose, now))
	if err != nil {
		return nil, err
	}

	if !match(code.CodeHash) {
		return nil, store.ErrCodeMismatch
	}

	if _, err := tx.Exec(ctx, `
		UPDATE verification_codes SET verified = TRUE WHERE id = $1
	`, code.ID); err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}

	code.Verified = true
	return code, nil
}

func (s *Store) DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verification_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SaveResetToken(ctx context.Context, tok *store.ResetToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reset_tokens (id, user_id, secret_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, tok.ID, tok.UserID, tok.SecretHash, tok.CreatedAt, tok.ExpiresAt)
	return mapNil(err)
}

func (s *Store) ActiveResetTokens(ctx context.Context, now time.Time) ([]store.ResetToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, secret_hash, created_at, expires_at
		FROM reset_tokens
		WHERE expires_at > $1
	`, now)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []store.ResetToken
	for rows.Next() {
		var tok store.ResetToken
		if err := rows.Scan(&tok.ID, &tok.UserID, &tok.SecretHash, &tok.CreatedAt, &tok.ExpiresAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (s *Store) DeleteResetToken(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE id = $1`, id)
	return mapNil(err)
}

func (s *Store) DeleteResetTokensForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteExpiredResetTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SaveSecurityEvent(ctx context.Context, event *store.SecurityEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_events (id, user_id, event_type, detail, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.UserID, event.EventType, event.Detail, event.IP, event.UserAgent, event.CreatedAt)
	return mapNil(err)
}

func mapNil(err error) error {
	if err != nil {
		return mapError(err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
