// Package memory provides an in-process implementation of the store contract.
// It mirrors the locking semantics the engine relies on: code consumption is
// serialized under the store mutex and bulk revocation flips all rows while
// the lock is held, so concurrency tests exercise the same single-winner
// guarantees as the relational backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/store"
)

// Store is a mutex-guarded map-backed store.Store.
type Store struct {
	mu          sync.Mutex
	credentials map[uuid.UUID]*store.Credential
	tokens      map[string]*store.TokenRecord
	codes       map[uuid.UUID]*store.VerificationCode
	resets      map[uuid.UUID]*store.ResetToken
	events      []*store.SecurityEvent
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		credentials: make(map[uuid.UUID]*store.Credential),
		tokens:      make(map[string]*store.TokenRecord),
		codes:       make(map[uuid.UUID]*store.VerificationCode),
		resets:      make(map[uuid.UUID]*store.ResetToken),
	}
}

func cloneCredential(c *store.Credential) *store.Credential {
	out := *c
	if c.LastLoginAt != nil {
		t := *c.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

func (s *Store) CreateCredential(_ context.Context, cred *store.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.credentials {
		if existing.Username == cred.Username {
			return store.ErrDuplicate
		}
		if cred.Email != "" && existing.Email == cred.Email {
			return store.ErrDuplicate
		}
		if cred.Phone != "" && existing.Phone == cred.Phone {
			return store.ErrDuplicate
		}
	}

	s.credentials[cred.ID] = cloneCredential(cred)
	return nil
}

func (s *Store) CredentialByID(_ context.Context, id uuid.UUID) (*store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCredential(cred), nil
}

func (s *Store) CredentialByContact(_ context.Context, contact string) (*store.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.credentials {
		if (cred.Email != "" && cred.Email == contact) || (cred.Phone != "" && cred.Phone == contact) {
			return cloneCredential(cred), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateCredential(_ context.Context, cred *store.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[cred.ID]; !ok {
		return store.ErrNotFound
	}
	s.credentials[cred.ID] = cloneCredential(cred)
	return nil
}

func (s *Store) SaveToken(_ context.Context, rec *store.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.tokens[rec.Token] = &clone
	return nil
}

func (s *Store) TokenByValue(_ context.Context, token string) (*store.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *Store) RevokeToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.tokens[token]; ok {
		rec.Revoked = true
	}
	return nil
}

func (s *Store) RevokeAllTokens(_ context.Context, userID uuid.UUID, tokenType store.TokenType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped int64
	for _, rec := range s.tokens {
		if rec.UserID != userID || rec.Revoked {
			continue
		}
		if tokenType != "" && rec.Type != tokenType {
			continue
		}
		rec.Revoked = true
		flipped++
	}
	return flipped, nil
}

func (s *Store) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for token, rec := range s.tokens {
		if rec.ExpiresAt.Before(before) {
			delete(s.tokens, token)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) SaveCode(_ context.Context, code *store.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *code
	s.codes[code.ID] = &clone
	return nil
}

func (s *Store) InvalidatePendingCodes(_ context.Context, userID uuid.UUID, purpose store.CodePurpose, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var touched int64
	for _, code := range s.codes {
		if code.UserID == userID && code.Purpose == purpose && code.Pending(now) {
			code.Verified = true
			touched++
		}
	}
	return touched, nil
}

func (s *Store) PendingCodeHashes(_ context.Context, now time.Time, purposes ...store.CodePurpose) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hashes []string
	for _, code := range s.codes {
		if !code.Pending(now) {
			continue
		}
		for _, p := range purposes {
			if code.Purpose == p {
				hashes = append(hashes, code.CodeHash)
				break
			}
		}
	}
	return hashes, nil
}

func (s *Store) PendingCodeByHash(_ context.Context, purpose store.CodePurpose, codeHash string, now time.Time) (*store.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, code := range s.codes {
		if code.Purpose == purpose && code.CodeHash == codeHash && code.Pending(now) {
			clone := *code
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CodeByHash(_ context.Context, purpose store.CodePurpose, codeHash string) (*store.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *store.VerificationCode
	for _, code := range s.codes {
		if code.Purpose != purpose || code.CodeHash != codeHash {
			continue
		}
		if newest == nil || code.CreatedAt.After(newest.CreatedAt) {
			newest = code
		}
	}
	if newest == nil {
		return nil, store.ErrNotFound
	}
	clone := *newest
	return &clone, nil
}

func (s *Store) MarkCodeVerified(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[id]
	if !ok {
		return store.ErrNotFound
	}
	code.Verified = true
	return nil
}

func (s *Store) ConsumePendingCode(_ context.Context, userID uuid.UUID, purpose store.CodePurpose, now time.Time, match func(codeHash string) bool) (*store.VerificationCode, error) {
	// The store mutex is the row lock here: match runs while it is held, so
	// two concurrent consumers of the same code serialize and the loser sees
	// an already-verified row.
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*store.VerificationCode, 0, 1)
	for _, code := range s.codes {
		if code.UserID == userID && code.Purpose == purpose && code.Pending(now) {
			candidates = append(candidates, code)
		}
	}
	if len(candidates) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	newest := candidates[0]
	if !match(newest.CodeHash) {
		return nil, store.ErrCodeMismatch
	}
	newest.Verified = true
	clone := *newest
	return &clone, nil
}

func (s *Store) DeleteExpiredCodes(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, code := range s.codes {
		if code.ExpiresAt.Before(before) {
			delete(s.codes, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) SaveResetToken(_ context.Context, tok *store.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *tok
	s.resets[tok.ID] = &clone
	return nil
}

func (s *Store) ActiveResetTokens(_ context.Context, now time.Time) ([]store.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.ResetToken
	for _, tok := range s.resets {
		if now.Before(tok.ExpiresAt) {
			out = append(out, *tok)
		}
	}
	return out, nil
}

func (s *Store) DeleteResetToken(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.resets, id)
	return nil
}

func (s *Store) DeleteResetTokensForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, tok := range s.resets {
		if tok.UserID == userID {
			delete(s.resets, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteExpiredResetTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, tok := range s.resets {
		if tok.ExpiresAt.Before(before) {
			delete(s.resets, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) SaveSecurityEvent(_ context.Context, event *store.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	if event.UserID != nil {
		id := *event.UserID
		clone.UserID = &id
	}
	s.events = append(s.events, &clone)
	return nil
}

// SecurityEvents returns a snapshot of the recorded events, oldest first.
// Test helper; the engine never reads events back.
func (s *Store) SecurityEvents() []store.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.SecurityEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *e)
	}
	return out
}

var _ store.Store = (*Store)(nil)
