package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/store"
)

func newCredential(username, email, phone string) *store.Credential {
	now := time.Now()
	return &store.Credential{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Phone:     phone,
		LoginType: store.LoginEmail,
		Status:    store.StatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateCredentialRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateCredential(ctx, newCredential("alice", "alice@example.com", "")); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	if err := s.CreateCredential(ctx, newCredential("alice", "other@example.com", "")); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate username: %v, want ErrDuplicate", err)
	}
	if err := s.CreateCredential(ctx, newCredential("bob", "alice@example.com", "")); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate email: %v, want ErrDuplicate", err)
	}
}

func TestCredentialByContact(t *testing.T) {
	s := New()
	ctx := context.Background()

	cred := newCredential("alice", "alice@example.com", "+15550100")
	if err := s.CreateCredential(ctx, cred); err != nil {
		t.Fatalf("CreateCredential: %v", err)
	}

	byEmail, err := s.CredentialByContact(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("by email: %v", err)
	}
	byPhone, err := s.CredentialByContact(ctx, "+15550100")
	if err != nil {
		t.Fatalf("by phone: %v", err)
	}
	if byEmail.ID != cred.ID || byPhone.ID != cred.ID {
		t.Fatal("contact lookups returned wrong credential")
	}

	if _, err := s.CredentialByContact(ctx, "nobody@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown contact: %v, want ErrNotFound", err)
	}
}

func TestUpdateCredentialDoesNotAlias(t *testing.T) {
	s := New()
	ctx := context.Background()

	cred := newCredential("alice", "alice@example.com", "")
	s.CreateCredential(ctx, cred)

	got, _ := s.CredentialByID(ctx, cred.ID)
	got.Status = store.StatusActive

	again, _ := s.CredentialByID(ctx, cred.ID)
	if again.Status != store.StatusInactive {
		t.Fatal("mutating a returned credential leaked into the store")
	}
}

func TestRevokeAllTokens(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()
	now := time.Now()

	save := func(token string, uid uuid.UUID, typ store.TokenType, revoked bool) {
		s.SaveToken(ctx, &store.TokenRecord{
			ID: uuid.New(), UserID: uid, Token: token, Type: typ,
			IssuedAt: now, ExpiresAt: now.Add(time.Hour), Revoked: revoked,
		})
	}
	save("a1", userID, store.TokenAccess, false)
	save("a2", userID, store.TokenRefresh, false)
	save("a3", userID, store.TokenAccess, true)
	save("b1", otherID, store.TokenAccess, false)

	n, err := s.RevokeAllTokens(ctx, userID, "")
	if err != nil {
		t.Fatalf("RevokeAllTokens: %v", err)
	}
	if n != 2 {
		t.Fatalf("flipped = %d, want 2", n)
	}

	if rec, err := s.TokenByValue(ctx, "a1"); err != nil || !rec.Revoked {
		t.Fatal("a1 still active after bulk revoke")
	}
	if rec, err := s.TokenByValue(ctx, "b1"); err != nil || rec.Revoked {
		t.Fatal("other subject's token was revoked")
	}
}

func TestRevokeAllTokensByType(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	s.SaveToken(ctx, &store.TokenRecord{ID: uuid.New(), UserID: userID, Token: "acc", Type: store.TokenAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	s.SaveToken(ctx, &store.TokenRecord{ID: uuid.New(), UserID: userID, Token: "ref", Type: store.TokenRefresh, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})

	n, _ := s.RevokeAllTokens(ctx, userID, store.TokenRefresh)
	if n != 1 {
		t.Fatalf("flipped = %d, want 1", n)
	}
	if rec, err := s.TokenByValue(ctx, "acc"); err != nil || rec.Revoked {
		t.Fatal("access token should survive refresh-only revocation")
	}
}

func TestConsumePendingCodeSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	s.SaveCode(ctx, &store.VerificationCode{
		ID: uuid.New(), UserID: userID, CodeHash: "h1",
		Purpose:   store.PurposePhoneVerification,
		CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	})

	const callers = 16
	var wins, mismatches, notFound int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumePendingCode(ctx, userID, store.PurposePhoneVerification, time.Now(),
				func(hash string) bool { return hash == "h1" })
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrNotFound):
				notFound++
			case errors.Is(err, store.ErrCodeMismatch):
				mismatches++
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if wins+notFound != callers {
		t.Fatalf("wins=%d notFound=%d mismatches=%d, want all losers ErrNotFound", wins, notFound, mismatches)
	}
}

func TestConsumePendingCodeMatchesNewest(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	s.SaveCode(ctx, &store.VerificationCode{
		ID: uuid.New(), UserID: userID, CodeHash: "old",
		Purpose:   store.PurposePasswordReset,
		CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(15 * time.Minute),
	})
	s.SaveCode(ctx, &store.VerificationCode{
		ID: uuid.New(), UserID: userID, CodeHash: "new",
		Purpose:   store.PurposePasswordReset,
		CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	})

	_, err := s.ConsumePendingCode(ctx, userID, store.PurposePasswordReset, now,
		func(hash string) bool { return hash == "old" })
	if !errors.Is(err, store.ErrCodeMismatch) {
		t.Fatalf("consuming against old code: %v, want ErrCodeMismatch", err)
	}

	code, err := s.ConsumePendingCode(ctx, userID, store.PurposePasswordReset, now,
		func(hash string) bool { return hash == "new" })
	if err != nil {
		t.Fatalf("consuming newest: %v", err)
	}
	if code.CodeHash != "new" {
		t.Fatalf("consumed %q, want newest row", code.CodeHash)
	}
}

func TestInvalidatePendingCodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now()

	for i := 0; i < 3; i++ {
		s.SaveCode(ctx, &store.VerificationCode{
			ID: uuid.New(), UserID: userID, CodeHash: "h",
			Purpose:   store.PurposeEmailVerification,
			CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
		})
	}

	n, err := s.InvalidatePendingCodes(ctx, userID, store.PurposeEmailVerification, now)
	if err != nil {
		t.Fatalf("InvalidatePendingCodes: %v", err)
	}
	if n != 3 {
		t.Fatalf("invalidated = %d, want 3", n)
	}

	hashes, _ := s.PendingCodeHashes(ctx, now, store.PurposeEmailVerification)
	if len(hashes) != 0 {
		t.Fatalf("pending hashes after invalidation = %d, want 0", len(hashes))
	}
}

func TestPendingCodeByHash(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	code := &store.VerificationCode{
		ID: uuid.New(), UserID: uuid.New(), CodeHash: "digest-1",
		Purpose:   store.PurposeEmailVerification,
		CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute),
	}
	s.SaveCode(ctx, code)

	got, err := s.PendingCodeByHash(ctx, store.PurposeEmailVerification, "digest-1", now)
	if err != nil {
		t.Fatalf("PendingCodeByHash: %v", err)
	}
	if got.ID != code.ID {
		t.Fatal("wrong row returned")
	}

	if _, err := s.PendingCodeByHash(ctx, store.PurposeEmailVerification, "digest-1", now.Add(16*time.Minute)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired lookup: %v, want ErrNotFound", err)
	}
}

func TestCleanupDeletesExpiredRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	s.SaveToken(ctx, &store.TokenRecord{ID: uuid.New(), UserID: userID, Token: "dead", Type: store.TokenAccess, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)})
	s.SaveToken(ctx, &store.TokenRecord{ID: uuid.New(), UserID: userID, Token: "live", Type: store.TokenAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour)})
	s.SaveCode(ctx, &store.VerificationCode{ID: uuid.New(), UserID: userID, CodeHash: "h", Purpose: store.PurposePhoneVerification, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-45 * time.Minute)})
	s.SaveResetToken(ctx, &store.ResetToken{ID: uuid.New(), UserID: userID, SecretHash: "sh", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)})

	if n, _ := s.DeleteExpiredTokens(ctx, now); n != 1 {
		t.Fatalf("expired tokens deleted = %d, want 1", n)
	}
	if n, _ := s.DeleteExpiredCodes(ctx, now); n != 1 {
		t.Fatalf("expired codes deleted = %d, want 1", n)
	}
	if n, _ := s.DeleteExpiredResetTokens(ctx, now); n != 1 {
		t.Fatalf("expired resets deleted = %d, want 1", n)
	}
	if _, err := s.TokenByValue(ctx, "live"); err != nil {
		t.Fatal("live token deleted by cleanup")
	}
}

func TestSecurityEvents(t *testing.T) {
	s := New()
	ctx := context.Background()
	userID := uuid.New()

	s.SaveSecurityEvent(ctx, &store.SecurityEvent{ID: uuid.New(), UserID: &userID, EventType: "LOGIN_SUCCESS", CreatedAt: time.Now()})
	s.SaveSecurityEvent(ctx, &store.SecurityEvent{ID: uuid.New(), EventType: "RATE_LIMITED", CreatedAt: time.Now()})

	events := s.SecurityEvents()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].EventType != "LOGIN_SUCCESS" || events[0].UserID == nil {
		t.Fatal("first event malformed")
	}
	if events[1].UserID != nil {
		t.Fatal("unattributed event should have nil user id")
	}
}
