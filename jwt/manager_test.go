package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func newHS256Manager(t *testing.T, access, refresh time.Duration) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		AccessTTL:     access,
		RefreshTTL:    refresh,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "credtrust-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newHS256Manager(t, time.Hour, 24*time.Hour)

	token, issuedAt, expiresAt, err := m.Issue("user-1", PurposeAccess, "jti-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := expiresAt.Sub(issuedAt); got != time.Hour {
		t.Fatalf("access lifetime = %v, want 1h", got)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("Subject = %q", claims.Subject)
	}
	if claims.Purpose != PurposeAccess {
		t.Fatalf("Purpose = %q", claims.Purpose)
	}
	if claims.ID != "jti-1" {
		t.Fatalf("ID = %q", claims.ID)
	}
	if !claims.IssuedAt.Time.Equal(issuedAt) || !claims.ExpiresAt.Time.Equal(expiresAt) {
		t.Fatal("claim times do not match returned times")
	}
}

func TestRefreshPurposeAndTTL(t *testing.T) {
	m := newHS256Manager(t, time.Hour, 24*time.Hour)

	token, issuedAt, expiresAt, err := m.Issue("user-1", PurposeRefresh, "jti-2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := expiresAt.Sub(issuedAt); got != 24*time.Hour {
		t.Fatalf("refresh lifetime = %v, want 24h", got)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Purpose != PurposeRefresh {
		t.Fatalf("Purpose = %q", claims.Purpose)
	}
}

func TestParseExpired(t *testing.T) {
	m := newHS256Manager(t, time.Hour, 24*time.Hour)

	short, err := NewManager(Config{
		AccessTTL:     time.Second,
		RefreshTTL:    time.Second,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "credtrust-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, _, err := short.Issue("user-1", PurposeAccess, "jti-3")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	if _, err := m.Parse(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("Parse expired = %v, want ErrExpired", err)
	}
}

func TestParseTampered(t *testing.T) {
	m := newHS256Manager(t, time.Hour, 24*time.Hour)

	token, _, _, err := m.Issue("user-1", PurposeAccess, "jti-4")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := m.Parse(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse tampered = %v, want ErrInvalid", err)
	}
}

func TestParseWrongIssuer(t *testing.T) {
	m := newHS256Manager(t, time.Hour, 24*time.Hour)

	other, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "someone-else",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, _, err := other.Issue("user-1", PurposeAccess, "jti-5")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Parse wrong issuer = %v, want ErrInvalid", err)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "credtrust-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, _, _, err := m.Issue("user-1", PurposeAccess, "jti-6")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("Subject = %q", claims.Subject)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	base := Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("secret"),
	}

	cfg := base
	cfg.AccessTTL = 0
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("zero access TTL accepted")
	}

	cfg = base
	cfg.SigningMethod = "rs256"
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("unsupported method accepted")
	}

	cfg = base
	cfg.PrivateKey = nil
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("hs256 without key accepted")
	}

	cfg = base
	cfg.Leeway = 5 * time.Minute
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("excessive leeway accepted")
	}
}
