package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	hasher, _ := New(testConfig())

	hash, err := hasher.Hash("correct-secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := hasher.Verify("wrong-secret", hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestHashShortNumericCode(t *testing.T) {
	hasher, _ := New(testConfig())

	hash, err := hasher.Hash("493027")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	ok, err := hasher.Verify("493027", hash)
	if err != nil || !ok {
		t.Fatalf("Verify numeric code: ok=%v err=%v", ok, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak, err := New(Config{Memory: 32768, Time: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("New(weak): %v", err)
	}
	hash, err := weak.Hash("test-secret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	current, _ := New(testConfig())
	upgrade, err := current.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade: %v", err)
	}
	if !upgrade {
		t.Fatal("expected weaker hash to need upgrade")
	}

	sameHash, _ := current.Hash("test-secret")
	upgrade, err = current.NeedsUpgrade(sameHash)
	if err != nil {
		t.Fatalf("NeedsUpgrade: %v", err)
	}
	if upgrade {
		t.Fatal("current-parameter hash should not need upgrade")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, _ := New(testConfig())

	if _, err := hasher.Verify("secret", "not-a-phc-hash"); err == nil {
		t.Fatal("expected malformed hash to error")
	}
}

func TestVerifyWrongVersion(t *testing.T) {
	hasher, _ := New(testConfig())

	hash, err := hasher.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := hasher.Verify("version-test", wrongVersion); err == nil {
		t.Fatal("expected unsupported version to error")
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	if _, err := New(Config{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected low memory config to be rejected")
	}
	if _, err := New(Config{Memory: 65536, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32}); err == nil {
		t.Fatal("expected short salt config to be rejected")
	}
}

func TestStrong(t *testing.T) {
	cases := []struct {
		password string
		want     bool
	}{
		{"Str0ng!pass", true},
		{"Sh0r!t", false},     // under 8 chars
		{"alllower1!", false}, // no upper
		{"ALLUPPER1!", false}, // no lower
		{"NoDigits!!", false}, // no digit
		{"NoSymbol11", false}, // no symbol
		{"", false},
		{"Ann0ther#One", true},
	}
	for _, tc := range cases {
		if got := Strong(tc.password); got != tc.want {
			t.Errorf("Strong(%q) = %v, want %v", tc.password, got, tc.want)
		}
	}
}
