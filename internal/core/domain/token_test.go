package domain

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateSecret(t *testing.T) {
	secret, hash, err := GenerateSecret(nil)
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}

	if len(secret) != SecretLength {
		t.Errorf("len(secret) = %d, want %d", len(secret), SecretLength)
	}
	if !ValidateSecretFormat(secret) {
		t.Errorf("generated secret %q fails format check", secret)
	}
	if !ValidateSecretHashFormat(hash) {
		t.Errorf("generated hash %q fails format check", hash)
	}
	if hash != HashSecret(secret) {
		t.Error("hash does not match HashSecret(secret)")
	}
}

func TestGenerateSecret_Deterministic(t *testing.T) {
	src := bytes.Repeat([]byte{7}, SecretBytesLength)

	s1, h1, err := GenerateSecret(bytes.NewReader(src))
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	s2, h2, _ := GenerateSecret(bytes.NewReader(src))
	if s1 != s2 || h1 != h2 {
		t.Error("same random bytes should give the same secret")
	}
}

func TestGenerateSecret_ReaderFailure(t *testing.T) {
	_, _, err := GenerateSecret(bytes.NewReader(nil))
	if !errors.Is(err, ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
}

func TestValidateSecretFormat(t *testing.T) {
	valid, _, _ := GenerateSecret(nil)

	tests := []struct {
		name   string
		secret string
		want   bool
	}{
		{"valid", valid, true},
		{"empty", "", false},
		{"wrong prefix", "tkx_" + valid[len(SecretPrefix):], false},
		{"too short", valid[:SecretLength-1], false},
		{"too long", valid + "A", false},
		{"invalid base64", SecretPrefix + strings.Repeat("!", SecretBodyLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateSecretFormat(tt.secret); got != tt.want {
				t.Errorf("ValidateSecretFormat(%q) = %v, want %v", tt.secret, got, tt.want)
			}
		})
	}
}

func TestValidateSecretHashFormat(t *testing.T) {
	hash := HashSecret("tks_anything")

	tests := []struct {
		name string
		hash string
		want bool
	}{
		{"valid", hash, true},
		{"uppercase body", SecretHashPrefix + strings.ToUpper(hash[len(SecretHashPrefix):]), false},
		{"wrong prefix", "tkxh_" + hash[len(SecretHashPrefix):], false},
		{"short", hash[:10], false},
		{"non hex", SecretHashPrefix + strings.Repeat("z", 64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateSecretHashFormat(tt.hash); got != tt.want {
				t.Errorf("ValidateSecretHashFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateTokenID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := GenerateTokenID(now, nil)
	if err != nil {
		t.Fatalf("GenerateTokenID() error = %v", err)
	}
	if !ValidateTokenID(id) {
		t.Errorf("generated id %q fails ValidateTokenID", id)
	}
	if strings.ToLower(id) != id {
		t.Errorf("id %q should be lowercase", id)
	}

	other, _ := GenerateTokenID(now, nil)
	if other == id {
		t.Error("GenerateTokenID() produced duplicate ids")
	}
	if other < id {
		t.Error("ids generated in the same millisecond should sort monotonically")
	}
}

func TestValidateTokenID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"tktk-01hqz7x3k5m8n9p0q1r2s3t4v5", true},
		{"tktk-short", false},
		{"tmss-01hqz7x3k5m8n9p0q1r2s3t4v5", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateTokenID(tt.id); got != tt.want {
			t.Errorf("ValidateTokenID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestValidateSubjectID(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		wantErr bool
	}{
		{"simple", "user-42", false},
		{"max length", strings.Repeat("a", MaxSubjectIDLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxSubjectIDLength+1), true},
		{"invalid utf8", "\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubjectID(tt.subject)
			if tt.wantErr && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func newTestToken(t *testing.T, issuedAt time.Time, ttl time.Duration) *Token {
	t.Helper()
	id, err := GenerateTokenID(issuedAt, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, hash, err := GenerateSecret(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewToken(id, hash, "user-1", issuedAt, ttl)
}

func TestToken_Validity(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := newTestToken(t, issued, time.Second)

	tests := []struct {
		name        string
		now         time.Time
		wantExpired bool
	}{
		{"at issuance", issued, false},
		{"just before expiry", issued.Add(999 * time.Millisecond), false},
		{"exactly at expiry", issued.Add(time.Second), true},
		{"after expiry", issued.Add(2 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.IsExpired(tt.now); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := tok.IsValid(tt.now); got == tt.wantExpired {
				t.Errorf("IsValid() = %v, want %v", got, !tt.wantExpired)
			}
			if got := tok.IsPurgeable(tt.now); got != tt.wantExpired {
				t.Errorf("IsPurgeable() = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestToken_Revoke(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := newTestToken(t, issued, time.Hour)

	first := issued.Add(time.Minute)
	tok.Revoke(first)
	tok.Revoke(first.Add(time.Minute))

	if !tok.Revoked {
		t.Fatal("Revoked should be true")
	}
	if !tok.RevokedAt.Equal(first) {
		t.Errorf("RevokedAt = %v, want first revocation %v", tok.RevokedAt, first)
	}
	if tok.IsValid(issued) {
		t.Error("revoked token must not be valid")
	}
	if !tok.IsPurgeable(issued) {
		t.Error("revoked token must be purgeable before expiry")
	}
}

func TestToken_Clone(t *testing.T) {
	tok := newTestToken(t, time.Now(), time.Hour)
	c := tok.Clone()
	c.Revoke(time.Now())

	if tok.Revoked {
		t.Error("mutating the clone changed the original")
	}
}

func TestToken_Check(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*Token)
		ok     bool
	}{
		{"valid", func(*Token) {}, true},
		{"bad id", func(tk *Token) { tk.ID = "nope" }, false},
		{"bad hash", func(tk *Token) { tk.SecretHash = "tksh_zz" }, false},
		{"zero ttl", func(tk *Token) { tk.ExpiresAt = tk.IssuedAt }, false},
		{"empty subject", func(tk *Token) { tk.SubjectID = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := newTestToken(t, issued, time.Hour)
			tt.mutate(tok)
			err := tok.Check()
			if tt.ok && err != nil {
				t.Errorf("Check() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Check() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"tks_ABCDEFGHIJxyz", "tks_ABC...xyz"},
		{"tks_ab", "tks_***"},
		{"plain-value", "***REDACTED***"},
		{"", "***REDACTED***"},
	}

	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
