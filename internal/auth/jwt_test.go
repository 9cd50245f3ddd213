package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-16-chars!!"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTTL)
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("user-abc-123")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Generate() = %q does not look like a JWT", token)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "user-abc-123" {
		t.Errorf("Validate() = %q, want %q", got, "user-abc-123")
	}
}

func TestGenerate_UsesConfiguredTTL(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate("user-1")
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &claims{})
	if err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}
	c := parsed.Claims.(*claims)
	lifetime := c.ExpiresAt.Sub(c.IssuedAt.Time)
	if lifetime != time.Hour {
		t.Errorf("token lifetime = %v, want 1h", lifetime)
	}
	if c.Issuer != "slackdash" {
		t.Errorf("issuer = %q, want slackdash", c.Issuer)
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)

	expired, _ := ts.GenerateWithDuration("user-1", -time.Second)
	good, _ := ts.Generate("user-1")
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)
	foreign, _ := other.Generate("user-1")

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))

	noSubject, _ := ts.GenerateWithDuration("", time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"signed with another secret", foreign},
		{"wrong issuer", wrongIssuer},
		{"no subject", noSubject},
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(tt.token); err == nil {
				t.Errorf("Validate(%s) should fail", tt.name)
			}
		})
	}
}
