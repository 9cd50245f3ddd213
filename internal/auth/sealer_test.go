package auth

import (
	"strings"
	"testing"
)

func newTestSealer(t *testing.T, secret string) *Sealer {
	t.Helper()
	s, err := NewSealer(secret)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t, testSecret)

	sealed, err := s.Seal("xoxp-1234-5678")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if strings.Contains(sealed, "xoxp") {
		t.Errorf("Seal() output %q leaks the plaintext", sealed)
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != "xoxp-1234-5678" {
		t.Errorf("Open() = %q, want %q", got, "xoxp-1234-5678")
	}
}

func TestSealer_FreshNonceEachTime(t *testing.T) {
	s := newTestSealer(t, testSecret)

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext should differ")
	}
}

func TestSealer_Rejects(t *testing.T) {
	s := newTestSealer(t, testSecret)
	other := newTestSealer(t, "a-completely-different-secret")
	sealed, _ := s.Seal("xoxp-1")

	// flip a character in the middle; the last one may only carry padding bits
	flipped := []byte(sealed)
	mid := len(flipped) / 2
	if flipped[mid] == 'A' {
		flipped[mid] = 'B'
	} else {
		flipped[mid] = 'A'
	}

	tests := []struct {
		name   string
		sealer *Sealer
		value  string
	}{
		{"other key", other, sealed},
		{"modified ciphertext", s, string(flipped)},
		{"not base64", s, "%%%"},
		{"too short", s, "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.sealer.Open(tt.value); err == nil {
				t.Errorf("Open(%s) should fail", tt.name)
			}
		})
	}
}

func TestNewSealer_ShortSecret(t *testing.T) {
	if _, err := NewSealer("short"); err == nil {
		t.Error("NewSealer() should reject short secrets")
	}
}
