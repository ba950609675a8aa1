package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPassword_RoundTrip(t *testing.T) {
	h, err := HashPassword("pw123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(h, "pw123") {
		t.Fatalf("correct password rejected")
	}
	if VerifyPassword(h, "pw124") {
		t.Fatalf("wrong password accepted")
	}
}

func TestPassword_SaltsDiffer(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same password collided")
	}
	if !VerifyPassword(a, "same") || !VerifyPassword(b, "same") {
		t.Fatalf("one of the hashes does not verify")
	}
}

func TestPassword_MalformedStored(t *testing.T) {
	for _, stored := range []string{"", "bcrypt$x", "pbkdf2$abc$00$00", "pbkdf2$1000$zz$00"} {
		if VerifyPassword(stored, "pw") {
			t.Fatalf("malformed hash %q verified", stored)
		}
	}
}

func TestToken_IssueVerify(t *testing.T) {
	s := NewSigner([]byte("secret"), 30*24*time.Hour)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tok, err := s.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := s.Verify(tok, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Username != "alice" {
		t.Fatalf("username = %q", claims.Username)
	}
	if claims.TokenID == "" {
		t.Fatalf("missing token id")
	}
}

func TestToken_Expired(t *testing.T) {
	s := NewSigner([]byte("secret"), time.Hour)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tok, err := s.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Verify(tok, now.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
}

func TestToken_Tampered(t *testing.T) {
	s := NewSigner([]byte("secret"), time.Hour)
	now := time.Now()

	tok, err := s.Issue("alice", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	payload, sig, _ := strings.Cut(tok, ".")
	if _, err := s.Verify(payload, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("missing signature: err = %v", err)
	}
	if _, err := s.Verify("AAAA."+sig, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("swapped payload: err = %v", err)
	}

	other := NewSigner([]byte("other-secret"), time.Hour)
	if _, err := other.Verify(tok, now); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("cross-secret: err = %v", err)
	}
}
