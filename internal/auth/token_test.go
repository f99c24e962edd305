package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()

	token, err := IssueToken(secret, 42, "alice", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Errorf("expected user 42, got %d (%v)", id, err)
	}
	if claims.Username != "alice" {
		t.Errorf("expected username alice, got %q", claims.Username)
	}
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()

	expired, _ := IssueToken(secret, 1, "alice", time.Minute, now.Add(-time.Hour))
	otherSecret, _ := IssueToken([]byte("other"), 1, "alice", time.Hour, now)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1", Issuer: issuer}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"alg none", unsigned},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, secret); err == nil {
				t.Error("expected token to be rejected")
			}
		})
	}

	if _, err := IssueToken(nil, 1, "alice", time.Hour, now); err != ErrEmptySecret {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestClaimsUserID(t *testing.T) {
	for _, sub := range []string{"", "0", "-1", "abc"} {
		c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
		if _, err := c.UserID(); err == nil {
			t.Errorf("subject %q: expected error", sub)
		}
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 characters, got %d", len(a))
	}
	for _, r := range a {
		if !strings.ContainsRune(charset, r) {
			t.Fatalf("unexpected character %q", r)
		}
	}
	b, _ := GenerateSecret(32)
	if a == b {
		t.Error("expected two secrets to differ")
	}
}
