package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user-1",
		"name": "alice",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Subject != "user-1" {
		t.Errorf("subject: got %q, want %q", identity.Subject, "user-1")
	}
	if identity.Name != "alice" {
		t.Errorf("name: got %q, want %q", identity.Name, "alice")
	}
	if identity.Role != "admin" {
		t.Errorf("role: got %q, want %q", identity.Role, "admin")
	}
}

func TestVerifyNameDefaultsToSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-2",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Name != "user-2" {
		t.Errorf("name must fall back to subject, got %q", identity.Name)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.Verify(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.Verify(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"name": "alice",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.Verify(token); err == nil {
		t.Error("token without a subject must be rejected")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := v.Verify(token); err == nil {
			t.Errorf("garbage token %q must be rejected", token)
		}
	}
}
