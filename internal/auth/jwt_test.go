package auth

import (
	"testing"
	"time"

	"github.com/erazemk/stockledger/internal/apperr"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, "idp|42", "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.Subject != "idp|42" {
		t.Errorf("expected subject 'idp|42', got %q", claims.Subject)
	}
	if claims.Email != "ana@example.com" {
		t.Errorf("expected email 'ana@example.com', got %q", claims.Email)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", "sub", "a@example.com", time.Hour)

	_, err := ValidateToken("secret2", token)
	if !apperr.Is(err, apperr.Unauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if !apperr.Is(err, apperr.Unauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestValidateTokenRequiresSubject(t *testing.T) {
	token, _ := GenerateToken("secret", "", "a@example.com", time.Hour)

	if _, err := ValidateToken("secret", token); err == nil {
		t.Error("expected error for token without subject")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, "sub", "a@example.com", 0)
	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	diff := time.Now().Add(DefaultTTL).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}

	expired, _ := GenerateToken(secret, "sub", "a@example.com", time.Nanosecond)
	time.Sleep(1100 * time.Millisecond)
	if _, err := ValidateToken(secret, expired); err == nil {
		t.Error("expected error for expired token")
	}
}
