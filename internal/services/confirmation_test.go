package services

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

func TestConfirmationIssuerRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	issuer, err := NewConfirmationIssuer("0123456789abcdef", 0, func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewConfirmationIssuer: %v", err)
	}

	confirmation, err := issuer.Issue("admin-1", 42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !confirmation.ExpiresAt.Equal(now.Add(defaultConfirmationTTL)) {
		t.Fatalf("expected default ttl, got %s", confirmation.ExpiresAt)
	}

	tokenID, err := issuer.Verify(confirmation.Token, "admin-1")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if tokenID != confirmation.TokenID {
		t.Fatalf("expected token id %q, got %q", confirmation.TokenID, tokenID)
	}
}

func TestConfirmationIssuerRejectsTamperedTokens(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, err := NewConfirmationIssuer("0123456789abcdef", time.Minute, clock)
	if err != nil {
		t.Fatalf("NewConfirmationIssuer: %v", err)
	}
	other, err := NewConfirmationIssuer("fedcba9876543210", time.Minute, clock)
	if err != nil {
		t.Fatalf("NewConfirmationIssuer: %v", err)
	}
	confirmation, err := issuer.Issue("admin-1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	foreign, err := other.Issue("admin-1", 1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wrongPurpose, err := jwt.NewWithClaims(jwt.SigningMethodHS256, confirmationClaims{
		Purpose:          "something.else",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, confirmationClaims{
		Purpose:          bulkClearPurpose,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := map[string]struct {
		token   string
		subject string
	}{
		"empty":           {token: "", subject: "admin-1"},
		"garbage":         {token: "not-a-jwt", subject: "admin-1"},
		"other subject":   {token: confirmation.Token, subject: "admin-2"},
		"foreign secret":  {token: foreign.Token, subject: "admin-1"},
		"wrong purpose":   {token: wrongPurpose, subject: "admin-1"},
		"none algorithm":  {token: unsigned, subject: "admin-1"},
		"truncated token": {token: strings.TrimSuffix(confirmation.Token, confirmation.Token[len(confirmation.Token)-4:]), subject: "admin-1"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Verify(tc.token, tc.subject); err == nil {
				t.Fatal("expected verification failure")
			}
		})
	}

	now = now.Add(2 * time.Minute)
	if _, err := issuer.Verify(confirmation.Token, "admin-1"); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestNewConfirmationIssuerRequiresStrongSecret(t *testing.T) {
	if _, err := NewConfirmationIssuer("short", time.Minute, nil); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}
