package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ========================================
// Checkout Token Tests
// ========================================

func TestCheckoutTokens_RoundTrip(t *testing.T) {
	tokens := NewCheckoutTokens("test-secret", time.Hour)

	signed, err := tokens.Issue("sess1", "pay1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.SessionID != "sess1" || claims.PaymentID != "pay1" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Subject != "sess1" {
		t.Errorf("subject = %q, want sess1", claims.Subject)
	}
}

func TestCheckoutTokens_Expired(t *testing.T) {
	tokens := NewCheckoutTokens("test-secret", time.Minute)
	issuedAt := time.Now().Add(-2 * time.Hour)
	tokens.now = func() time.Time { return issuedAt }

	signed, err := tokens.Issue("sess1", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	tokens.now = time.Now

	if _, err := tokens.Verify(signed); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestCheckoutTokens_Rejects(t *testing.T) {
	tokens := NewCheckoutTokens("test-secret", time.Hour)
	other := NewCheckoutTokens("other-secret", time.Hour)
	foreign, _ := other.Issue("sess1", "")

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, CheckoutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		SessionID: "sess1",
	}).SignedString([]byte("test-secret"))

	noSession, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, CheckoutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    checkoutIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "wrong secret", token: foreign, wantErr: ErrInvalidToken},
		{name: "wrong issuer", token: wrongIssuer, wantErr: ErrInvalidToken},
		{name: "missing session", token: noSession, wantErr: ErrMissingClaims},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Verify(tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewCheckoutTokens_DefaultTTL(t *testing.T) {
	tokens := NewCheckoutTokens("s", 0)
	if tokens.ttl != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", tokens.ttl)
	}
}

// ========================================
// Admin Key Tests
// ========================================

func TestValidAdminKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		key    string
		want   bool
	}{
		{name: "match", header: "Bearer admin-123", key: "admin-123", want: true},
		{name: "wrong key", header: "Bearer admin-124", key: "admin-123", want: false},
		{name: "missing scheme", header: "admin-123", key: "admin-123", want: false},
		{name: "empty header", header: "", key: "admin-123", want: false},
		{name: "admin disabled", header: "Bearer ", key: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidAdminKey(tt.header, tt.key); got != tt.want {
				t.Errorf("ValidAdminKey() = %v, want %v", got, tt.want)
			}
		})
	}
}
