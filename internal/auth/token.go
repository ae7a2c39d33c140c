// Package auth issues and verifies checkout return tokens and checks the
// admin API key.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
)

const checkoutIssuer = "prayerline"

// CheckoutClaims binds a checkout return URL to one session.
type CheckoutClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	PaymentID string `json:"pid,omitempty"`
}

// CheckoutTokens issues and verifies HS256 checkout return tokens.
type CheckoutTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCheckoutTokens creates a token issuer. ttl defaults to 24h.
func NewCheckoutTokens(secret string, ttl time.Duration) *CheckoutTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CheckoutTokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for a session's checkout.
func (t *CheckoutTokens) Issue(sessionID, paymentID string) (string, error) {
	now := t.now()
	claims := CheckoutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    checkoutIssuer,
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		SessionID: sessionID,
		PaymentID: paymentID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign checkout token: %w", err)
	}
	return signed, nil
}

// Verify checks a token and returns its claims.
func (t *CheckoutTokens) Verify(tokenString string) (*CheckoutClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CheckoutClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(checkoutIssuer), jwt.WithTimeFunc(t.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CheckoutClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// ValidAdminKey reports whether an Authorization header carries key as a
// bearer token. An empty key disables admin access.
func ValidAdminKey(authHeader, key string) bool {
	if key == "" {
		return false
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(key)) == 1
}
