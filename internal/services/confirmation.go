package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	bulkClearPurpose       = "orders.bulk_clear"
	defaultConfirmationTTL = 5 * time.Minute
	minConfirmationSecret  = 16
)

var errConfirmationInvalid = errors.New("confirmation token is invalid or expired")

// ConfirmationIssuer signs short-lived tokens that authorise one destructive admin operation.
type ConfirmationIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// Confirmation is an issued token.
type Confirmation struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
}

type confirmationClaims struct {
	Purpose    string `json:"purpose"`
	OrderCount int64  `json:"order_count"`
	jwt.RegisteredClaims
}

func NewConfirmationIssuer(secret string, ttl time.Duration, clock func() time.Time) (*ConfirmationIssuer, error) {
	if len(strings.TrimSpace(secret)) < minConfirmationSecret {
		return nil, fmt.Errorf("confirmation issuer: secret must be at least %d characters", minConfirmationSecret)
	}
	if ttl <= 0 {
		ttl = defaultConfirmationTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &ConfirmationIssuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// Issue signs a bulk clear confirmation bound to subject.
func (i *ConfirmationIssuer) Issue(subject string, orderCount int64) (Confirmation, error) {
	now := i.clock().UTC().Truncate(time.Second)
	expires := now.Add(i.ttl)
	claims := confirmationClaims{
		Purpose:    bulkClearPurpose,
		OrderCount: orderCount,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Confirmation{}, fmt.Errorf("confirmation issuer: sign: %w", err)
	}
	return Confirmation{Token: signed, TokenID: claims.ID, ExpiresAt: expires}, nil
}

// Verify checks signature, purpose, subject and expiry. It returns the token id.
func (i *ConfirmationIssuer) Verify(token, subject string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	var claims confirmationClaims
	if _, err := parser.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return "", errConfirmationInvalid
	}
	if claims.Purpose != bulkClearPurpose || claims.Subject != subject {
		return "", errConfirmationInvalid
	}
	if !claims.VerifyExpiresAt(i.clock().UTC(), true) {
		return "", errConfirmationInvalid
	}
	return claims.ID, nil
}
