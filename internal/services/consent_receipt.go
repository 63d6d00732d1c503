package services

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const receiptIssuer = "survey-consent"

// ReceiptClaims prove that a consent form was completed. They carry no
// participant identity so consent cannot be joined back to a submission.
type ReceiptClaims struct {
	Minor bool `json:"minor"`
	jwt.RegisteredClaims
}

// ReceiptIssuer signs and checks HS256 consent receipts.
type ReceiptIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewReceiptIssuer(secret string, ttl time.Duration) (*ReceiptIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("receipt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReceiptIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *ReceiptIssuer) Issue(minor bool) (string, error) {
	now := r.now()
	claims := ReceiptClaims{
		Minor: minor,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    receiptIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *ReceiptIssuer) Verify(token string) (*ReceiptClaims, error) {
	t, err := jwt.ParseWithClaims(token, &ReceiptClaims{}, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(receiptIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*ReceiptClaims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid receipt")
}
