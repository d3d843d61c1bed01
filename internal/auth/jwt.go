package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/suPer8Hu/echo-chat/internal/common"
)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuthenticator issues and verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTAuthenticator(secret string, ttl time.Duration) *JWTAuthenticator {
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	return &JWTAuthenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign issues a token for userID. An empty secret refuses to sign.
func (a *JWTAuthenticator) Sign(userID, email string) (string, *Principal, error) {
	if len(a.secret) == 0 {
		return "", nil, fmt.Errorf("jwt secret not configured: %w", common.ErrUnauthorized)
	}
	now := a.now()
	p := &Principal{
		UserID:    userID,
		Email:     email,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(a.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        p.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, p, nil
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, raw string) (*Principal, error) {
	if len(a.secret) == 0 {
		return nil, fmt.Errorf("jwt secret not configured: %w", common.ErrUnauthorized)
	}
	if raw == "" {
		return nil, fmt.Errorf("missing token: %w", common.ErrUnauthorized)
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, common.ErrUnauthorized)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("token has no subject: %w", common.ErrUnauthorized)
	}
	return &Principal{
		UserID:    c.Subject,
		Email:     c.Email,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
