package auth

import (
	"context"
	"strings"
	"time"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

// Authenticator turns a raw bearer token into a Principal. Any failure is
// reported as common.ErrUnauthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*Principal, error)
}

// Revocations remembers logged-out token ids until they would expire anyway.
type Revocations interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
