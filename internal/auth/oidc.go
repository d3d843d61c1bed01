package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/user"
)

// ExternalUsers resolves identity provider subjects to local users.
type ExternalUsers interface {
	EnsureExternal(ctx context.Context, id user.Identity) (*user.User, error)
}

type oidcClaims struct {
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// OIDCAuthenticator verifies ID tokens against the provider's JWKS.
type OIDCAuthenticator struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
	users    ExternalUsers
}

func NewOIDCAuthenticator(ctx context.Context, jwksURL, issuer, audience string, users ExternalUsers, log zerolog.Logger) (*OIDCAuthenticator, error) {
	if strings.TrimSpace(jwksURL) == "" {
		return nil, fmt.Errorf("OIDC_JWKS_URL is required for AUTH_MODE=oidc")
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	return &OIDCAuthenticator{
		jwks:     jwks,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		users:    users,
	}, nil
}

func (a *OIDCAuthenticator) Close() { a.jwks.EndBackground() }

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing token: %w", common.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	var c oidcClaims
	if _, err := jwt.ParseWithClaims(raw, &c, a.jwks.Keyfunc, opts...); err != nil {
		return nil, fmt.Errorf("invalid id token: %v: %w", err, common.ErrUnauthorized)
	}

	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	u, err := a.users.EnsureExternal(ctx, user.Identity{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Name:          name,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve subject: %v: %w", err, common.ErrUnauthorized)
	}
	return &Principal{
		UserID:    u.ID,
		Email:     u.Email,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
