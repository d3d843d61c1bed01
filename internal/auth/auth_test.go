package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/user"
)

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer   abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
	assert.Equal(t, "", BearerToken(""))
}

func TestJWT_RoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("s3cret", time.Hour)

	raw, issued, err := a.Sign("user-1", "u@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, issued.TokenID)

	p, err := a.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "u@example.com", p.Email)
	assert.Equal(t, issued.TokenID, p.TokenID)
	assert.WithinDuration(t, issued.ExpiresAt, p.ExpiresAt, time.Second)
}

func TestJWT_Rejects(t *testing.T) {
	ctx := context.Background()
	a := NewJWTAuthenticator("s3cret", time.Hour)

	expired := NewJWTAuthenticator("s3cret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Sign("user-1", "u@example.com")
	require.NoError(t, err)

	other, _, err := NewJWTAuthenticator("other", time.Hour).Sign("user-1", "u@example.com")
	require.NoError(t, err)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	wrongAlg, err := hs512.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"expired":      old,
		"wrong secret": other,
		"wrong alg":    wrongAlg,
		"garbage":      "not.a.token",
		"empty":        "",
	} {
		_, err := a.Authenticate(ctx, raw)
		assert.True(t, errors.Is(err, common.ErrUnauthorized), name)
	}
}

func TestJWT_EmptySecretFailsClosed(t *testing.T) {
	a := NewJWTAuthenticator("", time.Hour)

	_, _, err := a.Sign("user-1", "u@example.com")
	assert.True(t, errors.Is(err, common.ErrUnauthorized))

	unsigned := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := unsigned.SignedString([]byte(""))
	if err == nil {
		_, err = a.Authenticate(context.Background(), raw)
		assert.True(t, errors.Is(err, common.ErrUnauthorized))
	}
}

func jwksServer(t *testing.T, key *rsa.PublicKey, kid string) *httptest.Server {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signID(t *testing.T, key *rsa.PrivateKey, kid string, c oidcClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestOIDC_ProvisionsAndRejects(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := jwksServer(t, &key.PublicKey, "k1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users := user.NewService(user.NewMemoryStore())
	a, err := NewOIDCAuthenticator(ctx, srv.URL, "https://idp.example.com", "echo", users, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	valid := oidcClaims{
		Email: "kc@example.com",
		Name:  "Kay",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-1",
			Issuer:    "https://idp.example.com",
			Audience:  jwt.ClaimStrings{"echo"},
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	p, err := a.Authenticate(ctx, signID(t, key, "k1", valid))
	require.NoError(t, err)
	assert.Equal(t, "kc@example.com", p.Email)
	assert.Equal(t, "jti-1", p.TokenID)
	assert.Len(t, p.UserID, 26)

	again, err := a.Authenticate(ctx, signID(t, key, "k1", valid))
	require.NoError(t, err)
	assert.Equal(t, p.UserID, again.UserID)

	wrongIss := valid
	wrongIss.Issuer = "https://evil.example.com"
	_, err = a.Authenticate(ctx, signID(t, key, "k1", wrongIss))
	assert.True(t, errors.Is(err, common.ErrUnauthorized))

	wrongAud := valid
	wrongAud.Audience = jwt.ClaimStrings{"other"}
	_, err = a.Authenticate(ctx, signID(t, key, "k1", wrongAud))
	assert.True(t, errors.Is(err, common.ErrUnauthorized))

	local, err := users.Login(ctx, user.LoginInput{Name: "Lou", Email: "lou@example.com"})
	require.NoError(t, err)
	takeover := valid
	takeover.Subject = "sub-2"
	takeover.Email = "lou@example.com"
	_, err = a.Authenticate(ctx, signID(t, key, "k1", takeover))
	assert.True(t, errors.Is(err, common.ErrUnauthorized))

	takeover.EmailVerified = true
	linked, err := a.Authenticate(ctx, signID(t, key, "k1", takeover))
	require.NoError(t, err)
	assert.Equal(t, local.ID, linked.UserID)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, valid)
	forged, err := hs.SignedString([]byte("guess"))
	require.NoError(t, err)
	_, err = a.Authenticate(ctx, forged)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}
