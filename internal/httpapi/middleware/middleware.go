package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/echo-chat/internal/auth"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/metrics"
)

const (
	RequestIDKey  = "request_id"
	PrincipalKey  = "principal"
	RequestHeader = "X-Request-Id"
)

// Recovery turns a panic into a 500 envelope instead of a dropped connection.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("request_id", c.GetString(RequestIDKey)).
					Str("path", c.Request.URL.Path).
					Interface("panic", rec).
					Msg("panic recovered")
				common.Fail(c, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestHeader, id)
		c.Next()
	}
}

func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}
		if p, ok := PrincipalFrom(c); ok {
			evt = evt.Str("user_id", p.UserID)
		}
		evt.Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := metrics.RouteLabel(c.FullPath())
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Auth requires a valid bearer token that has not been revoked. revoked
// may be nil.
func Auth(authn auth.Authenticator, revoked auth.Revocations, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := auth.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			metrics.AuthFailuresTotal.WithLabelValues("missing").Inc()
			common.Fail(c, http.StatusUnauthorized, "no token provided", nil)
			return
		}

		p, err := authn.Authenticate(c.Request.Context(), raw)
		if err != nil {
			metrics.AuthFailuresTotal.WithLabelValues("invalid").Inc()
			common.Fail(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		if revoked != nil && p.TokenID != "" {
			isRevoked, err := revoked.IsRevoked(c.Request.Context(), p.TokenID)
			if err != nil {
				// fail open on store errors
				log.Warn().Err(err).Str("request_id", c.GetString(RequestIDKey)).Msg("revocation check failed")
			} else if isRevoked {
				metrics.AuthFailuresTotal.WithLabelValues("revoked").Inc()
				common.Fail(c, http.StatusUnauthorized, "token has been revoked", nil)
				return
			}
		}

		c.Set(PrincipalKey, p)
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}

// Limiter decides whether a request keyed by caller may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimit keys on the authenticated user when present, otherwise the
// client IP. Limiter errors let the request through.
func RateLimit(l Limiter, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if p, ok := PrincipalFrom(c); ok {
			key = "user:" + p.UserID
		}

		allowed, retry, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			metrics.RateLimitedTotal.WithLabelValues(metrics.RouteLabel(c.FullPath())).Inc()
			secs := int(retry.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			common.FailErr(c, common.ErrRateLimited)
			return
		}
		c.Next()
	}
}
