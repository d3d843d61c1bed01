package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/echo-chat/internal/auth"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/echo-chat/internal/httpapi/middleware"
)

type Deps struct {
	Handler       *handlers.Handler
	Authenticator auth.Authenticator
	Revocations   auth.Revocations
	Limiter       middleware.Limiter
	CORSOrigins   []string
	Log           zerolog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Metrics())
	corsCfg := cors.Config{
		AllowOrigins:     d.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(d.CORSOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "Route "+c.Request.Method+" "+c.Request.URL.Path+" not found", nil)
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	h := d.Handler
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/health", h.Health)
	api.GET("/personas", h.ListPersonas)
	api.POST("/auth/login", h.Login)
	api.GET("/share/:slug", h.GetShare)

	authed := api.Group("/")
	authed.Use(middleware.Auth(d.Authenticator, d.Revocations, d.Log))

	limit := func(hf gin.HandlerFunc) []gin.HandlerFunc {
		if d.Limiter == nil {
			return []gin.HandlerFunc{hf}
		}
		return []gin.HandlerFunc{middleware.RateLimit(d.Limiter, d.Log), hf}
	}

	authed.GET("/auth/verify", h.Verify)
	authed.POST("/auth/logout", h.Logout)

	// chat
	authed.POST("/chat", limit(h.SendMessage)...)
	authed.POST("/chat/stream", limit(h.SendMessageStream)...)
	authed.POST("/generate-title", h.GenerateTitle)
	authed.GET("/history/:userId", h.History)
	authed.GET("/conversation/:id", h.GetConversation)
	authed.PATCH("/conversation/:id", h.RenameConversation)
	authed.DELETE("/conversation/:id", h.DeleteConversation)

	// share
	authed.POST("/share", limit(h.CreateShare)...)
	authed.DELETE("/share/:slug", h.DeleteShare)
	authed.GET("/share/user/:userId", h.ListUserShares)
	return r
}
