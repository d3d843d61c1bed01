package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/echo-chat/internal/app"
	"github.com/suPer8Hu/echo-chat/internal/auth"
	"github.com/suPer8Hu/echo-chat/internal/chat"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/config"
	"github.com/suPer8Hu/echo-chat/internal/httpapi"
	"github.com/suPer8Hu/echo-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/echo-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/echo-chat/internal/logger"
	"github.com/suPer8Hu/echo-chat/internal/share"
	"github.com/suPer8Hu/echo-chat/internal/store/memstore"
	"github.com/suPer8Hu/echo-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/echo-chat/internal/store/redisstore"
	"github.com/suPer8Hu/echo-chat/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	common.ExposeErrors(cfg.IsDevelopment())
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := app.OpenStores(ctx, cfg, log)
	defer stores.Close()

	chatSvc, providerName := app.NewChatService(cfg, stores.Chat, log)

	// title jobs go to the broker when one is reachable, else run in-process
	var (
		titles    *chat.TitleQueue
		published bool
	)
	switch {
	case app.BrokerTitles(cfg, stores.Kind):
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, generating titles in-process")
		} else {
			defer pub.Close()
			chatSvc.SetTitleDispatcher(pub)
			published = true
			log.Info().Str("queue", cfg.RabbitQueue).Msg("title jobs published to rabbitmq")
		}
	case cfg.RabbitURL != "":
		log.Warn().Str("storage", stores.Kind).Msg("workers cannot reach in-memory conversations, generating titles in-process")
	}
	if !published {
		titles = chat.NewTitleQueue(chatSvc, cfg.TitleWorkers, cfg.TitleQueueSize, cfg.TitleTimeout, log)
		chatSvc.SetTitleDispatcher(titles)
	}

	shareSvc := share.NewService(stores.Shares, log)
	sweeper := share.NewExpirySweeper(shareSvc, cfg.ShareExpirySweep, log)
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			log.Error().Err(err).Msg("share expiry sweeper stopped")
		}
	}()

	users := user.NewService(stores.Users)

	var (
		limiter     middleware.Limiter = memstore.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		revocations auth.Revocations   = memstore.NewRevocations()
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, rate limits and revocations are per-process")
		} else {
			defer rdb.Close()
			limiter = redisstore.NewRateLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
			revocations = redisstore.NewRevocations(rdb)
		}
	}

	var (
		authn  auth.Authenticator
		issuer handlers.TokenIssuer
	)
	switch cfg.AuthMode {
	case "oidc":
		oidc, err := auth.NewOIDCAuthenticator(ctx, cfg.OIDCJWKSURL, cfg.OIDCIssuer, cfg.OIDCAudience, users, log)
		if err != nil {
			log.Fatal().Err(err).Msg("oidc setup failed")
		}
		defer oidc.Close()
		authn = oidc
	default:
		if cfg.JWTSecret == "" {
			log.Warn().Msg("JWT_SECRET not set, every login and protected request will be rejected")
		}
		jwtAuth := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTTTL)
		authn, issuer = jwtAuth, jwtAuth
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handler: &handlers.Handler{
			Chat:        chatSvc,
			Shares:      shareSvc,
			Users:       users,
			Issuer:      issuer,
			Revocations: revocations,
			FrontendURL: cfg.FrontendURL,
			Info: handlers.Info{
				Storage:  stores.Kind,
				Provider: providerName,
				Model:    cfg.AIModel,
				AuthMode: cfg.AuthMode,
			},
			Log: log,
		},
		Authenticator: authn,
		Revocations:   revocations,
		Limiter:       limiter,
		CORSOrigins:   cfg.CORSAllowedOrigins,
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("storage", stores.Kind).
			Str("provider", providerName).
			Str("auth", cfg.AuthMode).
			Msg("echo server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if titles != nil {
		titles.Close()
	}
}
