package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/suPer8Hu/echo-chat/internal/app"
	"github.com/suPer8Hu/echo-chat/internal/config"
	"github.com/suPer8Hu/echo-chat/internal/logger"
	"github.com/suPer8Hu/echo-chat/internal/store/rabbitmq"
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
	log = log.With().Str("component", "title-worker").Logger()

	if cfg.RabbitURL == "" {
		log.Fatal().Msg("RABBIT_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// titles must land in the same database the server reads
	stores := app.OpenStores(ctx, cfg, log)
	defer stores.Close()
	if stores.Kind != app.StorageGorm {
		log.Fatal().Msg("worker needs a reachable database")
	}

	svc, provider := app.NewChatService(cfg, stores.Chat, log)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, cfg.TitleTimeout, svc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer consumer.Close()

	log.Info().Str("provider", provider).Msg("worker ready")
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
}
