// Package app assembles the pieces both binaries share: storage backends
// and the model provider registry.
package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/suPer8Hu/echo-chat/internal/ai"
	"github.com/suPer8Hu/echo-chat/internal/chat"
	"github.com/suPer8Hu/echo-chat/internal/config"
	"github.com/suPer8Hu/echo-chat/internal/db"
	"github.com/suPer8Hu/echo-chat/internal/share"
	"github.com/suPer8Hu/echo-chat/internal/user"
)

const (
	StorageGorm   = "gorm"
	StorageMemory = "memory"

	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3:latest"
)

type Stores struct {
	DB     *gorm.DB
	Kind   string
	Chat   chat.Store
	Shares share.Store
	Users  user.Store
}

func (s Stores) Close() {
	if s.DB != nil {
		_ = db.Close(s.DB)
	}
}

func memoryStores() Stores {
	return Stores{
		Kind:   StorageMemory,
		Chat:   chat.NewMemoryStore(),
		Shares: share.NewMemoryStore(),
		Users:  user.NewMemoryStore(),
	}
}

// OpenStores connects the durable backends, or falls back to in-memory
// stores when the database is not configured or unreachable.
func OpenStores(ctx context.Context, cfg config.Config, log zerolog.Logger) Stores {
	if strings.TrimSpace(cfg.DBDSN) == "" {
		log.Warn().Msg("DB_DSN not set, using in-memory storage")
		return memoryStores()
	}
	gdb, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN, cfg.DBConnectTimeout, log)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, using in-memory storage")
		return memoryStores()
	}
	if err := db.Migrate(gdb); err != nil {
		log.Error().Err(err).Msg("migration failed, using in-memory storage")
		_ = db.Close(gdb)
		return memoryStores()
	}
	return Stores{
		DB:     gdb,
		Kind:   StorageGorm,
		Chat:   chat.NewRepo(gdb),
		Shares: share.NewRepo(gdb),
		Users:  user.NewRepo(gdb),
	}
}

// BrokerTitles reports whether title jobs go to RabbitMQ. The worker renames
// conversations in the database, so memory storage keeps titles in-process.
func BrokerTitles(cfg config.Config, storage string) bool {
	return strings.TrimSpace(cfg.RabbitURL) != "" && storage == StorageGorm
}

// NewRegistry registers every provider the configuration can select.
func NewRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	openaiDefault := ai.NewOpenAIProvider(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout)
	reg.Register("openai", func(_ context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" || m == openaiDefault.ModelName() {
			return openaiDefault, nil
		}
		return ai.NewOpenAIProvider(cfg.AIBaseURL, cfg.AIAPIKey, m, cfg.AITimeout), nil
	})

	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		base := cfg.AIBaseURL
		if base == "" {
			base = defaultOllamaURL
		}
		m := strings.TrimSpace(model)
		if m == "" {
			m = defaultOllamaModel
		}
		return ai.NewOllamaProvider(base, m, cfg.AITimeout), nil
	})

	reg.Register("placeholder", func(context.Context, string) (ai.Provider, error) {
		return ai.PlaceholderProvider{}, nil
	})
	return reg
}

// ProviderName resolves AI_PROVIDER, dropping to the placeholder when the
// OpenAI-compatible provider has no key.
func ProviderName(cfg config.Config, log zerolog.Logger) string {
	name := strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	if name == "" {
		name = "openai"
	}
	if name == "openai" && strings.TrimSpace(cfg.AIAPIKey) == "" {
		log.Warn().Msg("AI_API_KEY not set, replies come from the placeholder provider")
		return "placeholder"
	}
	return name
}

// NewChatService builds the turn orchestrator from configuration.
func NewChatService(cfg config.Config, store chat.Store, log zerolog.Logger) (*chat.Service, string) {
	name := ProviderName(cfg, log)
	svc := chat.NewService(store, NewRegistry(cfg), chat.ServiceConfig{
		Provider:          name,
		Model:             cfg.AIModel,
		MaxTokens:         cfg.AIMaxTokens,
		ContextWindowSize: cfg.ChatContextWindowSize,
	}, log)
	return svc, name
}
