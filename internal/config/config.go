package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"5000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// DSN demo (mysql):
	// app:apppass@tcp(127.0.0.1:3306)/echo?charset=utf8mb4&parseTime=true&loc=Local
	DBDriver         string        `env:"DB_DRIVER" envDefault:"mysql"`
	DBDSN            string        `env:"DB_DSN"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`

	// auth
	AuthMode     string        `env:"AUTH_MODE" envDefault:"jwt"`
	JWTSecret    string        `env:"JWT_SECRET"`
	JWTTTL       time.Duration `env:"JWT_TTL" envDefault:"720h"`
	OIDCJWKSURL  string        `env:"OIDC_JWKS_URL"`
	OIDCIssuer   string        `env:"OIDC_ISSUER"`
	OIDCAudience string        `env:"OIDC_AUDIENCE"`

	// AI provider
	AIProvider   string        `env:"AI_PROVIDER" envDefault:"openai"`
	AIAPIKey     string        `env:"AI_API_KEY"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	AIBaseURL    string        `env:"AI_BASE_URL"`
	AIModel      string        `env:"AI_MODEL"`
	AIMaxTokens  int           `env:"AI_MAX_TOKENS" envDefault:"1000"`
	AITimeout    time.Duration `env:"AI_TIMEOUT" envDefault:"60s"`

	// 0 sends the whole conversation
	ChatContextWindowSize int `env:"CHAT_CONTEXT_WINDOW_SIZE" envDefault:"0"`

	TitleWorkers   int           `env:"TITLE_WORKERS" envDefault:"2"`
	TitleQueueSize int           `env:"TITLE_QUEUE_SIZE" envDefault:"64"`
	TitleTimeout   time.Duration `env:"TITLE_TIMEOUT" envDefault:"30s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// rabbitMQ
	RabbitURL         string `env:"RABBIT_URL"`
	RabbitQueue       string `env:"RABBIT_QUEUE" envDefault:"echo_title_jobs"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"2"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`
	RateLimitMax       int           `env:"RATE_LIMIT_MAX" envDefault:"20"`
	RateLimitWindow    time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	FrontendURL      string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	ShareExpirySweep string `env:"SHARE_EXPIRY_SWEEP" envDefault:"0 * * * *"`
}

// Load reads .env (outside production) and parses the environment.
func Load() (Config, error) {
	if !strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.AIAPIKey == "" {
		cfg.AIAPIKey = cfg.OpenAIAPIKey
	}
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.AuthMode {
	case "jwt", "oidc":
	default:
		return fmt.Errorf("unsupported AUTH_MODE=%q", c.AuthMode)
	}
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER=%q", c.DBDriver)
	}
	switch c.AIProvider {
	case "", "openai", "ollama", "placeholder":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER=%q", c.AIProvider)
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.AIMaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be positive")
	}
	if c.ChatContextWindowSize < 0 {
		return fmt.Errorf("CHAT_CONTEXT_WINDOW_SIZE must not be negative")
	}
	return nil
}

func (c Config) IsDevelopment() bool { return strings.EqualFold(c.AppEnv, "development") }
