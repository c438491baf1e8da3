package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	Host        string
	Port        string
	LogLevel    string

	StackAuthProjectID      string
	StackAuthSecretKey      string
	StackAuthPublishableKey string
	StackAuthBaseURL        string
	IdentityTimeout         time.Duration

	FalKey          string
	FalQueueURL     string
	ProviderTimeout time.Duration

	AllowedOrigins []string

	JwtSecret         string
	JwtAlgorithm      string
	AccessTokenExpire time.Duration

	// Optional: prompt enhancement is disabled when no key is set.
	GeminiAPIKey string
	GeminiModel  string

	// Optional: identity caching is disabled when no URL is set.
	RedisURL         string
	IdentityCacheTTL time.Duration

	ReconcileInterval    time.Duration
	ReconcileBatchSize   int
	ReconcileWorkers     int
	PostSubmitCheckDelay time.Duration
}

var defaultOrigins = []string{"http://localhost:3000", "http://localhost:3001"}

// LoadConfig reads a .env file when one exists and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("LoadConfig: no .env file loaded: %v", err)
	}

	cfg := &Config{
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		Host:                    getEnv("HOST", "127.0.0.1"),
		Port:                    getEnv("PORT", "8080"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		StackAuthProjectID:      os.Getenv("STACK_AUTH_PROJECT_ID"),
		StackAuthSecretKey:      os.Getenv("STACK_AUTH_SECRET_KEY"),
		StackAuthPublishableKey: os.Getenv("STACK_AUTH_PUBLISHABLE_KEY"),
		StackAuthBaseURL:        strings.TrimRight(getEnv("STACK_AUTH_BASE_URL", "https://api.stack-auth.com"), "/"),
		FalKey:                  os.Getenv("FAL_KEY"),
		FalQueueURL:             strings.TrimRight(getEnv("FAL_QUEUE_URL", "https://queue.fal.run"), "/"),
		AllowedOrigins:          splitList(os.Getenv("ALLOWED_ORIGINS"), defaultOrigins),
		JwtSecret:               os.Getenv("JWT_SECRET_KEY"),
		JwtAlgorithm:            strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
		GeminiAPIKey:            os.Getenv("GEMINI_API_KEY"),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		RedisURL:                os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.ProviderTimeout, err = getDuration("PROVIDER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdentityTimeout, err = getDuration("IDENTITY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdentityCacheTTL, err = getDuration("IDENTITY_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.PostSubmitCheckDelay, err = getDuration("POST_SUBMIT_CHECK_DELAY", 0); err != nil {
		return nil, err
	}

	expireMinutes, err := getInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.AccessTokenExpire = time.Duration(expireMinutes) * time.Minute

	if cfg.ReconcileBatchSize, err = getInt("RECONCILE_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.ReconcileWorkers, err = getInt("RECONCILE_WORKERS", 4); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.StackAuthProjectID == "" {
		return fmt.Errorf("STACK_AUTH_PROJECT_ID is not set")
	}
	if c.FalKey == "" {
		return fmt.Errorf("FAL_KEY is not set")
	}
	if c.JwtSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is not set. This is critical for authentication")
	}
	switch c.JwtAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("JWT_ALGORITHM %q is not supported", c.JwtAlgorithm)
	}
	if c.AccessTokenExpire <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.ReconcileBatchSize <= 0 || c.ReconcileWorkers <= 0 {
		return fmt.Errorf("RECONCILE_BATCH_SIZE and RECONCILE_WORKERS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", key)
	}
	return d, nil
}

func splitList(raw string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
