package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ServerAddr  string
	LogLevel    string

	DatabaseURL string

	// JWTKeys holds every signing key in the ring; the first entry signs,
	// the rest are verifier candidates kept alive during key rotation.
	JWTKeys     [][]byte
	JWTIssuer   string
	JWTAudience string

	AccessTokenTTL     time.Duration
	RefreshSlidingTTL  time.Duration
	RefreshMaxLifetime time.Duration
	MagicLinkTTL       time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration
	RateLimitDryRun bool

	TokenVersionCacheTTL time.Duration

	CSRFEnabled         bool
	SessionsAPIEnabled  bool
	RefreshBodyFallback bool
	ForceSecureCookies  bool

	KafkaBrokers []string
	KafkaTopic   string
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "tenantauth"),
		ServerAddr:  EnvDefault("SERVER_ADDR", ":8080"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTKeys:     Keys(os.Getenv("JWT_KEYS")),
		JWTIssuer:   EnvDefault("JWT_ISSUER", "tenantauth"),
		JWTAudience: EnvDefault("JWT_AUDIENCE", "tenantauth"),

		AccessTokenTTL:     EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshSlidingTTL:  EnvDurationDefault("REFRESH_SLIDING_TTL", 30*24*time.Hour),
		RefreshMaxLifetime: EnvDurationDefault("REFRESH_MAX_LIFETIME", 90*24*time.Hour),
		MagicLinkTTL:       EnvDurationDefault("MAGIC_LINK_TTL", 15*time.Minute),

		RateLimitMax:    EnvIntDefault("REFRESH_RATE_LIMIT_MAX", 20),
		RateLimitWindow: EnvDurationDefault("REFRESH_RATE_LIMIT_WINDOW", time.Minute),
		RateLimitDryRun: EnvBool("REFRESH_RATE_LIMIT_DRY_RUN"),

		TokenVersionCacheTTL: EnvDurationDefault("TOKEN_VERSION_CACHE_TTL", 30*time.Second),

		CSRFEnabled:         EnvBoolDefault("CSRF_ENABLED", true),
		SessionsAPIEnabled:  EnvBoolDefault("SESSIONS_API_ENABLED", true),
		RefreshBodyFallback: EnvBool("REFRESH_BODY_FALLBACK"),
		ForceSecureCookies:  EnvBool("FORCE_SECURE_COOKIES"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "auth_events"),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Keys(v string) [][]byte {
	parts := CSV(v)
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, []byte(p))
	}
	return out
}

func EnvDefault(key, def string) string {
	if os.Getenv(key) != "" {
		return os.Getenv(key)
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func EnvBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func EnvBoolDefault(key string, def bool) bool {
	if os.Getenv(key) == "" {
		return def
	}
	return EnvBool(key)
}
