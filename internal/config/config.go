package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DurableSQLite   = "sqlite"
	DurablePostgres = "postgres"
	DurableNone     = "none"
)

type Config struct {
	APIURL                string
	WSPath                string
	WSHeartbeat           time.Duration
	MaxReconnectAttempts  int
	ReconnectDelay        time.Duration
	DurableDriver         string
	DurableSQLitePath     string
	DatabaseURL           string
	DBMaxConns            int32
	DBMinConns            int32
	StorageOpTimeout      time.Duration
	APITimeout            time.Duration
	APIRateLimitRPS       float64
	LogLevel              slog.Level
	MetricsAddr           string
	ServerPort            string
	ServerReadTimeout     time.Duration
	ServerWriteTimeout    time.Duration
	ServerIdleTimeout     time.Duration
	RequestTimeout        time.Duration
	JWTSecret             string
	JWTAccessTTL          time.Duration
	CORSOrigins           []string
	RateLimitRPM          int
	AuthRateLimitRPM      int
	BrokerHeartbeat       time.Duration
	RequireEmailVerifying bool
	AvatarDir             string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:                strings.TrimRight(getEnv("API_URL", "http://localhost:8080/api"), "/"),
		WSPath:                getEnv("WS_PATH", "/ws"),
		WSHeartbeat:           getDuration("WS_HEARTBEAT", 10*time.Second),
		MaxReconnectAttempts:  getInt("REALTIME_MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:        getDuration("REALTIME_RECONNECT_DELAY", 5*time.Second),
		DurableDriver:         strings.ToLower(getEnv("DURABLE_DRIVER", DurableSQLite)),
		DurableSQLitePath:     getEnv("DURABLE_SQLITE_PATH", "./state/client.db"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:            int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:            int32(getInt("DB_MIN_CONNS", 0)),
		StorageOpTimeout:      getDuration("STORAGE_OP_TIMEOUT", 2*time.Second),
		APITimeout:            getDuration("API_TIMEOUT", 15*time.Second),
		APIRateLimitRPS:       getFloat("API_RATE_LIMIT_RPS", 10),
		LogLevel:              getLevel("LOG_LEVEL", slog.LevelInfo),
		MetricsAddr:           strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:     getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:        getDuration("REQUEST_TIMEOUT", 30*time.Second),
		JWTSecret:             strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:          getDuration("JWT_ACCESS_TTL", 24*time.Hour),
		CORSOrigins:           splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:          getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:      getInt("AUTH_RATE_LIMIT_RPM", 20),
		BrokerHeartbeat:       getDuration("BROKER_HEARTBEAT", 30*time.Second),
		RequireEmailVerifying: getBool("REQUIRE_EMAIL_VERIFICATION", true),
		AvatarDir:             getEnv("AVATAR_DIR", "./state/avatars"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_URL must be an absolute http(s) URL")
	}

	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("WS_PATH must start with /")
	}

	if c.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("REALTIME_MAX_RECONNECT_ATTEMPTS must be positive")
	}

	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("REALTIME_RECONNECT_DELAY must be positive")
	}

	switch c.DurableDriver {
	case DurableSQLite:
		if strings.TrimSpace(c.DurableSQLitePath) == "" {
			return fmt.Errorf("DURABLE_SQLITE_PATH cannot be empty")
		}
	case DurablePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DURABLE_DRIVER=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MAX_CONNS/DB_MIN_CONNS are out of range")
		}
	case DurableNone:
	default:
		return fmt.Errorf("DURABLE_DRIVER must be one of sqlite, postgres, none")
	}

	if c.StorageOpTimeout <= 0 {
		return fmt.Errorf("STORAGE_OP_TIMEOUT must be positive")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}

	return nil
}

// ValidateServer checks the extra settings of the development backend.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}

	if c.AvatarDir == "" {
		return fmt.Errorf("AVATAR_DIR cannot be empty")
	}

	return nil
}

// WebSocketURL derives the broker endpoint from API_URL: same host, ws(s)
// scheme, WS_PATH as the path.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return ""
	}

	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.WSPath
	u.RawQuery = ""

	return u.String()
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getLevel(key string, fallback slog.Level) slog.Level {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return fallback
	}

	return level
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
