package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	ConfigDir string

	StoreBackend     string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	RedisURL         string

	Notifier        string
	TelegramToken   string
	TelegramChatIDs []string
	TelegramAPIURL  string

	FetchBackend   string
	BaseURL        string
	ChromeBin      string
	MaxPages       int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RateLimitMs    int
	RequestTimeout time.Duration

	ShutdownGrace            time.Duration
	ErrorEscalationThreshold int

	MetricsPort string
	LogLevel    string
	LogFile     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		ConfigDir: getEnv("CONFIG_DIR", "config"),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "autosearch"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "autosearch"),
		PostgresDB:       getEnv("POSTGRES_DB", "autosearch"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Notifier:        strings.ToLower(getEnv("NOTIFIER", "telegram")),
		TelegramToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs: getEnvList("TELEGRAM_CHAT_ID"),
		TelegramAPIURL:  getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),

		FetchBackend:   strings.ToLower(getEnv("FETCH_BACKEND", "http")),
		BaseURL:        getEnv("BASE_URL", "https://www.autoscout24.de"),
		ChromeBin:      getEnv("CHROME_BIN", ""),
		MaxPages:       getEnvInt("MAX_PAGES", 20),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 2*time.Second),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1500),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		ShutdownGrace:            getEnvDuration("SHUTDOWN_GRACE", 30*time.Second),
		ErrorEscalationThreshold: getEnvInt("ERROR_ESCALATION_THRESHOLD", 3),

		MetricsPort: getEnv("METRICS_PORT", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
