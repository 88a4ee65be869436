package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends
const (
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

// httpWriteSlack is how long a POST /api/v1/cycles response may take to
// write once the cycle itself has finished or timed out.
const httpWriteSlack = 30 * time.Second

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL       string
	DBMaxOpenConns    int
	TelegramToken     string // empty disables Telegram delivery and bot commands
	MaintenanceChatID int64  // chat that receives maintenance reminders
	AdminTelegramID   int64
	LogLevel          string
	Environment       string

	CronSpecCycle string // when the maintenance cycle runs
	HTTPAddr      string
	CORSOrigins   []string

	CycleWorkers       int
	CycleTimeout       time.Duration // bounds a whole cycle, scheduled or manual
	FetchTimeout       time.Duration
	DispatchTimeout    time.Duration
	DispatchRatePerSec float64

	LedgerBackend    string
	UpcomingCooldown time.Duration
	OverdueCooldown  time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a lookup function.
func FromEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	if cfg.DBMaxOpenConns, err = intOr(getenv, "DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns <= 0 {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", cfg.DBMaxOpenConns)
	}

	cfg.TelegramToken = getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		chatIDStr := getenv("MAINTENANCE_CHAT_ID")
		if chatIDStr == "" {
			return nil, fmt.Errorf("MAINTENANCE_CHAT_ID is required when TELEGRAM_TOKEN is set")
		}
		cfg.MaintenanceChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAINTENANCE_CHAT_ID: %w", err)
		}
	}

	if adminIDStr := getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecCycle = getenv("CRON_SPEC_CYCLE")
	if cfg.CronSpecCycle == "" {
		cfg.CronSpecCycle = "0 9 * * *" // Default: 9 AM daily
	}

	cfg.HTTPAddr = getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.CORSOrigins = splitList(getenv("CORS_ALLOW_ORIGINS"))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	if cfg.CycleWorkers, err = intOr(getenv, "CYCLE_WORKERS", 8); err != nil {
		return nil, err
	}
	if cfg.CycleWorkers <= 0 {
		return nil, fmt.Errorf("CYCLE_WORKERS must be positive, got %d", cfg.CycleWorkers)
	}
	if cfg.FetchTimeout, err = durationOr(getenv, "FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.DispatchTimeout, err = durationOr(getenv, "DISPATCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = durationOr(getenv, "CYCLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout <= cfg.FetchTimeout {
		return nil, fmt.Errorf("CYCLE_TIMEOUT (%s) must exceed FETCH_TIMEOUT (%s)", cfg.CycleTimeout, cfg.FetchTimeout)
	}

	cfg.DispatchRatePerSec = 20 // Telegram allows ~30 messages per second per bot
	if v := getenv("DISPATCH_RATE_PER_SEC"); v != "" {
		cfg.DispatchRatePerSec, err = strconv.ParseFloat(v, 64)
		if err != nil || cfg.DispatchRatePerSec <= 0 {
			return nil, fmt.Errorf("invalid DISPATCH_RATE_PER_SEC: %q", v)
		}
	}

	cfg.LedgerBackend = strings.ToLower(getenv("LEDGER_BACKEND"))
	switch cfg.LedgerBackend {
	case "":
		cfg.LedgerBackend = LedgerBackendPostgres
	case LedgerBackendPostgres, LedgerBackendMemory:
	default:
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q (want postgres or memory)", cfg.LedgerBackend)
	}

	if cfg.UpcomingCooldown, err = durationOr(getenv, "UPCOMING_COOLDOWN", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OverdueCooldown, err = durationOr(getenv, "OVERDUE_COOLDOWN", 3*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HTTPWriteTimeout lets a manual cycle triggered over HTTP run to its own
// timeout and still deliver its report.
func (c *AppConfig) HTTPWriteTimeout() time.Duration {
	return c.CycleTimeout + httpWriteSlack
}

func intOr(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationOr(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func splitList(v string) []string {
	var result []string
	for _, p := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
