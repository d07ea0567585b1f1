package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"signalchart/internal/chart"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP
	ListenAddr  string
	MetricsAddr string

	// Infrastructure. An empty RedisAddr runs without Redis.
	RedisAddr     string
	RedisPassword string
	SQLitePath    string

	// Charts
	ChartOptionsPath string // YAML layout overrides, optional
	Charts           string // comma-separated id[:mode], e.g. "chart,sma:line"
	RingSize         int
	Retention        time.Duration // idle charts are destroyed after this; 0 disables
	RetentionCron    string        // with seconds field

	// Signal alerts. Enabled when Alerts is set or any backend is configured.
	Alerts           bool
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory, or the file named by ENV_FILE, is
// loaded first; variables already set to a non-empty value win.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	if n, err := loadEnvFile(envFile); err == nil {
		log.Printf("[config] loaded %d values from %s", n, envFile)
	} else if !os.IsNotExist(err) {
		log.Printf("[config] WARNING: %s: %v", envFile, err)
	}

	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/charts.db"),

		ChartOptionsPath: getEnv("CHART_OPTIONS", ""),
		Charts:           getEnv("CHARTS", chart.DefaultContainerID),
		RingSize:         getEnvInt("RING_SIZE", 1024),
		Retention:        getEnvDuration("CHART_RETENTION", 0),
		RetentionCron:    getEnv("RETENTION_CRON", "0 0 * * * *"),

		Alerts:           getEnv("ALERTS", "false") == "true",
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseCharts parses Charts into chart id → overlay mode. An entry without
// a mode maps to "".
func (c *Config) ParseCharts() map[string]string {
	out := make(map[string]string)
	for _, p := range strings.Split(c.Charts, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, mode, _ := strings.Cut(p, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			log.Printf("[config] skipping chart entry without id: %q", p)
			continue
		}
		out[id] = strings.TrimSpace(mode)
	}
	return out
}

// AlertsEnabled reports whether signal alerts should be raised.
func (c *Config) AlertsEnabled() bool {
	return c.Alerts || c.AlertWebhookURL != "" || (c.TelegramBotToken != "" && c.TelegramChatID != "")
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// loadEnvFile sets every variable of path that is unset or empty in the
// process environment, matching getEnv which treats empty as unset.
func loadEnvFile(path string) (int, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for k, v := range vars {
		if os.Getenv(k) != "" {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
