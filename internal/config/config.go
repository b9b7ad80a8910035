package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Tracker  TrackerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Sheets   SheetsConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	BaseURL        string
	APIBaseURL     string
	RequestTimeout time.Duration
	MinPrice       float64
	MaxPrice       float64
	PriceDivisor   float64
	SeedFile       string
	// RequestsPerSecond is the per-host fetch budget; 0 disables limiting.
	RequestsPerSecond float64
	RateLimitMin      time.Duration
	RateLimitMax      time.Duration
}

type BrowserConfig struct {
	Enabled  bool
	Headless bool
	Timeout  time.Duration
	Locale   string
	Timezone string
}

type TrackerConfig struct {
	ProductURLs   []string
	CheckInterval time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

type KafkaConfig struct {
	Bootstrap string
	Topic     string
}

type SheetsConfig struct {
	SpreadsheetID   string
	CredentialsFile string
	SheetName       string
}

type StorageConfig struct {
	PebbleDir string
	CSVPath   string
}

type QueueConfig struct {
	BatchSize  int
	MaxRetries int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("PORT", 8084),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			BaseURL:           getEnvOrDefault("SHOPEE_BASE_URL", "https://shopee.ph"),
			APIBaseURL:        getEnvOrDefault("SHOPEE_API_BASE_URL", ""),
			RequestTimeout:    getDurationOrDefault("SCRAPER_REQUEST_TIMEOUT", 10*time.Second),
			MinPrice:          getFloatOrDefault("SCRAPER_MIN_PRICE", 10),
			MaxPrice:          getFloatOrDefault("SCRAPER_MAX_PRICE", 1_000_000),
			PriceDivisor:      getFloatOrDefault("SCRAPER_PRICE_DIVISOR", 100_000),
			SeedFile:          getEnvOrDefault("SCRAPER_SEED_FILE", ""),
			RequestsPerSecond: getFloatOrDefault("SCRAPER_REQUESTS_PER_SECOND", 1),
			RateLimitMin:      getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:      getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 5*time.Second),
		},
		Browser: BrowserConfig{
			Enabled:  getBoolOrDefault("BROWSER_ENABLED", false),
			Headless: getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:  getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			Locale:   getEnvOrDefault("BROWSER_LOCALE", "en-PH"),
			Timezone: getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Manila"),
		},
		Tracker: TrackerConfig{
			ProductURLs:   getStringSliceOrDefault("SHOPEE_PRODUCT_URLS", nil),
			CheckInterval: getSecondsOrDefault("CHECK_INTERVAL", 3600*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "price_tracker"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:price_records"),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Kafka: KafkaConfig{
			Bootstrap: getEnvOrDefault("KAFKA_BOOTSTRAP", ""),
			Topic:     getEnvOrDefault("KAFKA_TOPIC", "price-records"),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:   getEnvOrDefault("GOOGLE_SHEETS_ID", ""),
			CredentialsFile: getEnvOrDefault("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			SheetName:       getEnvOrDefault("GOOGLE_SHEET_NAME", "Price Tracker"),
		},
		Storage: StorageConfig{
			PebbleDir: getEnvOrDefault("PEBBLE_DIR", "data/journal"),
			CSVPath:   getEnvOrDefault("CSV_PATH", ""),
		},
		Queue: QueueConfig{
			BatchSize:  getIntOrDefault("QUEUE_BATCH_SIZE", 10),
			MaxRetries: getIntOrDefault("QUEUE_MAX_RETRIES", 2),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if cfg.Scraper.APIBaseURL == "" {
		cfg.Scraper.APIBaseURL = cfg.Scraper.BaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if !strings.HasPrefix(c.Scraper.BaseURL, "http://") && !strings.HasPrefix(c.Scraper.BaseURL, "https://") {
		return fmt.Errorf("SHOPEE_BASE_URL must be an http(s) URL")
	}

	if c.Scraper.MinPrice < 0 || c.Scraper.MinPrice >= c.Scraper.MaxPrice {
		return fmt.Errorf("SCRAPER_MIN_PRICE must be non-negative and below SCRAPER_MAX_PRICE")
	}

	if c.Scraper.PriceDivisor <= 0 {
		return fmt.Errorf("SCRAPER_PRICE_DIVISOR must be positive")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Tracker.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive")
	}

	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Kafka.Bootstrap != "" && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BOOTSTRAP is set")
	}

	if c.Queue.BatchSize < 1 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

// SheetsEnabled reports whether rows should also go to Google Sheets.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.SpreadsheetID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getSecondsOrDefault accepts a bare number of seconds or a Go duration.
func getSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
