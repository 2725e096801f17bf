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
	// Tracking database
	DatabaseURL string

	// Store database (WooCommerce schema, read only)
	SourceDatabaseURL string
	SourceTablePrefix string
	SourcePageSize    int

	// Google Merchant Center
	MerchantID         uint64
	ServiceAccountFile string
	ContentLanguage    string
	TargetCountry      string
	Currency           string
	StoreBaseURL       string
	PlaceholderImage   string

	// Local inventory
	StoreCode      string
	LocalStockFile string

	// Upload
	BatchSize         int
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	ItemMaxElapsed    time.Duration
	MaxInFlight       int
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	RunTimeout        time.Duration

	// Kafka, disabled when KafkaBrokers is empty
	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	// API Configuration
	APIPort     string
	APIHost     string
	CORSOrigins string

	// Environment
	Env       string
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	merchantID, err := getEnvAsUint("MERCHANT_ID", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "sqlite://catalogsync.db"),
		SourceDatabaseURL:  getEnv("SOURCE_DATABASE_URL", "mysql://root@tcp(localhost:3306)/wordpress"),
		SourceTablePrefix:  getEnv("SOURCE_TABLE_PREFIX", "wp_"),
		SourcePageSize:     getEnvAsInt("SOURCE_PAGE_SIZE", 500),
		MerchantID:         merchantID,
		ServiceAccountFile: getEnv("SERVICE_ACCOUNT_FILE_PATH", "service-account.json"),
		ContentLanguage:    getEnv("CONTENT_LANGUAGE", "es"),
		TargetCountry:      getEnv("TARGET_COUNTRY", "MX"),
		Currency:           getEnv("CURRENCY", "MXN"),
		StoreBaseURL:       strings.TrimRight(getEnv("STORE_BASE_URL", "http://localhost"), "/"),
		PlaceholderImage:   getEnv("PLACEHOLDER_IMAGE_URL", "http://localhost/wp-content/uploads/woocommerce-placeholder.webp"),
		StoreCode:          getEnv("STORE_CODE", "TIENDA-001"),
		LocalStockFile:     getEnv("LOCAL_STOCK_FILE", "local_stock.json"),
		BatchSize:          getEnvAsInt("BATCH_SIZE", 100),
		MaxAttempts:        getEnvAsInt("MAX_ATTEMPTS", 5),
		RetryBaseDelay:     getEnvAsDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:      getEnvAsDuration("RETRY_MAX_DELAY", 60*time.Second),
		ItemMaxElapsed:     getEnvAsDuration("ITEM_MAX_ELAPSED", 5*time.Minute),
		MaxInFlight:        getEnvAsInt("MAX_IN_FLIGHT", 4),
		RequestsPerSecond:  getEnvAsFloat("REQUESTS_PER_SECOND", 5),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
		RunTimeout:         getEnvAsDuration("RUN_TIMEOUT", time.Hour),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "catalog-sync"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "catalogsync-worker"),
		APIPort:            getEnv("API_PORT", "8080"),
		APIHost:            getEnv("API_HOST", "0.0.0.0"),
		CORSOrigins:        getEnv("CORS_ALLOWED_ORIGINS", "*"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}, nil
}

// Validate checks the settings a sync run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.MerchantID == 0 {
		errs = append(errs, errors.New("MERCHANT_ID is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.SourceDatabaseURL == "" {
		errs = append(errs, errors.New("SOURCE_DATABASE_URL is required"))
	}
	if c.LocalStockFile == "" {
		errs = append(errs, errors.New("LOCAL_STOCK_FILE is required"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts))
	}
	if c.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("MAX_IN_FLIGHT must be positive, got %d", c.MaxInFlight))
	}
	return errors.Join(errs...)
}

// Brokers splits the comma separated broker list.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
