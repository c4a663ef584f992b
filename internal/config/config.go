package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the catalog sync service
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string

	// Shopify store
	ShopifyStore       string
	ShopifyAccessToken string
	ShopifyAPIVersion  string

	// Stock location. Zero means resolve the first listed location at
	// startup; multi-warehouse stores should pin this explicitly.
	LocationID int64

	// Fetch settings
	FetchPageSize  int
	FetchPageDelay time.Duration

	// Apply settings
	MutationDelay time.Duration
	SyncTimeout   time.Duration

	// Rate limiting
	RequestsPerSecond float64
	RetryAfterDefault time.Duration

	// Identifier matching
	MatchCaseInsensitive bool

	// Spreadsheet column names
	ColumnSearchKey string
	ColumnPrice     string
	ColumnInventory string
	ColumnTitle     string
	ColumnBrand     string
}

// Load loads configuration from environment variables
func Load() *Config {
	// Optional .env for local development
	_ = godotenv.Load()

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "postgres")
		dbName := getEnv("DB_NAME", "catalog_sync")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: databaseURL,

		ShopifyStore:       getEnv("SHOPIFY_STORE", ""),
		ShopifyAccessToken: getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		ShopifyAPIVersion:  getEnv("SHOPIFY_API_VERSION", "2024-01"),

		LocationID: getEnvAsInt64("SHOPIFY_LOCATION_ID", 0),

		FetchPageSize:  getEnvAsInt("FETCH_PAGE_SIZE", 250),
		FetchPageDelay: getEnvAsDuration("FETCH_PAGE_DELAY", 500*time.Millisecond),

		MutationDelay: getEnvAsDuration("MUTATION_DELAY", 500*time.Millisecond),
		SyncTimeout:   getEnvAsDuration("SYNC_TIMEOUT", 30*time.Minute),

		RequestsPerSecond: getEnvAsFloat("REQUESTS_PER_SECOND", 2),
		RetryAfterDefault: getEnvAsDuration("RETRY_AFTER_DEFAULT", 10*time.Second),

		MatchCaseInsensitive: getEnvAsBool("MATCH_CASE_INSENSITIVE", false),

		ColumnSearchKey: getEnv("COLUMN_SEARCH_KEY", "اسم البحث"),
		ColumnPrice:     getEnv("COLUMN_PRICE", "Sales Price"),
		ColumnInventory: getEnv("COLUMN_INVENTORY", "المخزون الفعلي"),
		ColumnTitle:     getEnv("COLUMN_TITLE", "اسم المنتج"),
		ColumnBrand:     getEnv("COLUMN_BRAND", "Brand"),
	}

	if config.ShopifyStore == "" || config.ShopifyAccessToken == "" {
		log.Println("Warning: SHOPIFY_STORE or SHOPIFY_ACCESS_TOKEN not set, sync runs will fail")
	}

	return config
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsInt64 gets an environment variable as an int64 with a default value
func getEnvAsInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
