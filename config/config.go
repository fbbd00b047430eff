// Package config loads all application configuration from environment
// variables, once at process start.
package config

import "os"

// Config holds all application configuration.
type Config struct {
	// Kiwoom upstream
	BaseURL        string
	AppKey         string
	AppSecret      string
	CustomerType   string
	TRIDHistorical string
	TRIDQuote      string

	// MockMode replaces every upstream call with synthetic data.
	MockMode bool
	// Production disables the synthetic-data fallback on failures.
	Production bool

	// Listeners
	GatewayAddr string
	MetricsAddr string
	LogLevel    string

	// Optional upstream response cache; empty addr disables it.
	RedisAddr     string
	RedisPassword string
}

// Load reads configuration from environment variables with sensible
// defaults. Credentials may legitimately be absent in mock mode; the
// upstream client raises a configuration error at call time otherwise.
func Load() *Config {
	return &Config{
		BaseURL:        os.Getenv("KIWOOM_BASE_URL"),
		AppKey:         firstEnv("KIWOOM_APP_KEY", "KIWOOM_CLIENT_ID"),
		AppSecret:      firstEnv("KIWOOM_APP_SECRET", "KIWOOM_CLIENT_SECRET"),
		CustomerType:   getEnv("KIWOOM_CUSTOMER_TYPE", "P"),
		TRIDHistorical: getEnv("KIWOOM_TR_ID_HISTORICAL", "FHKST03010100"),
		TRIDQuote:      getEnv("KIWOOM_TR_ID_QUOTE", "FHKST01010100"),

		MockMode:   os.Getenv("MOCK_MODE") == "true",
		Production: os.Getenv("APP_ENV") == "production",

		GatewayAddr: getEnv("GATEWAY_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// firstEnv returns the first non-empty value among the keys. Later keys
// are legacy aliases.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
