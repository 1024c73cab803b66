package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds the service settings.
type Config struct {
	Port             int
	DBDriver         string // "sqlite3" or "mysql"
	DBDSN            string
	VATPercent       decimal.Decimal
	LateFee          decimal.Decimal // Zero disables late-fee assessment
	LateFeeGraceDays int
	BatchInterval    time.Duration
	CacheEnabled     bool
	AllowedOrigins   []string
	OTELEndpoint     string
	OTELServiceName  string
	LendingFile      string
}

// LendingPolicy is the optional YAML file that overrides lending defaults.
type LendingPolicy struct {
	VATPercent       *decimal.Decimal `yaml:"vat_percent"`
	LateFee          *decimal.Decimal `yaml:"late_fee"`
	LateFeeGraceDays *int             `yaml:"late_fee_grace_days"`
}

// LoadConfig reads .env (if present), the environment, and the lending policy file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		DBDriver:         getEnvString("DB_DRIVER", "sqlite3"),
		DBDSN:            getEnvString("DB_DSN", "carlot.db"),
		VATPercent:       getEnvDecimal("VAT_PERCENT", decimal.NewFromInt(7)),
		LateFee:          getEnvDecimal("LATE_FEE", decimal.Zero),
		LateFeeGraceDays: getEnvInt("LATE_FEE_GRACE_DAYS", 5),
		BatchInterval:    getEnvDuration("BATCH_INTERVAL", time.Hour),
		CacheEnabled:     getEnvBool("CACHE_ENABLED", true),
		AllowedOrigins:   getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		OTELEndpoint:     getEnvString("OTEL_ENDPOINT", ""),
		OTELServiceName:  getEnvString("OTEL_SERVICE_NAME", "carlot-api"),
		LendingFile:      getEnvString("LENDING_CONFIG", ""),
	}

	if cfg.LendingFile != "" {
		if err := cfg.applyLendingFile(cfg.LendingFile); err != nil {
			return nil, err
		}
	}

	if cfg.DBDriver != "sqlite3" && cfg.DBDriver != "mysql" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.VATPercent.IsNegative() || cfg.LateFee.IsNegative() {
		return nil, fmt.Errorf("VAT percent and late fee must not be negative")
	}
	return cfg, nil
}

func (c *Config) applyLendingFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read lending config: %w", err)
	}
	var policy LendingPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return fmt.Errorf("failed to parse lending config %s: %w", path, err)
	}
	if policy.VATPercent != nil {
		c.VATPercent = *policy.VATPercent
	}
	if policy.LateFee != nil {
		c.LateFee = *policy.LateFee
	}
	if policy.LateFeeGraceDays != nil {
		c.LateFeeGraceDays = *policy.LateFeeGraceDays
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
