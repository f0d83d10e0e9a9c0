package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/solanare/reclaimer/service/fees"
	solclient "github.com/solanare/reclaimer/service/solana"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration. RPCURLs is the failover rotation, in priority
	// order.
	RPCURLs      []string
	RateLimitRPS int

	// Reclaim configuration
	TreasuryAddress          solana.PublicKey
	MinViableReclaimLamports uint64

	// Holder tier configuration. A zero HolderTokenMint disables the
	// reduced-fee tier.
	HolderTokenMint solana.PublicKey
	HolderMinTokens uint64
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.RPCURLs = splitList(os.Getenv("SOLANA_RPC_URLS"))
	if len(cfg.RPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS is required (comma-separated, priority order)"))
	}

	rps, err := parseInt("RATE_LIMIT_RPS", solclient.DefaultRatePerSecond)
	if err != nil {
		errs = append(errs, err)
	} else if rps <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be positive"))
	} else {
		cfg.RateLimitRPS = rps
	}

	// Reclaim configuration
	treasury := os.Getenv("TREASURY_ADDRESS")
	if treasury == "" {
		errs = append(errs, fmt.Errorf("TREASURY_ADDRESS is required"))
	} else if pk, err := solana.PublicKeyFromBase58(treasury); err != nil {
		errs = append(errs, fmt.Errorf("TREASURY_ADDRESS: invalid address %q: %w", treasury, err))
	} else {
		cfg.TreasuryAddress = pk
	}

	minViable, err := parseUint("MIN_VIABLE_RECLAIM_LAMPORTS", fees.DefaultMinViableReclaimLamports)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinViableReclaimLamports = minViable
	}

	// Holder tier configuration
	if mint := os.Getenv("HOLDER_TOKEN_MINT"); mint != "" {
		pk, err := solana.PublicKeyFromBase58(mint)
		if err != nil {
			errs = append(errs, fmt.Errorf("HOLDER_TOKEN_MINT: invalid address %q: %w", mint, err))
		} else {
			cfg.HolderTokenMint = pk
		}
	}

	holderMin, err := parseUint("HOLDER_MIN_TOKENS", 0)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HolderMinTokens = holderMin
	}
	if !cfg.HolderTokenMint.IsZero() && cfg.HolderMinTokens == 0 {
		errs = append(errs, fmt.Errorf("HOLDER_MIN_TOKENS is required when HOLDER_TOKEN_MINT is set"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if len(c.RPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("RPCURLs is required"))
	}

	if c.RateLimitRPS <= 0 {
		errs = append(errs, fmt.Errorf("RateLimitRPS must be positive"))
	}

	if c.TreasuryAddress.IsZero() {
		errs = append(errs, fmt.Errorf("TreasuryAddress is required"))
	}

	if !c.HolderTokenMint.IsZero() && c.HolderMinTokens == 0 {
		errs = append(errs, fmt.Errorf("HolderMinTokens is required when HolderTokenMint is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseUint parses an unsigned integer from an environment variable or uses
// a default.
func parseUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}
