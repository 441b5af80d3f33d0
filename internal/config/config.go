// Package config loads the gateway configuration from the environment.
// Nothing ledger-facing is hard-coded: node endpoint, contract address,
// signing credential and gas ceilings all arrive via env (a local .env
// file is honored for development).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	NodeURL         string
	ContractAddress string
	// PrivateKey is the hex-encoded signing key. It is read from the
	// environment (or whatever secret mechanism populates it) and must
	// never appear in source or logs.
	PrivateKey  string
	ChainID     int64
	Port        string
	DatabaseURL string

	CreateGasLimit uint64
	ScanGasLimit   uint64

	SubmitTimeout     time.Duration
	CallTimeout       time.Duration
	MaxSubmitAttempts int
	RetryDelay        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		NodeURL:         os.Getenv("ETH_NODE_URL"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		PrivateKey:      os.Getenv("SIGNER_PRIVATE_KEY"),
		Port:            envOr("SERVICE_PORT", "3000"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}

	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("ETH_NODE_URL is required")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("CONTRACT_ADDRESS is required")
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("SIGNER_PRIVATE_KEY is required")
	}

	var err error
	if cfg.ChainID, err = envInt64("CHAIN_ID", 1337); err != nil {
		return nil, err
	}
	if cfg.CreateGasLimit, err = envUint64("GAS_LIMIT_CREATE", 500000); err != nil {
		return nil, err
	}
	if cfg.ScanGasLimit, err = envUint64("GAS_LIMIT_SCAN", 300000); err != nil {
		return nil, err
	}
	if cfg.SubmitTimeout, err = envDuration("SUBMIT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = envDuration("CALL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	maxAttempts, err := envInt64("MAX_SUBMIT_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("MAX_SUBMIT_ATTEMPTS must be >= 1")
	}
	cfg.MaxSubmitAttempts = int(maxAttempts)
	if cfg.RetryDelay, err = envDuration("RETRY_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
