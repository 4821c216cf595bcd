// Package config loads process-wide, immutable configuration.
// Grounded on OKaluzny-wallet-demo's internal/config/config.go
// (Default() + FromEnv() overlay pattern), extended with the
// wallet-service environment contract from spec.md §6 and a TOML
// overlay in the style of Jasonyou1995's viper-based CLI config.
package config

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/defisafe/hotwallet/internal/keyderivation"
	"github.com/defisafe/hotwallet/internal/walleterrors"
)

// Config holds every configurable parameter for the wallet service.
type Config struct {
	// Production gates quantum_safe loading and test-only env toggles.
	// Only a test binary may construct a Config with this false.
	Production bool

	// Derivation defaults (spec §4.2).
	DerivationAccount uint32
	DerivationChange  uint32
	DerivationIndex   uint32

	// HTTP surface.
	ListenAddr      string
	APIKey          string
	CORSAllowOrigin string
	RateLimitPerSec float64
	RateLimitBurst  int
	RequestTimeout  time.Duration
	DevPrintSecrets bool

	// Storage.
	DatabaseURL string

	// Per-chain EVM configuration.
	ChainIDs map[string]int64
	RPCURLs  map[string]string

	// Backup.
	BackupApproved bool

	// Test-only toggles (rejected unless Production == false).
	AllowBridgeMocks bool
	SkipDecrypt      bool
}

// Default returns a Config populated with safe production defaults.
func Default() Config {
	return Config{
		Production:        true,
		DerivationAccount: 0,
		DerivationChange:  0,
		DerivationIndex:   0,
		ListenAddr:        ":8080",
		RateLimitPerSec:   10,
		RateLimitBurst:    20,
		RequestTimeout:    15 * time.Second,
		ChainIDs: map[string]int64{
			"eth":         1,
			"sepolia":     11155111,
			"polygon":     137,
			"bsc":         56,
			"bsc-testnet": 97,
		},
		RPCURLs: map[string]string{},
	}
}

// FromEnv overlays environment-variable overrides onto Default(). It
// always starts from the production Default(), so the test-only flags
// are rejected; a non-production Config is built directly instead.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("WALLET_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("CORS_ALLOW_ORIGIN"); v != "" {
		cfg.CORSAllowOrigin = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("RATE_LIMIT_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitPerSec = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("DEV_PRINT_SECRETS"); v == "1" {
		cfg.DevPrintSecrets = true
	}
	if v := os.Getenv("WALLET_BACKUP_APPROVED"); v == "1" {
		cfg.BackupApproved = true
	}
	for chain := range cfg.ChainIDs {
		if v := os.Getenv("RPC_URL_" + strings.ToUpper(chain)); v != "" {
			cfg.RPCURLs[chain] = v
		}
		if v := os.Getenv("CHAIN_ID_" + strings.ToUpper(chain)); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				cfg.ChainIDs[chain] = n
			}
		}
	}

	if !cfg.Production {
		if v := os.Getenv("ALLOW_BRIDGE_MOCKS"); v == "1" {
			cfg.AllowBridgeMocks = true
		}
		if v := os.Getenv("TEST_SKIP_DECRYPT"); v == "1" {
			cfg.SkipDecrypt = true
		}
	} else {
		for _, blocked := range []string{"ALLOW_BRIDGE_MOCKS", "TEST_SKIP_DECRYPT"} {
			if os.Getenv(blocked) != "" {
				return cfg, walleterrors.New(walleterrors.KindConfig, blocked+" is a test-only toggle and cannot be set in a production build")
			}
		}
	}

	return cfg, nil
}

// WithTOMLFile layers a TOML config file's values onto cfg, for the
// fields present in the file. Missing fields are left untouched.
func WithTOMLFile(cfg Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, walleterrors.Wrap(walleterrors.KindConfig, "read config file", err)
	}
	var overlay struct {
		ListenAddr      *string  `toml:"listen_addr"`
		RateLimitPerSec *float64 `toml:"rate_limit_per_sec"`
		RateLimitBurst  *int     `toml:"rate_limit_burst"`
	}
	if err := toml.Unmarshal(raw, &overlay); err != nil {
		return cfg, walleterrors.Wrap(walleterrors.KindConfig, "parse config file", err)
	}
	if overlay.ListenAddr != nil {
		cfg.ListenAddr = *overlay.ListenAddr
	}
	if overlay.RateLimitPerSec != nil {
		cfg.RateLimitPerSec = *overlay.RateLimitPerSec
	}
	if overlay.RateLimitBurst != nil {
		cfg.RateLimitBurst = *overlay.RateLimitBurst
	}
	return cfg, nil
}

// DerivationPath returns the configured default BIP-44 path components.
func (c Config) DerivationPath() keyderivation.Path {
	return keyderivation.Path{
		Account: c.DerivationAccount,
		Change:  c.DerivationChange,
		Index:   c.DerivationIndex,
	}
}

// CheckAPIKey compares presented against the configured API key in
// constant time, so response latency never leaks a partial match.
func (c Config) CheckAPIKey(presented string) bool {
	if c.APIKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.APIKey), []byte(presented)) == 1
}

// EnvKEKSource resolves KEK material from the process environment:
// WALLET_ENC_KEY for the default KEK, WALLET_ENC_KEY_<ID> for a named
// rotation KEK. This is the only production MasterKeyProvider
// implementation; it never consults a test-only injection point.
type EnvKEKSource struct {
	// Production, when true, rejects an all-zero decoded key.
	Production bool
}

// KEK implements envelope.KEKSource.
func (s EnvKEKSource) KEK(kekID string) ([]byte, error) {
	varName := "WALLET_ENC_KEY"
	if kekID != "" {
		varName = "WALLET_ENC_KEY_" + kekID
	}
	raw := os.Getenv(varName)
	if raw == "" {
		return nil, walleterrors.New(walleterrors.KindConfig, fmt.Sprintf("%s is not set", varName))
	}
	kek, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, walleterrors.Wrap(walleterrors.KindConfig, fmt.Sprintf("%s is not valid base64", varName), err)
	}
	if len(kek) != 32 {
		return nil, walleterrors.New(walleterrors.KindConfig, fmt.Sprintf("%s must decode to exactly 32 bytes, got %d", varName, len(kek)))
	}
	if s.Production && isAllZero(kek) {
		return nil, walleterrors.New(walleterrors.KindConfig, fmt.Sprintf("%s must not be all-zero in production", varName))
	}
	return kek, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
