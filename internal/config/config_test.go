package config

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Production {
		t.Error("Default() should be production by default")
	}
	if cfg.ChainIDs["eth"] != 1 {
		t.Errorf("eth chain id = %d, want 1", cfg.ChainIDs["eth"])
	}
}

func TestFromEnv_ProductionRejectsTestToggles(t *testing.T) {
	t.Setenv("ALLOW_BRIDGE_MOCKS", "1")
	if _, err := FromEnv(); err == nil {
		t.Error("expected error when ALLOW_BRIDGE_MOCKS is set in production")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("WALLET_LISTEN_ADDR", ":9999")
	t.Setenv("RATE_LIMIT_PER_SEC", "42")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %s, want :9999", cfg.ListenAddr)
	}
	if cfg.RateLimitPerSec != 42 {
		t.Errorf("RateLimitPerSec = %v, want 42", cfg.RateLimitPerSec)
	}
}

func TestCheckAPIKey(t *testing.T) {
	cfg := Config{APIKey: "secret-key"}
	if !cfg.CheckAPIKey("secret-key") {
		t.Error("expected matching key to pass")
	}
	if cfg.CheckAPIKey("wrong-key") {
		t.Error("expected mismatched key to fail")
	}
	if cfg.CheckAPIKey("") {
		t.Error("empty presented key must never match")
	}
}

func TestCheckAPIKey_UnsetConfiguredKeyAlwaysFails(t *testing.T) {
	cfg := Config{}
	if cfg.CheckAPIKey("") {
		t.Error("unset configured key must never authenticate")
	}
}

func TestEnvKEKSource(t *testing.T) {
	key := strings.Repeat("a", 32)
	t.Setenv("WALLET_ENC_KEY", base64.StdEncoding.EncodeToString([]byte(key)))

	src := EnvKEKSource{Production: true}
	got, err := src.KEK("")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != key {
		t.Errorf("KEK mismatch")
	}
}

func TestEnvKEKSource_RejectsAllZeroInProduction(t *testing.T) {
	zero := make([]byte, 32)
	t.Setenv("WALLET_ENC_KEY", base64.StdEncoding.EncodeToString(zero))

	src := EnvKEKSource{Production: true}
	if _, err := src.KEK(""); err == nil {
		t.Error("expected error for all-zero key in production")
	}

	src2 := EnvKEKSource{Production: false}
	if _, err := src2.KEK(""); err != nil {
		t.Errorf("all-zero key should be accepted outside production: %v", err)
	}
}

func TestEnvKEKSource_NamedKEK(t *testing.T) {
	key := strings.Repeat("b", 32)
	t.Setenv("WALLET_ENC_KEY_BLUE", base64.StdEncoding.EncodeToString([]byte(key)))

	src := EnvKEKSource{}
	got, err := src.KEK("BLUE")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != key {
		t.Error("named KEK mismatch")
	}
}

func TestEnvKEKSource_Missing(t *testing.T) {
	src := EnvKEKSource{}
	if _, err := src.KEK("DOES_NOT_EXIST"); err == nil {
		t.Error("expected error for unset KEK env var")
	}
}
