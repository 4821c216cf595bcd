package cli

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildManagerCreatesWalletWithNoChainsConfigured(t *testing.T) {
	kek := make([]byte, 32)
	for i := range kek {
		kek[i] = byte(i + 1)
	}
	t.Setenv("WALLET_ENC_KEY", base64.StdEncoding.EncodeToString(kek))
	t.Setenv("API_KEY", "test-api-key")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Production {
		t.Fatal("expected config.FromEnv to default to production mode")
	}

	mgr, err := buildManager(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildManager: %v", err)
	}

	info, err := mgr.CreateWallet(context.Background(), "alice", false)
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}
	if info.Name != "alice" {
		t.Fatalf("got name %q, want alice", info.Name)
	}

	names, err := mgr.ListWallets(context.Background())
	if err != nil {
		t.Fatalf("ListWallets: %v", err)
	}
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("got wallets %v, want [alice]", names)
	}
}

func TestBuildManagerRejectsQuantumSafeInProduction(t *testing.T) {
	kek := make([]byte, 32)
	for i := range kek {
		kek[i] = byte(i + 1)
	}
	t.Setenv("WALLET_ENC_KEY", base64.StdEncoding.EncodeToString(kek))
	t.Setenv("API_KEY", "test-api-key")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	mgr, err := buildManager(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildManager: %v", err)
	}

	if _, err := mgr.CreateWallet(context.Background(), "bob", true); err == nil {
		t.Fatal("expected quantum_safe wallet creation to fail in production")
	}
}

func TestBuildRegistrySkipsUnconfiguredNetworks(t *testing.T) {
	kek := make([]byte, 32)
	for i := range kek {
		kek[i] = byte(i + 1)
	}
	t.Setenv("WALLET_ENC_KEY", base64.StdEncoding.EncodeToString(kek))

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	registry, err := buildRegistry(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	if _, ok := registry.Get("eth"); ok {
		t.Fatal("expected no eth client without a configured RPC URL")
	}
}
