package config

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tonagent.json", `{"wallet": {"networks_file": "networks.yaml"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.Wallet.Network != "testnet" || cfg.Wallet.MnemonicFormat != "ton" {
		t.Fatalf("unexpected wallet defaults: %+v", cfg.Wallet)
	}
	if cfg.Wallet.NetworksFile != filepath.Join(dir, "networks.yaml") {
		t.Fatalf("networks file should be resolved against the config dir, got %q", cfg.Wallet.NetworksFile)
	}
	if cfg.TaskQueue.Workers != 1 || cfg.TaskQueue.MaxRetries != 3 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.TaskQueue)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
	if len(cfg.Agent.Providers) != 2 {
		t.Fatalf("expected default providers, got %v", cfg.Agent.Providers)
	}
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tonagent.json", `{"wallet": {"network": "devnet"}}`)

	_, err := Load(path)
	if !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	coded, _ := xerrors.From(err)
	if coded.Metadata()["field"] != "wallet.network" {
		t.Fatalf("expected field metadata, got %+v", coded.Metadata())
	}
}

func TestLoadRequiresDSNForMySQL(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tonagent.json", `{"storage": {"task_store": {"driver": "mysql"}}}`)

	_, err := Load(path)
	coded, ok := xerrors.From(err)
	if !ok || coded.Metadata()["field"] != "storage.task_store.dsn" {
		t.Fatalf("expected dsn error, got %v", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tonagent.json", `{`)
	if _, err := Load(path); !xerrors.Is(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestWalletResolveUsesEnvAndDefinitions(t *testing.T) {
	t.Setenv("TEST_TON_MNEMONIC", "word1 word2")
	dir := t.TempDir()
	path := writeFile(t, dir, "networks.yaml", `
networks:
  testnet:
    liteserver: "5.9.10.47:19949"
    key: "n4VDnSCUuSpjnCyUk9e3QOOd6o0ItSWYbTnW3Wnn8wk="
    explorer: "https://testnet.tonviewer.com/"
`)
	defs, err := LoadNetworkDefinitions(path)
	if err != nil {
		t.Fatalf("LoadNetworkDefinitions returned error: %v", err)
	}

	wallet := WalletConfig{Network: "testnet", MnemonicEnv: "TEST_TON_MNEMONIC"}
	resolved := wallet.Resolve(defs)

	if resolved.RPCEndpoint != "5.9.10.47:19949" {
		t.Fatalf("endpoint not taken from definitions: %q", resolved.RPCEndpoint)
	}
	if resolved.RPCKey == "" {
		t.Fatalf("key not taken from definitions")
	}
	if resolved.Mnemonic != "word1 word2" {
		t.Fatalf("mnemonic not read from env: %q", resolved.Mnemonic)
	}
	if defs.Explorers()["testnet"] != "https://testnet.tonviewer.com" {
		t.Fatalf("unexpected explorers: %v", defs.Explorers())
	}
}

func TestWalletResolvePrefersExplicitValues(t *testing.T) {
	defs := NetworkDefinitions{Networks: map[string]NetworkDefinition{
		"mainnet": {Liteserver: "1.1.1.1:1", Key: "def"},
	}}
	wallet := WalletConfig{Network: "mainnet", RPCEndpoint: "2.2.2.2:2", RPCKey: "explicit"}
	resolved := wallet.Resolve(defs)
	if resolved.RPCEndpoint != "2.2.2.2:2" || resolved.RPCKey != "explicit" {
		t.Fatalf("explicit values should win: %+v", resolved)
	}
}

func TestLoadNetworkDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadNetworkDefinitions("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := defs.Lookup("testnet"); ok {
		t.Fatalf("expected no definitions")
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if PathFromEnv() != DefaultPath {
		t.Fatalf("expected default path")
	}
	t.Setenv(EnvConfigPath, "/etc/tonagent.json")
	if PathFromEnv() != "/etc/tonagent.json" {
		t.Fatalf("expected env override")
	}
}
