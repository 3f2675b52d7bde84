package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testStaking = "0x1111111111111111111111111111111111111111"
	testUSDT    = "0x55d398326f99059fF775485246999027B3197955"
	testFID     = "0x2222222222222222222222222222222222222222"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Network.ChainID != ChainIDBSC {
		t.Errorf("expected default chain 56, got %d", cfg.Network.ChainID)
	}
	if cfg.Network.CurrencySymbol != "BNB" || cfg.Network.CurrencyDecimals != 18 {
		t.Errorf("unexpected native currency %s/%d", cfg.Network.CurrencySymbol, cfg.Network.CurrencyDecimals)
	}
	if cfg.Store.Backend != "postgrest" {
		t.Errorf("expected postgrest store, got %s", cfg.Store.Backend)
	}
	if cfg.Mail.Port != 465 {
		t.Errorf("expected implicit TLS port 465, got %d", cfg.Mail.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestTestnetNetwork(t *testing.T) {
	n := TestnetNetwork()
	if n.ChainID != ChainIDBSCTestnet {
		t.Errorf("expected 97, got %d", n.ChainID)
	}
	if !strings.Contains(n.ExplorerURL, "testnet") {
		t.Errorf("unexpected explorer %s", n.ExplorerURL)
	}
}

func TestMaxGasPrice(t *testing.T) {
	n := NetworkConfig{MaxGasPriceGwei: 5}
	if got := n.MaxGasPrice().String(); got != "5000000000" {
		t.Errorf("MaxGasPrice = %s", got)
	}
	n.MaxGasPriceGwei = 0
	if n.MaxGasPrice() != nil {
		t.Error("expected nil cap")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ChainID != ChainIDBSC {
		t.Errorf("expected defaults, got chain %d", cfg.Network.ChainID)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
network:
  chain_id: 97
  rpc_url: https://rpc.example
contracts:
  staking: ` + testStaking + `
  tokens:
    - symbol: USDT
      address: ` + testUSDT + `
    - symbol: FID
      address: ` + testFID + `
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.ChainID != 97 || cfg.Network.RPCURL != "https://rpc.example" {
		t.Errorf("network not loaded: %+v", cfg.Network)
	}
	if len(cfg.Contracts.Tokens) != 2 || cfg.Contracts.Tokens[1].Symbol != "FID" {
		t.Errorf("tokens not loaded: %+v", cfg.Contracts.Tokens)
	}
	// untouched sections keep defaults
	if cfg.Network.CurrencySymbol != "BNB" {
		t.Errorf("expected default currency, got %s", cfg.Network.CurrencySymbol)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("network: [not a map"), 0600)

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STAKEPORT_NETWORK_CHAIN_ID", "97")
	t.Setenv("STAKEPORT_CONTRACTS_STAKING", testStaking)
	t.Setenv("STAKEPORT_CONTRACTS_TOKENS", "USDT:"+testUSDT+", FID:"+testFID)
	t.Setenv("STAKEPORT_MAIL_PASSWORD", "s3cret")
	t.Setenv("STAKEPORT_API_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Network.ChainID != 97 {
		t.Errorf("chain id = %d", cfg.Network.ChainID)
	}
	if cfg.Contracts.Staking != testStaking {
		t.Errorf("staking = %s", cfg.Contracts.Staking)
	}
	if len(cfg.Contracts.Tokens) != 2 || cfg.Contracts.Tokens[0].Symbol != "USDT" || cfg.Contracts.Tokens[1].Address != testFID {
		t.Errorf("tokens = %+v", cfg.Contracts.Tokens)
	}
	if cfg.Mail.Password != "s3cret" {
		t.Errorf("mail password not applied")
	}
	if len(cfg.API.AllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.API.AllowedOrigins)
	}
	// unset variables keep defaults
	if cfg.Network.RPCURL != DefaultNetwork().RPCURL {
		t.Errorf("rpc url overwritten: %s", cfg.Network.RPCURL)
	}
}

func TestTokenList_UnmarshalText_Invalid(t *testing.T) {
	var l TokenList
	if err := l.UnmarshalText([]byte("USDT")); err == nil {
		t.Error("expected error for missing address")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chain", func(c *Config) { c.Network.ChainID = 0 }},
		{"no rpc", func(c *Config) { c.Network.RPCURL = "" }},
		{"bad staking", func(c *Config) { c.Contracts.Staking = "0x123" }},
		{"zero strategy", func(c *Config) { c.Contracts.Strategy = "0x0000000000000000000000000000000000000000" }},
		{"non-hex nft", func(c *Config) { c.Contracts.NFT = "0xZZ11111111111111111111111111111111111111" }},
		{"dup token", func(c *Config) {
			c.Contracts.Tokens = TokenList{{Symbol: "A", Address: testUSDT}, {Symbol: "A", Address: testFID}}
		}},
		{"token no symbol", func(c *Config) { c.Contracts.Tokens = TokenList{{Address: testUSDT}} }},
		{"bad backend", func(c *Config) { c.Store.Backend = "mysql" }},
		{"bad mail provider", func(c *Config) { c.Mail.Provider = "pigeon" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"gas multiplier", func(c *Config) { c.Network.GasMultiplier = 0.5 }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Contracts.Staking = testStaking

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 perms, got %o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Contracts.Staking != testStaking {
		t.Errorf("staking not round-tripped: %s", loaded.Contracts.Staking)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("expandPath = %s", got)
	}
	if got := expandPath("/abs"); got != "/abs" {
		t.Errorf("absolute path changed: %s", got)
	}
}
