package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STAKEPORT_"

// Config represents the complete client configuration
type Config struct {
	Network   NetworkConfig   `yaml:"network" envPrefix:"NETWORK_"`
	Contracts ContractsConfig `yaml:"contracts" envPrefix:"CONTRACTS_"`
	Wallet    WalletConfig    `yaml:"wallet" envPrefix:"WALLET_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Mail      MailConfig      `yaml:"mail" envPrefix:"MAIL_"`
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// NetworkConfig describes the target chain. The same values are handed to the
// wallet when it has to add the chain before switching to it.
type NetworkConfig struct {
	ChainID          int64   `yaml:"chain_id" env:"CHAIN_ID"`
	Name             string  `yaml:"name" env:"NAME"`
	RPCURL           string  `yaml:"rpc_url" env:"RPC_URL"`
	WSURL            string  `yaml:"ws_url" env:"WS_URL"`
	ExplorerURL      string  `yaml:"explorer_url" env:"EXPLORER_URL"`
	CurrencyName     string  `yaml:"currency_name" env:"CURRENCY_NAME"`
	CurrencySymbol   string  `yaml:"currency_symbol" env:"CURRENCY_SYMBOL"`
	CurrencyDecimals uint8   `yaml:"currency_decimals" env:"CURRENCY_DECIMALS"`
	Confirmations    int     `yaml:"confirmations" env:"CONFIRMATIONS"`
	TxTimeoutSecs    int     `yaml:"tx_timeout_secs" env:"TX_TIMEOUT_SECS"` // no receipt within this window -> dropped
	GasMultiplier    float64 `yaml:"gas_multiplier" env:"GAS_MULTIPLIER"`
	MaxGasPriceGwei  int64   `yaml:"max_gas_price_gwei" env:"MAX_GAS_PRICE_GWEI"`
}

// MaxGasPrice returns the gas price cap in wei, or nil when uncapped.
func (n NetworkConfig) MaxGasPrice() *big.Int {
	if n.MaxGasPriceGwei <= 0 {
		return nil
	}
	return new(big.Int).Mul(big.NewInt(n.MaxGasPriceGwei), big.NewInt(1e9))
}

// TokenConfig names one ERC-20 contract tracked by the balance synchronizer.
type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

// TokenList parses "SYM:0xaddr,SYM2:0xaddr" from the environment.
type TokenList []TokenConfig

func (l *TokenList) UnmarshalText(text []byte) error {
	var out TokenList
	for _, part := range strings.Split(string(text), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, addr, ok := strings.Cut(part, ":")
		if !ok {
			return fmt.Errorf("token %q must be SYMBOL:ADDRESS", part)
		}
		out = append(out, TokenConfig{Symbol: strings.TrimSpace(sym), Address: strings.TrimSpace(addr)})
	}
	*l = out
	return nil
}

// ContractsConfig holds deployed contract addresses.
type ContractsConfig struct {
	Staking      string    `yaml:"staking" env:"STAKING"`
	Strategy     string    `yaml:"strategy" env:"STRATEGY"`
	FeeCollector string    `yaml:"fee_collector" env:"FEE_COLLECTOR"`
	NFT          string    `yaml:"nft" env:"NFT"`
	Tokens       TokenList `yaml:"tokens" env:"TOKENS"`
}

// WalletConfig contains local wallet settings
type WalletConfig struct {
	KeystoreDir  string `yaml:"keystore_dir" env:"KEYSTORE_DIR"`
	PasswordFile string `yaml:"password_file" env:"PASSWORD_FILE"`
	StateFile    string `yaml:"state_file" env:"STATE_FILE"` // durable "was connected" flag
}

// StoreConfig selects and configures the allow-list store backend.
type StoreConfig struct {
	Backend        string  `yaml:"backend" env:"BACKEND"` // "postgrest" or "postgres"
	URL            string  `yaml:"url" env:"URL"`
	APIKey         string  `yaml:"api_key" env:"API_KEY"`
	DSN            string  `yaml:"dsn" env:"DSN"`
	TimeoutSecs    int     `yaml:"timeout_secs" env:"TIMEOUT_SECS"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// MailConfig configures the outbound relay for administrator notifications.
type MailConfig struct {
	Provider     string `yaml:"provider" env:"PROVIDER"` // "smtp" or "resend"
	Host         string `yaml:"host" env:"HOST"`
	Port         int    `yaml:"port" env:"PORT"`
	Username     string `yaml:"username" env:"USERNAME"`
	Password     string `yaml:"password" env:"PASSWORD"`
	StartTLS     bool   `yaml:"starttls" env:"STARTTLS"` // false = implicit TLS
	From         string `yaml:"from" env:"FROM"`
	FromName     string `yaml:"from_name" env:"FROM_NAME"`
	AdminTo      string `yaml:"admin_to" env:"ADMIN_TO"`
	ResendAPIKey string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	TimeoutSecs  int    `yaml:"timeout_secs" env:"TIMEOUT_SECS"`
}

// APIConfig contains dashboard API server settings
type APIConfig struct {
	ListenAddr        string   `yaml:"listen_addr" env:"LISTEN_ADDR"`
	RateLimitRequests int      `yaml:"rate_limit_requests" env:"RATE_LIMIT_REQUESTS"` // per minute per client IP
	RateLimitBurst    int      `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	AllowedOrigins    []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// LogConfig controls the global logger
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // "json" or "text"
}

// BSC mainnet and testnet parameters.
const (
	ChainIDBSC        = 56
	ChainIDBSCTestnet = 97
)

// DefaultNetwork returns the BNB Smart Chain mainnet parameters.
func DefaultNetwork() NetworkConfig {
	return NetworkConfig{
		ChainID:          ChainIDBSC,
		Name:             "BNB Smart Chain Mainnet",
		RPCURL:           "https://bsc-dataseed.binance.org/",
		ExplorerURL:      "https://bscscan.com",
		CurrencyName:     "BNB",
		CurrencySymbol:   "BNB",
		CurrencyDecimals: 18,
		Confirmations:    3,
		TxTimeoutSecs:    300,
		GasMultiplier:    1.2,
		MaxGasPriceGwei:  20,
	}
}

// TestnetNetwork returns the BNB Smart Chain testnet parameters.
func TestnetNetwork() NetworkConfig {
	n := DefaultNetwork()
	n.ChainID = ChainIDBSCTestnet
	n.Name = "BNB Smart Chain Testnet"
	n.RPCURL = "https://data-seed-prebsc-1-s1.binance.org:8545/"
	n.ExplorerURL = "https://testnet.bscscan.com"
	n.CurrencyName = "tBNB"
	n.CurrencySymbol = "tBNB"
	n.Confirmations = 1
	return n
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Network: DefaultNetwork(),
		Wallet: WalletConfig{
			KeystoreDir: "~/.stakeport/keystore",
			StateFile:   "~/.stakeport/session.yaml",
		},
		Store: StoreConfig{
			Backend:        "postgrest",
			TimeoutSecs:    10,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Mail: MailConfig{
			Provider:    "smtp",
			Port:        465,
			FromName:    "Stakeport",
			TimeoutSecs: 15,
		},
		API: APIConfig{
			ListenAddr:        "127.0.0.1:8787",
			RateLimitRequests: 120,
			RateLimitBurst:    20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv loads the YAML file, then a .env file from the working directory
// if one exists, then overlays STAKEPORT_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(expandPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays STAKEPORT_* environment variables onto cfg. Unset
// variables leave the existing value untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Save writes the config as YAML with owner-only permissions.
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field formats. Contract addresses are optional here; the
// components that need one fail when it is missing.
func (c *Config) Validate() error {
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("invalid chain_id: %d", c.Network.ChainID)
	}
	if c.Network.RPCURL == "" {
		return fmt.Errorf("network.rpc_url is required")
	}
	if c.Network.CurrencyDecimals > 36 {
		return fmt.Errorf("invalid currency_decimals: %d", c.Network.CurrencyDecimals)
	}
	if c.Network.Confirmations < 0 {
		return fmt.Errorf("confirmations must not be negative")
	}
	if c.Network.GasMultiplier != 0 && c.Network.GasMultiplier < 1 {
		return fmt.Errorf("gas_multiplier must be >= 1, got %v", c.Network.GasMultiplier)
	}

	addrs := map[string]string{
		"contracts.staking":       c.Contracts.Staking,
		"contracts.strategy":      c.Contracts.Strategy,
		"contracts.fee_collector": c.Contracts.FeeCollector,
		"contracts.nft":           c.Contracts.NFT,
	}
	for name, addr := range addrs {
		if addr == "" {
			continue
		}
		if err := validateEthAddress(name, addr); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for i, tok := range c.Contracts.Tokens {
		if tok.Symbol == "" {
			return fmt.Errorf("contracts.tokens[%d]: symbol is required", i)
		}
		if seen[tok.Symbol] {
			return fmt.Errorf("contracts.tokens: duplicate symbol %s", tok.Symbol)
		}
		seen[tok.Symbol] = true
		if err := validateEthAddress("contracts.tokens."+tok.Symbol, tok.Address); err != nil {
			return err
		}
	}

	switch c.Store.Backend {
	case "postgrest", "postgres":
	default:
		return fmt.Errorf("invalid store.backend: %q", c.Store.Backend)
	}

	switch c.Mail.Provider {
	case "smtp", "resend":
	default:
		return fmt.Errorf("invalid mail.provider: %q", c.Mail.Provider)
	}
	if c.Mail.Port < 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("invalid mail.port: %d", c.Mail.Port)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	return nil
}

func validateEthAddress(name, addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%s must start with 0x, got %q", name, addr)
	}
	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return fmt.Errorf("%s must be 42 characters (0x + 40 hex), got %d", name, len(addr))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return fmt.Errorf("%s contains invalid hex characters: %w", name, err)
	}
	if strings.Trim(hexPart, "0") == "" {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}

func (c *Config) expandPaths() {
	c.Wallet.KeystoreDir = expandPath(c.Wallet.KeystoreDir)
	c.Wallet.PasswordFile = expandPath(c.Wallet.PasswordFile)
	c.Wallet.StateFile = expandPath(c.Wallet.StateFile)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DefaultConfigPath returns ~/.stakeport/config.yaml
func DefaultConfigPath() string {
	return expandPath("~/.stakeport/config.yaml")
}
