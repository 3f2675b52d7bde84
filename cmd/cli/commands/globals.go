package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/stakeport/stakeport/internal/config"
)

// Global CLI flags
var (
	// ConfigPath is the config file; empty means the default location.
	ConfigPath string

	// OutputFormat controls output format: "" (auto), "json", "plain"
	OutputFormat string

	// AssumeYes approves wallet prompts without asking.
	AssumeYes bool
)

// configPath returns the config file path from flag or default.
func configPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads config from file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadConfigQuiet loads config from the default path, returning nil on error.
func loadConfigQuiet() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		return nil
	}
	return cfg
}

// GetKeystoreDir returns the keystore directory from config or default.
func GetKeystoreDir() string {
	if cfg := loadConfigQuiet(); cfg != nil && cfg.Wallet.KeystoreDir != "" {
		return cfg.Wallet.KeystoreDir
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".stakeport", "keystore")
}

// jsonOutput reports whether --output json was requested.
func jsonOutput() bool {
	return OutputFormat == "json"
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Version information (set at build time)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the version string
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	// Try to get version from build info
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// GetCommit returns the git commit
func GetCommit() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 8 {
					return setting.Value[:8]
				}
				return setting.Value
			}
		}
	}
	return "unknown"
}

// GetGoVersion returns the Go version
func GetGoVersion() string {
	return runtime.Version()
}
