package identity

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/99designs/keyring"
	"github.com/ethereum/go-ethereum/common"
)

const keyringServiceName = "stakeport"

// PasswordEnvVar overrides every other password source when set.
const PasswordEnvVar = "STAKEPORT_WALLET_PASSWORD"

// ErrNoPassword is returned when no stored password exists for an account.
var ErrNoPassword = errors.New("no stored wallet password")

func passwordKey(addr common.Address) string {
	return "wallet-password:" + strings.ToLower(addr.Hex())
}

// StoreWalletPassword saves the password for addr in the platform keyring
// and returns the backend name.
func StoreWalletPassword(addr common.Address, password string) (string, error) {
	ring, backend, err := openKeyring()
	if err != nil {
		return "", err
	}

	err = ring.Set(keyring.Item{
		Key:         passwordKey(addr),
		Data:        []byte(password),
		Label:       "Stakeport Wallet Password",
		Description: "Password for the stakeport keystore account " + addr.Hex(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store in %s: %w", backend, err)
	}
	return backend, nil
}

// RetrieveWalletPassword reads the stored password for addr.
// Returns ErrNoPassword if the keyring is available but holds nothing.
func RetrieveWalletPassword(addr common.Address) (string, error) {
	ring, _, err := openKeyring()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(passwordKey(addr))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoPassword
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// DeleteWalletPassword removes the stored password for addr.
func DeleteWalletPassword(addr common.Address) error {
	ring, _, err := openKeyring()
	if err != nil {
		return err
	}
	err = ring.Remove(passwordKey(addr))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}

// ResolvePassword looks for a non-interactive password for addr: the
// environment variable, then passwordFile, then the platform keyring.
func ResolvePassword(addr common.Address, passwordFile string) (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}
	if passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	pw, err := RetrieveWalletPassword(addr)
	if err != nil {
		return "", err
	}
	return pw, nil
}

func openKeyring() (keyring.Keyring, string, error) {
	backends := platformKeyringBackends()
	if len(backends) == 0 {
		return nil, "", fmt.Errorf("no keyring backend available on %s", runtime.GOOS)
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    keyringServiceName,
		AllowedBackends:                backends,
		KeychainTrustApplication:       true,
		KeychainAccessibleWhenUnlocked: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, keyringBackendName(), nil
}

func platformKeyringBackends() []keyring.BackendType {
	switch runtime.GOOS {
	case "darwin":
		return []keyring.BackendType{keyring.KeychainBackend}
	case "linux":
		return []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend}
	case "windows":
		return []keyring.BackendType{keyring.WinCredBackend}
	default:
		return nil
	}
}

func keyringBackendName() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "linux":
		return "Secret Service"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "system keyring"
	}
}
