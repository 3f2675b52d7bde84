package identity

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletManager manages the encrypted geth V3 keystore holding the user's
// BSC accounts.
type WalletManager struct {
	keystore *keystore.KeyStore
	dir      string
}

func openKeystore(dir string) (*keystore.KeyStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}
	return keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), nil
}

// LoadWalletManager loads an existing keystore.
// Returns (nil, nil) if the directory holds no accounts.
func LoadWalletManager(dir string) (*WalletManager, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) == 0 {
		return nil, nil
	}
	return &WalletManager{keystore: ks, dir: dir}, nil
}

// CreateWalletManager creates a new account in an empty keystore directory.
func CreateWalletManager(dir string, password string) (*WalletManager, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("wallet already exists in %s", dir)
	}
	if _, err := ks.NewAccount(password); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &WalletManager{keystore: ks, dir: dir}, nil
}

// ImportWalletManager imports a hex private key into an empty keystore directory.
func ImportWalletManager(dir string, privKeyHex string, password string) (*WalletManager, error) {
	ks, err := openKeystore(dir)
	if err != nil {
		return nil, err
	}
	if len(ks.Accounts()) > 0 {
		return nil, fmt.Errorf("wallet already exists in %s", dir)
	}

	privateKey, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if _, err := ks.ImportECDSA(privateKey, password); err != nil {
		return nil, fmt.Errorf("failed to import key: %w", err)
	}
	return &WalletManager{keystore: ks, dir: dir}, nil
}

// Dir returns the keystore directory
func (wm *WalletManager) Dir() string {
	return wm.dir
}

// Accounts returns every address in the keystore, in keystore order.
func (wm *WalletManager) Accounts() []common.Address {
	accs := wm.keystore.Accounts()
	out := make([]common.Address, len(accs))
	for i, a := range accs {
		out[i] = a.Address
	}
	return out
}

// Address returns the primary (first) account.
func (wm *WalletManager) Address() common.Address {
	accs := wm.keystore.Accounts()
	if len(accs) == 0 {
		return common.Address{}
	}
	return accs[0].Address
}

func (wm *WalletManager) account(addr common.Address) (accounts.Account, error) {
	acc, err := wm.keystore.Find(accounts.Account{Address: addr})
	if err != nil {
		return accounts.Account{}, fmt.Errorf("account %s not in keystore: %w", addr.Hex(), err)
	}
	return acc, nil
}

// Unlock decrypts the key for addr and keeps it in memory until Lock.
func (wm *WalletManager) Unlock(addr common.Address, password string) error {
	acc, err := wm.account(addr)
	if err != nil {
		return err
	}
	if err := wm.keystore.Unlock(acc, password); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", addr.Hex(), err)
	}
	return nil
}

// Lock removes the decrypted key for addr from memory.
func (wm *WalletManager) Lock(addr common.Address) error {
	return wm.keystore.Lock(addr)
}

// Transactor returns signing options for addr on chainID. The account must
// be unlocked.
func (wm *WalletManager) Transactor(addr common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	acc, err := wm.account(addr)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(wm.keystore, acc, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return opts, nil
}

// SignHash signs a 32-byte hash with an unlocked account.
func (wm *WalletManager) SignHash(addr common.Address, hash []byte) ([]byte, error) {
	acc, err := wm.account(addr)
	if err != nil {
		return nil, err
	}
	sig, err := wm.keystore.SignHash(acc, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	return sig, nil
}

// ExportKey decrypts and returns the private key of the primary account.
func (wm *WalletManager) ExportKey(password string) (*ecdsa.PrivateKey, error) {
	acc, err := wm.account(wm.Address())
	if err != nil {
		return nil, err
	}
	keyJSON, err := os.ReadFile(acc.URL.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}
	return key.PrivateKey, nil
}
