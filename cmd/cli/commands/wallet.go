package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stakeport/stakeport/internal/identity"
)

// NewWalletCmd creates the wallet command group
func NewWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the local BSC wallet",
		Long: `Manage the keystore wallet that signs staking transactions.

The wallet is stored as an encrypted keystore file (geth V3 format).
Connecting it to stakeport is a separate step: see "stakeport connect".

The wallet password can be stored in your platform keyring:
  macOS:           Keychain
  Linux (desktop): GNOME Keyring / KDE Wallet
  Windows:         Credential Manager

Examples:
  stakeport wallet create   # Generate a new wallet
  stakeport wallet import   # Import from a private key
  stakeport wallet show     # Show address and keystore path
  stakeport wallet export   # Export private key (use with caution)`,
	}

	cmd.AddCommand(newWalletCreateCmd())
	cmd.AddCommand(newWalletImportCmd())
	cmd.AddCommand(newWalletShowCmd())
	cmd.AddCommand(newWalletExportCmd())
	cmd.AddCommand(newWalletForgetPasswordCmd())

	return cmd
}

// storePasswordInKeyring attempts to store the wallet password in the
// platform keyring, printing fallback instructions when none is available.
func storePasswordInKeyring(addr common.Address, password string) {
	if backend, err := identity.StoreWalletPassword(addr, password); err == nil {
		fmt.Printf("  Password saved to %s\n", backend)
		fmt.Println("  The wallet will be unlocked automatically when you reconnect.")
		return
	}

	fmt.Println("  Could not store password in system keyring.")
	fmt.Println("  For automatic wallet unlock, set one of:")
	fmt.Printf("    - %s environment variable\n", identity.PasswordEnvVar)
	fmt.Println("    - wallet.password_file in config.yaml")
}

func newWalletCreateCmd() *cobra.Command {
	var keystoreDir string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet",
		Long:  "Create a new Ethereum wallet with a password-encrypted keystore file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Check if wallet already exists
			wm, err := identity.LoadWalletManager(keystoreDir)
			if err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			}
			if wm != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", keystoreDir, wm.Address().Hex())
			}

			// Retry loop for password validation
			const maxAttempts = 3
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				fmt.Fprint(os.Stderr, "Enter wallet password: ")
				password, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				if len(password) < 8 {
					Warning("Password must be at least 8 characters. Try again.")
					continue
				}

				fmt.Fprint(os.Stderr, "Confirm wallet password: ")
				confirm, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				if password != confirm {
					Warning("Passwords do not match. Try again.")
					continue
				}

				// Create wallet
				wm, err = identity.CreateWalletManager(keystoreDir, password)
				if err != nil {
					return fmt.Errorf("failed to create wallet: %w", err)
				}

				fmt.Println()
				Success("Wallet created!")
				fmt.Println(StatusBox("Wallet", [][2]string{
					{"Address", wm.Address().Hex()},
					{"Keystore", keystoreDir},
				}))
				storePasswordInKeyring(wm.Address(), password)
				fmt.Println()
				Warning("Back up your keystore directory and remember your password.")
				fmt.Println(Hint("If you lose either, your funds are unrecoverable."))
				return nil
			}

			return fmt.Errorf("too many failed attempts")
		},
	}

	cmd.Flags().StringVar(&keystoreDir, "keystore", GetKeystoreDir(), "Path to keystore directory")

	return cmd
}

func newWalletImportCmd() *cobra.Command {
	var keystoreDir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a private key",
		Long:  "Import an existing Ethereum private key into an encrypted keystore file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Check if wallet already exists
			wm, err := identity.LoadWalletManager(keystoreDir)
			if err != nil {
				return fmt.Errorf("failed to check keystore: %w", err)
			}
			if wm != nil {
				return fmt.Errorf("wallet already exists at %s (address: %s)", keystoreDir, wm.Address().Hex())
			}

			// Prompt for private key with retry
			const maxAttempts = 3
			var privKeyHex string
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				fmt.Fprint(os.Stderr, "Enter private key (hex, with or without 0x prefix): ")
				input, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read private key: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				input = strings.TrimPrefix(input, "0x")
				if len(input) != 64 {
					Warning(fmt.Sprintf("Private key must be 64 hex characters (32 bytes), got %d. Try again.", len(input)))
					continue
				}
				privKeyHex = input
				break
			}
			if privKeyHex == "" {
				return fmt.Errorf("too many failed attempts")
			}

			// Password with retry
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				fmt.Fprint(os.Stderr, "Enter wallet password: ")
				password, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				if len(password) < 8 {
					Warning("Password must be at least 8 characters. Try again.")
					continue
				}

				fmt.Fprint(os.Stderr, "Confirm wallet password: ")
				confirm, err := readPasswordNoEcho()
				if err != nil {
					return fmt.Errorf("failed to read confirmation: %w", err)
				}
				fmt.Fprintln(os.Stderr)

				if password != confirm {
					Warning("Passwords do not match. Try again.")
					continue
				}

				// Import wallet
				wm, err = identity.ImportWalletManager(keystoreDir, privKeyHex, password)
				if err != nil {
					return fmt.Errorf("failed to import wallet: %w", err)
				}

				fmt.Println()
				Success("Wallet imported!")
				fmt.Println(StatusBox("Wallet", [][2]string{
					{"Address", wm.Address().Hex()},
					{"Keystore", keystoreDir},
				}))
				storePasswordInKeyring(wm.Address(), password)
				return nil
			}

			return fmt.Errorf("too many failed attempts")
		},
	}

	cmd.Flags().StringVar(&keystoreDir, "keystore", GetKeystoreDir(), "Path to keystore directory")

	return cmd
}

func newWalletShowCmd() *cobra.Command {
	var keystoreDir string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show wallet address and keystore path",
		Long:  "Display the wallet address and keystore directory. No password needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			wm, err := identity.LoadWalletManager(keystoreDir)
			if err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			if wm == nil {
				Info("No wallet found.")
				fmt.Println(Hint("Create one with: stakeport wallet create"))
				return nil
			}

			pwStatus := "not stored (manual unlock required)"
			if pw, err := identity.RetrieveWalletPassword(wm.Address()); err == nil && pw != "" {
				pwStatus = "stored in platform keyring"
			}

			if jsonOutput() {
				return printJSON(map[string]string{
					"address":  wm.Address().Hex(),
					"keystore": keystoreDir,
					"password": pwStatus,
				})
			}
			fmt.Println(StatusBox("Wallet", [][2]string{
				{"Address", wm.Address().Hex()},
				{"Keystore", keystoreDir},
				{"Password", pwStatus},
			}))

			return nil
		},
	}

	cmd.Flags().StringVar(&keystoreDir, "keystore", GetKeystoreDir(), "Path to keystore directory")

	return cmd
}

func newWalletExportCmd() *cobra.Command {
	var keystoreDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the wallet's private key",
		Long: `Export the wallet's private key in hex format.

WARNING: The private key controls all funds in this wallet.
Never share it, and clear your terminal history after use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			wm, err := identity.LoadWalletManager(keystoreDir)
			if err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			if wm == nil {
				return fmt.Errorf("no wallet found at %s", keystoreDir)
			}

			fmt.Fprintf(os.Stderr, "WARNING: This will display your private key in plain text.\n")
			fmt.Fprintf(os.Stderr, "Anyone with this key can steal all funds in this wallet.\n\n")

			// Prompt for password
			fmt.Fprint(os.Stderr, "Enter wallet password: ")
			password, err := readPasswordNoEcho()
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			fmt.Fprintln(os.Stderr)

			privKey, err := wm.ExportKey(password)
			if err != nil {
				return fmt.Errorf("failed to export key (wrong password?): %w", err)
			}

			privKeyBytes := crypto.FromECDSA(privKey)
			fmt.Println()
			fmt.Printf("Address:     %s\n", wm.Address().Hex())
			fmt.Printf("Private Key: %s\n", hex.EncodeToString(privKeyBytes))
			fmt.Println()
			fmt.Fprintln(os.Stderr, "Clear your terminal history: history -c && history -w")

			return nil
		},
	}

	cmd.Flags().StringVar(&keystoreDir, "keystore", GetKeystoreDir(), "Path to keystore directory")

	return cmd
}

func newWalletForgetPasswordCmd() *cobra.Command {
	var keystoreDir string

	cmd := &cobra.Command{
		Use:   "forget-password",
		Short: "Remove the wallet password from the system keyring",
		Long: `Remove the stored wallet password from the platform keyring.

After this, reconnecting the wallet requires the password to be typed,
or supplied through the environment or a password file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			wm, err := identity.LoadWalletManager(keystoreDir)
			if err != nil {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			if wm == nil {
				return fmt.Errorf("no wallet found at %s", keystoreDir)
			}

			if err := identity.DeleteWalletPassword(wm.Address()); err != nil {
				fmt.Println("No stored password found in the keyring.")
				return nil
			}
			fmt.Println("Removed password from platform keyring")
			return nil
		},
	}

	cmd.Flags().StringVar(&keystoreDir, "keystore", GetKeystoreDir(), "Path to keystore directory")

	return cmd
}

// readPasswordNoEcho reads a line from stdin with echo disabled.
func readPasswordNoEcho() (string, error) {
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	return string(password), nil
}
