package commands

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/wallet"
)

// NewConnectCmd connects the keystore wallet.
func NewConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet",
		Long: `Ask the wallet for account access and remember the connection.

Later commands reconnect silently while the connection flag is set and the
password can be resolved from the keyring, environment or password file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sessions, err := a.Sessions(ctx)
			if err != nil {
				return err
			}
			if sess := sessions.Session(); sess.Connected {
				Info(fmt.Sprintf("Already connected as %s", sess.AddressHex()))
				return nil
			}
			sess, err := sessions.Connect(ctx)
			if err != nil {
				if wallet.IsUserRejection(err) {
					Warning("Connection rejected in wallet")
					return nil
				}
				return fmt.Errorf("failed to connect: %w", err)
			}

			Success("Wallet connected")
			fmt.Println(StatusBox("Session", [][2]string{
				{"Address", sess.AddressHex()},
				{"Chain", chainLabel(sess.ChainID)},
			}))
			return nil
		},
	}
}

// NewDisconnectCmd forgets the connection.
func NewDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet",
		Long:  "Clear the session and the remembered connection. The keystore and stored password are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			sessions.Disconnect()
			Success("Wallet disconnected")
			return nil
		},
	}
}

// NewNetworkCmd creates the network command group
func NewNetworkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Show or switch the wallet's network",
	}
	cmd.AddCommand(newNetworkSwitchCmd())
	cmd.AddCommand(newNetworkListCmd())
	return cmd
}

func newNetworkSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <mainnet|testnet|chain-id>",
		Short: "Switch the wallet to another chain",
		Long: `Ask the wallet to switch chains. If the wallet does not know the chain
it is offered the network parameters first and the switch is retried once.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNetworks,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseChainArg(args[0])
			if err != nil {
				return err
			}

			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := requireSession(ctx, a); err != nil {
				return err
			}
			sessions, _ := a.Sessions(ctx)
			if err := switchNetwork(ctx, sessions, target); err != nil {
				return err
			}
			Success(fmt.Sprintf("Switched to %s", chainLabel(sessions.Session().ChainID)))
			return nil
		},
	}
}

func switchNetwork(ctx context.Context, sessions *wallet.Manager, target *big.Int) error {
	err := WithSpinner("Waiting for wallet", func() error {
		return sessions.SwitchNetwork(ctx, target)
	})
	if wallet.IsUserRejection(err) {
		return fmt.Errorf("network switch rejected")
	}
	return err
}

func newNetworkListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List networks offered to the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := GetApp()
			if err != nil {
				return err
			}
			defer a.Close()

			seen := make(map[string]bool)
			var rows [][]string
			for _, n := range a.Networks() {
				if seen[n.ChainID.String()] {
					continue
				}
				seen[n.ChainID.String()] = true
				rows = append(rows, []string{n.ChainID.String(), n.ChainName, n.NativeCurrency.Symbol, strings.Join(n.RPCURLs, ", ")})
			}
			fmt.Println(RenderTable([]string{"CHAIN", "NAME", "CURRENCY", "RPC"}, rows))
			return nil
		},
	}
}

func parseChainArg(s string) (*big.Int, error) {
	switch strings.ToLower(s) {
	case "mainnet", "bsc":
		return big.NewInt(config.ChainIDBSC), nil
	case "testnet", "bsc-testnet":
		return big.NewInt(config.ChainIDBSCTestnet), nil
	}
	id, ok := new(big.Int).SetString(s, 0)
	if !ok || id.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain %q", s)
	}
	return id, nil
}

func chainLabel(id *big.Int) string {
	if id == nil {
		return "unknown"
	}
	switch id.Int64() {
	case config.ChainIDBSC:
		return "BSC mainnet (56)"
	case config.ChainIDBSCTestnet:
		return "BSC testnet (97)"
	}
	return id.String()
}
