package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/chain"
	"github.com/stakeport/stakeport/internal/identity"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/wallet"
	"github.com/stakeport/stakeport/pkg/types"
)

// GetApp builds the component set for one CLI invocation. Callers must
// Close it.
func GetApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if level == "info" {
		// keep command output readable; -v style debugging goes through config
		level = "warn"
	}
	if err := logging.Configure(os.Stderr, level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{
		Approver: confirmApproval,
		Password: resolveWalletPassword(cfg.Wallet.PasswordFile),
	}), nil
}

// requireSession returns the connected account, asking the wallet to
// connect when no session was restored.
func requireSession(ctx context.Context, a *app.App) (types.Session, error) {
	sessions, err := a.Sessions(ctx)
	if err != nil {
		return types.Session{}, err
	}
	sess := sessions.Session()
	if sess.Connected {
		return sess, nil
	}
	sess, err = sessions.Connect(ctx)
	if err != nil {
		if wallet.IsUserRejection(err) {
			return types.Session{}, fmt.Errorf("connection rejected")
		}
		return types.Session{}, err
	}
	return sess, nil
}

// confirmApproval is the wallet's approval prompt. Without a terminal every
// request is declined unless --yes was given.
func confirmApproval(ctx context.Context, req wallet.ApprovalRequest) (bool, error) {
	if AssumeYes {
		return true, nil
	}
	if !isTTY() {
		return false, nil
	}

	title, desc := describeApproval(req)
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Description(desc).
			Affirmative("Approve").
			Negative("Reject").
			Value(&ok),
	)).WithTheme(huh.ThemeBase()).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

func describeApproval(req wallet.ApprovalRequest) (string, string) {
	switch req.Kind {
	case wallet.ApproveConnect:
		return "Connect wallet?", fmt.Sprintf("Account %s will be shared with stakeport", req.Account.Hex())
	case wallet.ApproveAddChain:
		if req.Network == nil {
			return "Add network?", ""
		}
		return "Add network?", fmt.Sprintf("%s (chain %s)\nRPC: %s",
			req.Network.ChainName, req.Network.ChainID, strings.Join(req.Network.RPCURLs, ", "))
	case wallet.ApproveSign:
		lines := []string{fmt.Sprintf("From: %s", req.Account.Hex())}
		if req.Tx != nil {
			if to := req.Tx.To(); to != nil {
				lines = append(lines, fmt.Sprintf("To:   %s", to.Hex()))
			}
			if v := req.Tx.Value(); v != nil && v.Sign() > 0 {
				lines = append(lines, fmt.Sprintf("Value: %s", chain.FormatUnits(v, 18)))
			}
			lines = append(lines, fmt.Sprintf("Gas:  %d", req.Tx.Gas()))
		}
		return "Sign transaction?", strings.Join(lines, "\n")
	}
	return string(req.Kind), ""
}

// resolveWalletPassword tries the non-interactive sources first and falls
// back to a prompt on a terminal.
func resolveWalletPassword(passwordFile string) wallet.PasswordFunc {
	return func(addr common.Address) (string, error) {
		pw, err := identity.ResolvePassword(addr, passwordFile)
		if err == nil {
			return pw, nil
		}
		if !isTTY() {
			return "", err
		}
		fmt.Fprintf(os.Stderr, "Enter password for %s: ", FormatAddress(addr.Hex()))
		pw, perr := readPasswordNoEcho()
		fmt.Fprintln(os.Stderr)
		if perr != nil {
			return "", fmt.Errorf("failed to read password: %w", perr)
		}
		return pw, nil
	}
}

// parseAmount converts a decimal token amount into base units.
func parseAmount(s string, decimals uint8) (*big.Int, error) {
	v, err := chain.ParseUnits(s, decimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// parseIndex parses a non-negative integer argument.
func parseIndex(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

// reportTx prints the outcome of a state-changing call and turns anything
// but a confirmed transaction into an error. A confirmed transaction is
// followed by a balance resync.
func reportTx(ctx context.Context, a *app.App, res *chain.TxResult, err error) error {
	if res != nil {
		fmt.Println(TxLine(res, a.Config.Network.ExplorerURL))
	}
	if err != nil {
		if wallet.IsUserRejection(err) {
			return fmt.Errorf("transaction rejected in wallet: %w", err)
		}
		return err
	}
	if res.State != types.TxConfirmed {
		return fmt.Errorf("%s %s", res.Method, res.State)
	}
	Success(res.Method + " confirmed")

	if snap := resyncBalances(ctx, a); snap != nil && !jsonOutput() {
		fmt.Println(renderBalances(snap))
	}
	return nil
}

// balanceRefresher is the part of the balance synchronizer used after a
// confirmed transaction.
type balanceRefresher interface {
	Refresh(ctx context.Context, address common.Address) *types.BalanceSnapshot
}

func resyncBalances(ctx context.Context, a *app.App) *types.BalanceSnapshot {
	sessions, err := a.Sessions(ctx)
	if err != nil {
		logging.Debug("skipping balance resync", logging.Component("cli"), logging.Err(err))
		return nil
	}
	return refreshAfterTx(ctx, sessions.Session(), func() (balanceRefresher, error) {
		syncer, err := a.Balances(ctx)
		if err != nil {
			return nil, err
		}
		return syncer, nil
	})
}

// refreshAfterTx re-reads the session's balances. No configured tokens is
// not an error; the command simply has nothing to show.
func refreshAfterTx(ctx context.Context, sess types.Session, open func() (balanceRefresher, error)) *types.BalanceSnapshot {
	if !sess.Connected {
		return nil
	}
	syncer, err := open()
	if errors.Is(err, app.ErrNotConfigured) {
		return nil
	}
	if err != nil {
		Warning("Could not refresh balances: " + err.Error())
		return nil
	}
	return syncer.Refresh(ctx, *sess.Address)
}
