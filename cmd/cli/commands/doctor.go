package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/identity"
)

// CheckResult is one doctor finding.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, warning, error, skipped
	Detail string `json:"detail"`
}

var doctorTimeout time.Duration

func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Long: `Run diagnostic checks against the configuration and the services it names.

The doctor command checks:
- Configuration validity
- Keystore wallet and password availability
- RPC endpoint reachability and chain id
- Staking contract reachability
- Allow-list store reachability
- Notification mail configuration

Exits non-zero when any check fails.`,
		RunE: runDoctor,
	}
	cmd.Flags().DurationVar(&doctorTimeout, "timeout", 15*time.Second, "Overall time limit for network checks")
	return cmd
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	a, err := GetApp()
	if err != nil {
		return err
	}
	defer a.Close()

	results := runChecks(ctx, a)

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Println(SectionHeader("Stakeport doctor"))
	failed := 0
	for _, r := range results {
		fmt.Println(DoctorCheck(r.Status, r.Name, r.Detail))
		if r.Status == "error" {
			failed++
		}
	}
	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	Success("All checks passed")
	return nil
}

func runChecks(ctx context.Context, a *app.App) []CheckResult {
	var out []CheckResult
	add := func(name, status, detail string) {
		out = append(out, CheckResult{Name: name, Status: status, Detail: detail})
	}

	if err := a.Config.Validate(); err != nil {
		add("config", "error", err.Error())
	} else {
		add("config", "ok", configPath())
	}

	wm, err := identity.LoadWalletManager(a.Config.Wallet.KeystoreDir)
	switch {
	case err != nil:
		add("keystore", "error", err.Error())
	case wm == nil:
		add("keystore", "warning", "no wallet; create one with: stakeport wallet create")
	default:
		add("keystore", "ok", wm.Address().Hex())
		if _, err := identity.ResolvePassword(wm.Address(), a.Config.Wallet.PasswordFile); err != nil {
			add("password", "warning", "not stored; reconnecting will prompt")
		} else {
			add("password", "ok", "available without prompting")
		}
	}

	f, err := a.Factory(ctx)
	if err != nil {
		add("rpc", "error", err.Error())
	} else {
		add("rpc", "ok", fmt.Sprintf("%s (chain %s)", a.Config.Network.RPCURL, f.Client().ChainID()))
	}

	if a.Config.Contracts.Staking == "" {
		add("staking", "skipped", "contracts.staking not set")
	} else if f != nil {
		if sc, err := a.Staking(ctx); err != nil {
			add("staking", "error", err.Error())
		} else {
			add("staking", "ok", sc.Address().Hex())
		}
	}

	if gate, err := a.Gate(ctx); err != nil {
		add("store", "warning", err.Error())
	} else if _, err := gate.UserTypes(ctx); err != nil {
		add("store", "error", err.Error())
	} else {
		add("store", "ok", a.Config.Store.Backend)
	}

	if _, err := a.Notifier(); err != nil {
		add("mail", "warning", err.Error())
	} else {
		add("mail", "ok", a.Config.Mail.Provider)
	}
	return out
}
