package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/pkg/types"
)

// NewBalanceCmd creates the token balance command.
func NewBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Token balances of the connected wallet",
		Long: `Read every configured token balance for the connected account.

Tokens whose read fails are shown as 0 and marked failed; the other
balances are still reported.`,
		RunE: runBalance,
	}
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := GetApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	sess, err := requireSession(ctx, a)
	if err != nil {
		return err
	}
	syncer, err := a.Balances(ctx)
	if err != nil {
		return err
	}

	var snap *types.BalanceSnapshot
	err = WithSpinner("Reading balances", func() error {
		snap = syncer.Refresh(ctx, *sess.Address)
		return nil
	})
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(snap)
	}

	rows := balanceRows(snap)
	if f, err := a.Factory(ctx); err == nil {
		if native, err := f.Client().NativeBalance(ctx, *sess.Address); err == nil {
			sym := a.Config.Network.CurrencySymbol
			rows = append(rows, []string{sym + " (gas)", FormatAmount(native, a.Config.Network.CurrencyDecimals, sym), StatusBadge("ok")})
		}
	}

	fmt.Println(KeyValue("Address", sess.AddressHex()))
	fmt.Println(RenderTable(balanceHeaders, rows))
	if n := failedTokens(snap); n > 0 {
		Warning(fmt.Sprintf("%d token read(s) failed and are shown as 0", n))
	}
	return nil
}

var balanceHeaders = []string{"TOKEN", "BALANCE", "STATUS"}

func balanceRows(snap *types.BalanceSnapshot) [][]string {
	rows := make([][]string, 0, len(snap.Balances))
	for _, sym := range snap.Symbols() {
		tb := snap.Balances[sym]
		state := "ok"
		if tb.Failed {
			state = "failed"
		}
		rows = append(rows, []string{sym, FormatAmount(tb.Raw, tb.Decimals, sym), StatusBadge(state)})
	}
	return rows
}

func failedTokens(snap *types.BalanceSnapshot) int {
	n := 0
	for _, tb := range snap.Balances {
		if tb.Failed {
			n++
		}
	}
	return n
}

// renderBalances is the balance table shown after a confirmed transaction.
func renderBalances(snap *types.BalanceSnapshot) string {
	return SectionHeader("Balances") + "\n" + RenderTable(balanceHeaders, balanceRows(snap))
}
