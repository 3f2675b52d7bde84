package commands

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/chain"
)

// NewStakeCmd creates the staking command group
func NewStakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Staking vault operations",
		Long: `Read staking plans and positions and send staking transactions.

Deposits and new stakes first approve the vault to spend the staking token
when the current allowance is too small. Each transaction is followed
until it is confirmed, reverted or dropped.`,
	}

	cmd.AddCommand(newStakePlansCmd())
	cmd.AddCommand(newStakePositionsCmd())
	cmd.AddCommand(newStakeDepositCmd())
	cmd.AddCommand(newStakeWithdrawCmd())
	cmd.AddCommand(newStakeOpenCmd())
	cmd.AddCommand(newStakeIndexCmd("claim", "Claim accrued rewards of a stake", func(sc *chain.StakingContract) indexOp { return sc.ClaimRewards }))
	cmd.AddCommand(newStakeIndexCmd("end", "End a matured stake and return principal plus rewards", func(sc *chain.StakingContract) indexOp { return sc.EndStake }))
	cmd.AddCommand(newStakeIndexCmd("emergency-withdraw", "Withdraw principal early, forfeiting rewards", func(sc *chain.StakingContract) indexOp { return sc.EmergencyWithdraw }))

	return cmd
}

type indexOp func(ctx context.Context, stakeIndex *big.Int) (*chain.TxResult, error)

// tokenMeta is the staking token's display precision.
type tokenMeta struct {
	decimals uint8
	symbol   string
}

func stakingTokenMeta(ctx context.Context, sc *chain.StakingContract) tokenMeta {
	meta := tokenMeta{decimals: 18, symbol: "TOKEN"}
	tok := sc.Token()
	if tok == nil {
		return meta
	}
	if d, err := tok.Decimals(ctx); err == nil {
		meta.decimals = d
	}
	if s, err := tok.Symbol(ctx); err == nil && s != "" {
		meta.symbol = s
	}
	return meta
}

// openStaking builds the app and the staking contract client.
func openStaking(ctx context.Context) (*app.App, *chain.StakingContract, error) {
	a, err := GetApp()
	if err != nil {
		return nil, nil, err
	}
	sc, err := a.Staking(ctx)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, sc, nil
}

// sendTx runs a state-changing call. Wallet prompts need the terminal, so
// the spinner is only shown when prompts are pre-approved.
func sendTx(msg string, fn func() (*chain.TxResult, error)) (*chain.TxResult, error) {
	if !AssumeYes {
		Info(msg + "...")
		return fn()
	}
	var res *chain.TxResult
	err := WithSpinner(msg, func() error {
		var err error
		res, err = fn()
		return err
	})
	return res, err
}

func newStakePlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List staking plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			plans, err := sc.Plans(ctx)
			if err != nil {
				return fmt.Errorf("failed to read plans: %w", err)
			}
			if jsonOutput() {
				return printJSON(plans)
			}
			meta := stakingTokenMeta(ctx, sc)

			rows := make([][]string, 0, len(plans))
			for _, p := range plans {
				state := "active"
				if !p.Active {
					state = "inactive"
				}
				rows = append(rows, []string{
					p.ID.String(),
					formatDuration(p.Duration),
					fmt.Sprintf("%.2f%%", chain.APR(p)),
					FormatAmount(p.MinAmount, meta.decimals, meta.symbol),
					StatusBadge(state),
				})
			}
			fmt.Println(RenderTable([]string{"PLAN", "LOCK", "APR", "MINIMUM", "STATUS"}, rows))
			return nil
		},
	}
}

func newStakePositionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "positions [address]",
		Short: "List stake positions",
		Long:  "List the stake positions of an address, or of the connected wallet when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var user common.Address
			if len(args) == 1 {
				if !common.IsHexAddress(args[0]) {
					return fmt.Errorf("invalid address %q", args[0])
				}
				user = common.HexToAddress(args[0])
			} else {
				sess, err := requireSession(ctx, a)
				if err != nil {
					return err
				}
				user = *sess.Address
			}

			positions, err := sc.GetUserStakes(ctx, user)
			if err != nil {
				return fmt.Errorf("failed to read stakes: %w", err)
			}
			if jsonOutput() {
				return printJSON(positions)
			}
			if len(positions) == 0 {
				Info("No stakes")
				return nil
			}

			meta := stakingTokenMeta(ctx, sc)
			now := time.Now()
			rows := make([][]string, 0, len(positions))
			for i, pos := range positions {
				idx := big.NewInt(int64(i))
				reward := "-"
				if pos.Active {
					if r, err := sc.CalculateRewards(ctx, user, idx); err == nil {
						reward = FormatAmount(r, meta.decimals, meta.symbol)
					}
				}
				state := "ended"
				switch {
				case pos.Active && pos.Matured(now):
					state = "matured"
				case pos.Active:
					state = "locked"
				}
				rows = append(rows, []string{
					strconv.Itoa(i),
					pos.PlanID.String(),
					FormatAmount(pos.Amount, meta.decimals, meta.symbol),
					pos.EndTime.Local().Format("2006-01-02 15:04"),
					reward,
					StatusBadge(state),
				})
			}
			fmt.Println(KeyValue("Address", user.Hex()))
			fmt.Println(RenderTable([]string{"#", "PLAN", "AMOUNT", "UNLOCKS", "REWARDS", "STATUS"}, rows))
			fmt.Println(Hint("Matured stakes show ok and can be ended with: stakeport stake end <#>"))
			return nil
		},
	}
}

func newStakeDepositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Deposit tokens into the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			amount, err := parseAmount(args[0], stakingTokenMeta(ctx, sc).decimals)
			if err != nil {
				return err
			}
			if _, err := requireSession(ctx, a); err != nil {
				return err
			}
			res, err := sendTx("Depositing", func() (*chain.TxResult, error) {
				return sc.DepositWithApproval(ctx, amount)
			})
			return reportTx(ctx, a, res, err)
		},
	}
}

func newStakeWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <amount>",
		Short: "Withdraw free vault balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			amount, err := parseAmount(args[0], stakingTokenMeta(ctx, sc).decimals)
			if err != nil {
				return err
			}
			if _, err := requireSession(ctx, a); err != nil {
				return err
			}
			res, err := sendTx("Withdrawing", func() (*chain.TxResult, error) {
				return sc.Withdraw(ctx, amount)
			})
			return reportTx(ctx, a, res, err)
		},
	}
}

func newStakeOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <plan-id> <amount>",
		Short: "Stake tokens into a plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID, err := parseIndex("plan id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := sc.Plan(ctx, planID)
			if err != nil {
				return fmt.Errorf("failed to read plan %s: %w", planID, err)
			}
			if !plan.Active {
				return fmt.Errorf("plan %s is not active", planID)
			}
			meta := stakingTokenMeta(ctx, sc)
			amount, err := parseAmount(args[1], meta.decimals)
			if err != nil {
				return err
			}
			if plan.MinAmount != nil && amount.Cmp(plan.MinAmount) < 0 {
				return fmt.Errorf("amount is below the plan minimum of %s", FormatAmount(plan.MinAmount, meta.decimals, meta.symbol))
			}

			if _, err := requireSession(ctx, a); err != nil {
				return err
			}
			res, err := sendTx("Staking", func() (*chain.TxResult, error) {
				return sc.StakeWithApproval(ctx, planID, amount)
			})
			if err := reportTx(ctx, a, res, err); err != nil {
				return err
			}
			if res != nil {
				fmt.Println(KeyValue("Projected", fmt.Sprintf("%.2f%% APR over %s", chain.APR(plan), formatDuration(plan.Duration))))
			}
			return nil
		},
	}
}

func newStakeIndexCmd(use, short string, pick func(*chain.StakingContract) indexOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <stake-index>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex("stake index", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, sc, err := openStaking(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := requireSession(ctx, a); err != nil {
				return err
			}
			op := pick(sc)
			res, err := sendTx("Sending "+use, func() (*chain.TxResult, error) {
				return op(ctx, idx)
			})
			return reportTx(ctx, a, res, err)
		},
	}
}

func formatDuration(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days > 0 && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return d.String()
}
