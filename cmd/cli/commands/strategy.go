package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/chain"
)

// NewStrategyCmd creates the yield strategy command group
func NewStrategyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Yield strategy status and owner operations",
	}
	cmd.AddCommand(newStrategyStatusCmd())
	cmd.AddCommand(newStrategyTxCmd("harvest", "Harvest strategy yield", func(s *chain.StrategyContract) txOp { return s.Harvest }))
	cmd.AddCommand(newStrategyTxCmd("emergency-exit", "Pull all funds out of the strategy and pause it", func(s *chain.StrategyContract) txOp { return s.EmergencyExit }))
	return cmd
}

type txOp func(ctx context.Context) (*chain.TxResult, error)

func openStrategy(ctx context.Context) (*app.App, *chain.StrategyContract, error) {
	a, err := GetApp()
	if err != nil {
		return nil, nil, err
	}
	s, err := a.Strategy(ctx)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, s, nil
}

func newStrategyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show strategy state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, s, err := openStrategy(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := s.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to read strategy: %w", err)
			}
			if jsonOutput() {
				return printJSON(st)
			}

			state := "active"
			if st.Paused {
				state = "paused"
			}
			last := "never"
			if !st.LastHarvest.IsZero() {
				last = st.LastHarvest.Local().Format("2006-01-02 15:04")
			}
			fmt.Println(StatusBox("Strategy", [][2]string{
				{"State", StatusBadge(state)},
				{"Deposited", chain.FormatUnits(st.TotalDeposited, 18)},
				{"Last harvest", last},
				{"Owner", st.Owner},
			}))
			return nil
		},
	}
}

func newStrategyTxCmd(use, short string, pick func(*chain.StrategyContract) txOp) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  short + ". Only the strategy owner can send this; the contract rejects anyone else.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, s, err := openStrategy(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := requireSession(ctx, a)
			if err != nil {
				return err
			}
			if owner, err := s.IsOwner(ctx, *sess.Address); err == nil && !owner {
				Warning("Connected wallet is not the strategy owner; the transaction will likely revert")
			}
			op := pick(s)
			res, err := sendTx("Sending "+use, func() (*chain.TxResult, error) {
				return op(ctx)
			})
			return reportTx(ctx, a, res, err)
		},
	}
}
