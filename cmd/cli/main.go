package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/cmd/cli/commands"
)

var rootCmd = &cobra.Command{
	Use:   "stakeport",
	Short: "BNB Smart Chain staking client",
	Long:  "Connect a keystore wallet, track token balances and manage stakes on the staking vault",
	SilenceUsage: true,
}

func init() {
	// Add global persistent flags
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Path to config file (default: ~/.stakeport/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&commands.OutputFormat, "output", "o", "", "Output format: json or plain")
	rootCmd.PersistentFlags().BoolVarP(&commands.AssumeYes, "yes", "y", false, "Approve wallet prompts without asking")
}

func main() {
	// Register commands
	rootCmd.AddCommand(commands.NewInitCmd())
	rootCmd.AddCommand(commands.NewWalletCmd())
	rootCmd.AddCommand(commands.NewConnectCmd())
	rootCmd.AddCommand(commands.NewDisconnectCmd())
	rootCmd.AddCommand(commands.NewStatusCmd())
	rootCmd.AddCommand(commands.NewNetworkCmd())
	rootCmd.AddCommand(commands.NewBalanceCmd())
	rootCmd.AddCommand(commands.NewMonitorCmd())
	rootCmd.AddCommand(commands.NewStakeCmd())
	rootCmd.AddCommand(commands.NewStrategyCmd())
	rootCmd.AddCommand(commands.NewAdminCmd())
	rootCmd.AddCommand(commands.NewAccessCmd())
	rootCmd.AddCommand(commands.NewNotifyCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())
	rootCmd.AddCommand(commands.NewDoctorCmd())
	rootCmd.AddCommand(commands.NewCompletionCmd())
	rootCmd.AddCommand(commands.NewManCmd())
	rootCmd.AddCommand(commands.NewVersionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
