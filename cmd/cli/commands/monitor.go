package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stakeport/stakeport/internal/balance"
	"github.com/stakeport/stakeport/internal/util"
	"github.com/stakeport/stakeport/pkg/types"
)

var (
	monitorRefresh int
)

func NewMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live session and balance view",
		Long: `Display the wallet session and token balances, refreshed periodically.

Account and chain changes made in the wallet are picked up immediately.
Press Ctrl+C to exit.`,
		RunE: runMonitor,
	}

	cmd.Flags().IntVarP(&monitorRefresh, "refresh", "r", 15, "Refresh interval in seconds")

	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorRefresh < 1 {
		return fmt.Errorf("refresh interval must be at least 1 second")
	}
	ctx := cmd.Context()
	a, err := GetApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Sessions(ctx)
	if err != nil {
		return err
	}
	release, err := sessions.Watch(ctx)
	if err != nil {
		return err
	}
	defer release()

	updates := make(chan *types.BalanceSnapshot, 1)
	syncer, err := a.Balances(ctx, balance.WithUpdateHook(func(snap *types.BalanceSnapshot) {
		select {
		case updates <- snap:
		default:
		}
	}))
	if err != nil {
		return err
	}

	changes, unsub := sessions.Subscribe(4)
	defer unsub()
	view, unsubView := sessions.Subscribe(4)
	defer unsubView()
	util.SafeGoWithName("monitor-balances", func() { syncer.Run(ctx, changes) })

	// Handle Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(time.Duration(monitorRefresh) * time.Second)
	defer ticker.Stop()

	refresh := func() {
		if sess := sessions.Session(); sess.Connected {
			syncer.Refresh(ctx, *sess.Address)
		}
	}
	refresh()
	displayDashboard(sessions.Session(), syncer.Snapshot())

	for {
		select {
		case <-sigChan:
			fmt.Println("\nExiting monitor...")
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			refresh()
		case <-view:
		case <-updates:
		}
		displayDashboard(sessions.Session(), syncer.Snapshot())
	}
}

func clearScreen() {
	if isTTY() {
		fmt.Print("\033[H\033[2J")
	}
}

func displayDashboard(sess types.Session, snap *types.BalanceSnapshot) {
	clearScreen()

	state := "disconnected"
	if sess.Connected {
		state = "connected"
	}
	fmt.Println(StatusBox(Logo()+" monitor", [][2]string{
		{"Session", StatusBadge(state)},
		{"Address", sess.AddressHex()},
		{"Chain", chainLabel(sess.ChainID)},
	}))

	if snap != nil {
		rows := make([][]string, 0, len(snap.Balances))
		for _, sym := range snap.Symbols() {
			tb := snap.Balances[sym]
			st := "ok"
			if tb.Failed {
				st = "failed"
			}
			rows = append(rows, []string{sym, FormatAmount(tb.Raw, tb.Decimals, sym), StatusBadge(st)})
		}
		fmt.Println(RenderTable([]string{"TOKEN", "BALANCE", "STATUS"}, rows))
		fmt.Println(Hint("Updated " + snap.TakenAt.Local().Format("15:04:05")))
	} else if sess.Connected {
		fmt.Println(Hint("Reading balances..."))
	}
	fmt.Println(Hint("Press Ctrl+C to exit"))
}
