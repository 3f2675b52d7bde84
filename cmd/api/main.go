package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stakeport/stakeport/internal/api"
	"github.com/stakeport/stakeport/internal/app"
	"github.com/stakeport/stakeport/internal/balance"
	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/internal/util"
	"github.com/stakeport/stakeport/pkg/types"
)

func main() {
	// Parse flags
	configPath := flag.String("config", config.DefaultConfigPath(), "Path to config file")
	httpAddr := flag.String("http", "", "HTTP listen address (overrides api.listen_addr)")
	trustProxy := flag.Bool("trust-proxy", false, "Trust X-Forwarded-For for client IPs")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Configure(os.Stdout, cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	collector := metrics.NewCollector()
	// The server never prompts; it only follows a session restored from a
	// previous interactive connect.
	a := app.New(cfg, app.Options{Metrics: collector})
	defer a.Close()

	sessions, err := a.Sessions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening wallet: %v\n", err)
		os.Exit(1)
	}
	release, err := sessions.Watch(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error watching wallet: %v\n", err)
		os.Exit(1)
	}
	defer release()

	serverCfg := api.ServerConfigFromConfig(cfg.API)
	if *httpAddr != "" {
		serverCfg.HTTPAddr = *httpAddr
	}
	serverCfg.TrustProxy = *trustProxy

	// Optional components degrade to 503 on their routes.
	var balances api.BalanceSource
	var server *api.Server
	syncer, err := a.Balances(ctx, balance.WithUpdateHook(func(snap *types.BalanceSnapshot) {
		if server != nil {
			server.PublishBalances(snap)
		}
	}))
	if err != nil {
		logging.Warn("balance synchronizer disabled", logging.Component("api"), logging.Err(err))
	} else {
		balances = syncer
	}

	var access api.AccessChecker
	if gate, err := a.Gate(ctx); err != nil {
		logging.Warn("authorization gate disabled", logging.Component("api"), logging.Err(err))
	} else {
		access = gate
	}

	server = api.NewServer(serverCfg, sessions, balances, access)
	server.SetMetricsCollector(collector)
	if notifier, err := a.Notifier(); err != nil {
		logging.Warn("registration notifications disabled", logging.Component("api"), logging.Err(err))
	} else {
		server.SetNotifier(notifier)
	}

	relay, unsubRelay := sessions.Subscribe(8)
	defer unsubRelay()
	util.SafeGoWithName("session-relay", func() { server.RelaySessions(ctx, relay) })

	if syncer != nil {
		changes, unsub := sessions.Subscribe(8)
		defer unsub()
		util.SafeGoWithName("balance-sync", func() { syncer.Run(ctx, changes) })
		if sess := sessions.Session(); sess.Connected {
			syncer.Refresh(ctx, *sess.Address)
		}
	}

	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}

	logging.Info("Stakeport API server started",
		"http_addr", serverCfg.HTTPAddr,
		"chain_id", cfg.Network.ChainID,
		"wallet_connected", sessions.Session().Connected,
		logging.Component("api"))

	// Wait for shutdown signal
	<-sigCh
	logging.Info("Shutting down...", logging.Component("api"))
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("Error during shutdown", logging.Err(err), logging.Component("api"))
	}

	logging.Info("Shutdown complete", logging.Component("api"))
}
