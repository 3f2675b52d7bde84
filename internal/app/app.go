// Package app assembles the wallet, chain, balance, authorization and
// notification components from configuration. Components are built on
// first use so a command only pays for what it touches. An App is not safe
// for concurrent construction; build what you need before sharing it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeport/stakeport/internal/authz"
	"github.com/stakeport/stakeport/internal/balance"
	"github.com/stakeport/stakeport/internal/chain"
	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/identity"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/internal/notify"
	"github.com/stakeport/stakeport/internal/wallet"
	"github.com/stakeport/stakeport/pkg/types"
)

// ErrNotConfigured is returned when a component's config section is empty.
var ErrNotConfigured = errors.New("not configured")

// Options customise how the wallet asks the user for things.
type Options struct {
	Approver wallet.Approver
	// Password overrides the env/file/keyring password lookup when the
	// user connects. It may prompt.
	Password wallet.PasswordFunc
	// SilentPassword overrides the lookup used for silent reconnects. It
	// must never prompt.
	SilentPassword wallet.PasswordFunc
	Metrics        *metrics.Collector
}

// App owns the long-lived components and closes them together.
type App struct {
	Config  *config.Config
	Metrics *metrics.Collector
	opts    Options

	provider *wallet.KeystoreProvider
	sessions *wallet.Manager
	client   *chain.Client
	factory  *chain.Factory
	balances *balance.Synchronizer
	gate     *authz.Gate
	pg       *authz.PostgresStore
	notifier *notify.Dispatcher
	closers  []func()
}

// New creates an App for cfg. Nothing is dialled yet.
func New(cfg *config.Config, opts Options) *App {
	return &App{Config: cfg, Metrics: opts.Metrics, opts: opts}
}

// Close releases every component that was built.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) passwordFunc() wallet.PasswordFunc {
	if a.opts.Password != nil {
		return a.opts.Password
	}
	return a.silentPasswordFunc()
}

func (a *App) silentPasswordFunc() wallet.PasswordFunc {
	if a.opts.SilentPassword != nil {
		return a.opts.SilentPassword
	}
	file := a.Config.Wallet.PasswordFile
	return func(addr common.Address) (string, error) {
		return identity.ResolvePassword(addr, file)
	}
}

// Provider returns the keystore-backed wallet provider.
func (a *App) Provider() (*wallet.KeystoreProvider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	dir := a.Config.Wallet.KeystoreDir
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	// The keystore wallet starts out knowing only the configured chain, so
	// switching elsewhere goes through the add-chain prompt.
	p, err := wallet.NewKeystoreProvider(dir, wallet.NetworkFromConfig(a.Config.Network),
		wallet.WithApprover(a.opts.Approver),
		wallet.WithPasswordFunc(a.passwordFunc()),
		wallet.WithSilentPasswordFunc(a.silentPasswordFunc()))
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("failed to watch keystore: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := p.Close(); err != nil {
			logging.Warn("keystore watcher close failed", logging.Err(err))
		}
	})
	a.provider = p
	return p, nil
}

// Networks lists the add-chain parameters offered to the wallet: the
// configured network plus BSC mainnet and testnet.
func (a *App) Networks() []wallet.NetworkParams {
	return []wallet.NetworkParams{
		wallet.NetworkFromConfig(config.DefaultNetwork()),
		wallet.NetworkFromConfig(config.TestnetNetwork()),
		// last so a customised chain id overrides the defaults
		wallet.NetworkFromConfig(a.Config.Network),
	}
}

// Sessions returns the wallet session manager, restoring a previous
// connection silently when the durable flag says there was one.
func (a *App) Sessions(ctx context.Context) (*wallet.Manager, error) {
	if a.sessions != nil {
		return a.sessions, nil
	}
	p, err := a.Provider()
	if err != nil {
		return nil, err
	}

	var flags wallet.FlagStore = &wallet.MemoryFlagStore{}
	if a.Config.Wallet.StateFile != "" {
		flags = wallet.NewFileFlagStore(a.Config.Wallet.StateFile)
	}
	m := wallet.NewManager(p, flags,
		wallet.WithNetworks(a.Networks()...),
		wallet.WithMetrics(a.Metrics))
	m.Restore(ctx)
	a.sessions = m
	return m, nil
}

// Factory dials the RPC endpoint and returns the contract factory bound to
// the wallet session.
func (a *App) Factory(ctx context.Context) (*chain.Factory, error) {
	if a.factory != nil {
		return a.factory, nil
	}
	sessions, err := a.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	ccfg := chain.ClientConfigFromNetwork(a.Config.Network)
	client, err := chain.Dial(ctx, ccfg)
	if err != nil {
		return nil, err
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	tracker := chain.NewTxTracker(client.Backend(),
		chain.WithConfirmations(ccfg.Confirmations),
		chain.WithDropTimeout(ccfg.TxTimeout),
		chain.WithTrackerMetrics(a.Metrics),
		chain.WithTransitionHook(func(r chain.TxResult) {
			logging.Info("transaction state changed",
				logging.Component("chain"),
				"method", r.Method,
				logging.TxHash(r.Hash.Hex()),
				"state", string(r.State))
		}))
	a.factory = chain.NewFactory(client, sessions, a.provider, tracker)
	return a.factory, nil
}

func (a *App) contractAddress(name, addr string) (common.Address, error) {
	if addr == "" {
		return common.Address{}, fmt.Errorf("contracts.%s: %w", name, ErrNotConfigured)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("contracts.%s: invalid address %q", name, addr)
	}
	return common.HexToAddress(addr), nil
}

// Staking returns the staking contract client. Its approval token is the
// contract's own staking token.
func (a *App) Staking(ctx context.Context) (*chain.StakingContract, error) {
	addr, err := a.contractAddress("staking", a.Config.Contracts.Staking)
	if err != nil {
		return nil, err
	}
	f, err := a.Factory(ctx)
	if err != nil {
		return nil, err
	}
	probe := chain.NewStakingContract(f, addr, nil)
	tokenAddr, err := probe.StakingToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read staking token: %w", err)
	}
	return chain.NewStakingContract(f, addr, chain.NewTokenContract(f, tokenAddr)), nil
}

// Strategy returns the yield strategy contract client.
func (a *App) Strategy(ctx context.Context) (*chain.StrategyContract, error) {
	addr, err := a.contractAddress("strategy", a.Config.Contracts.Strategy)
	if err != nil {
		return nil, err
	}
	f, err := a.Factory(ctx)
	if err != nil {
		return nil, err
	}
	return chain.NewStrategyContract(f, addr), nil
}

// Balances returns the balance synchronizer for the configured tokens.
func (a *App) Balances(ctx context.Context, opts ...balance.Option) (*balance.Synchronizer, error) {
	if a.balances != nil {
		return a.balances, nil
	}
	if len(a.Config.Contracts.Tokens) == 0 {
		return nil, fmt.Errorf("contracts.tokens: %w", ErrNotConfigured)
	}
	f, err := a.Factory(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := balance.TokensFromConfig(f, a.Config.Contracts.Tokens)
	if err != nil {
		return nil, err
	}
	opts = append([]balance.Option{balance.WithMetrics(a.Metrics)}, opts...)
	a.balances = balance.NewSynchronizer(tokens, opts...)
	return a.balances, nil
}

// Gate returns the authorization gate over the configured store backend.
func (a *App) Gate(ctx context.Context) (*authz.Gate, error) {
	if a.gate != nil {
		return a.gate, nil
	}
	sc := a.Config.Store
	var store authz.Store
	switch sc.Backend {
	case "postgres":
		if sc.DSN == "" {
			return nil, fmt.Errorf("store.dsn: %w", ErrNotConfigured)
		}
		pool, err := authz.NewPostgresPool(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		a.pg = authz.NewPostgresStore(pool)
		a.closers = append(a.closers, a.pg.Close)
		store = a.pg
	default:
		if sc.URL == "" || sc.APIKey == "" {
			return nil, fmt.Errorf("store.url and store.api_key: %w", ErrNotConfigured)
		}
		store = authz.NewPostgRESTStore(sc.URL, sc.APIKey,
			authz.WithRequestTimeout(time.Duration(sc.TimeoutSecs)*time.Second),
			authz.WithRateLimit(sc.RateLimitRPS, sc.RateLimitBurst))
	}
	a.gate = authz.NewGate(store, a.Metrics)
	return a.gate, nil
}

// EnsureSchema creates the allow-list tables when the direct Postgres
// backend is configured. PostgREST deployments manage their own schema.
func (a *App) EnsureSchema(ctx context.Context) error {
	if _, err := a.Gate(ctx); err != nil {
		return err
	}
	if a.pg == nil {
		return fmt.Errorf("store.backend %q does not support schema management", a.Config.Store.Backend)
	}
	return a.pg.EnsureSchema(ctx)
}

// CreateUserType adds a user type. Only the direct Postgres backend can
// write user types.
func (a *App) CreateUserType(ctx context.Context, ut types.UserType) (int64, error) {
	if err := a.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	return a.pg.CreateUserType(ctx, ut)
}

// Notifier returns the registration notification dispatcher.
func (a *App) Notifier() (*notify.Dispatcher, error) {
	if a.notifier != nil {
		return a.notifier, nil
	}
	mc := a.Config.Mail
	if mc.AdminTo == "" || mc.From == "" {
		return nil, fmt.Errorf("mail.admin_to and mail.from: %w", ErrNotConfigured)
	}
	mailer, err := notify.NewMailer(mc)
	if err != nil {
		return nil, err
	}
	a.notifier = notify.NewDispatcher(mailer, mc.AdminTo, a.Metrics)
	return a.notifier, nil
}
