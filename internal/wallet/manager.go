package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/pkg/types"
)

// ChangeKind names a session transition.
type ChangeKind string

const (
	ChangeConnected    ChangeKind = "connected"
	ChangeDisconnected ChangeKind = "disconnected"
	ChangeAccount      ChangeKind = "account_changed"
	ChangeChain        ChangeKind = "chain_changed"
	ChangeRestored     ChangeKind = "restored"
)

// Change is one session transition as seen by subscribers.
type Change struct {
	Kind    ChangeKind    `json:"kind"`
	Session types.Session `json:"session"`
	At      time.Time     `json:"at"`
}

// Manager tracks the wallet session against an injected Provider.
type Manager struct {
	provider Provider
	flags    FlagStore
	networks map[string]NetworkParams
	metrics  *metrics.Collector

	mu      sync.RWMutex
	session types.Session

	subMu   sync.Mutex
	subs    map[uint64]chan Change
	nextSub uint64
	hooks   []func(Change)
}

// Option configures a Manager
type Option func(*Manager)

// WithNetworks registers the parameters used when the wallet does not know
// a chain and it has to be added before switching.
func WithNetworks(params ...NetworkParams) Option {
	return func(m *Manager) {
		for _, p := range params {
			if p.ChainID != nil {
				m.networks[p.ChainID.String()] = p
			}
		}
	}
}

// WithMetrics records session transitions
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager creates a session manager. provider may be nil when no wallet
// is available; every operation then reports ErrProviderUnavailable.
func NewManager(provider Provider, flags FlagStore, opts ...Option) *Manager {
	if flags == nil {
		flags = &MemoryFlagStore{}
	}
	m := &Manager{
		provider: provider,
		flags:    flags,
		networks: make(map[string]NetworkParams),
		subs:     make(map[uint64]chan Change),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns a copy of the current session.
func (m *Manager) Session() types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

// Connect asks the wallet for account access and adopts the first account.
func (m *Manager) Connect(ctx context.Context) (types.Session, error) {
	if m.provider == nil {
		return m.Session(), types.ErrProviderUnavailable
	}

	raw, err := m.provider.Request(ctx, MethodRequestAccounts)
	if err != nil {
		return m.Session(), fmt.Errorf("connect: %w", err)
	}
	accounts, err := decodeAccounts(raw)
	if err != nil {
		return m.Session(), fmt.Errorf("connect: %w", err)
	}
	if len(accounts) == 0 {
		return m.Session(), fmt.Errorf("connect: wallet returned no accounts: %w", types.ErrUserRejected)
	}
	addr, err := parseAccount(accounts[0])
	if err != nil {
		return m.Session(), fmt.Errorf("connect: %w", err)
	}

	sess := m.connectedSession(addr, m.queryChainID(ctx))
	m.setSession(sess, ChangeConnected)
	if err := m.flags.SetConnected(true); err != nil {
		logging.Warn("failed to persist connection flag", logging.Component("wallet"), logging.Err(err))
	}

	logging.Info("wallet connected",
		logging.Component("wallet"),
		logging.Address(addr.Hex()),
		"chain_id", chainString(sess.ChainID))
	return sess.Clone(), nil
}

// Disconnect clears the session and the durable flag. The wallet itself
// keeps its permission grant.
func (m *Manager) Disconnect() {
	m.clear(ChangeDisconnected)
	if err := m.flags.SetConnected(false); err != nil {
		logging.Warn("failed to clear connection flag", logging.Component("wallet"), logging.Err(err))
	}
}

// SwitchNetwork asks the wallet to change chains. When the wallet does not
// know the chain (code 4902) it adds it with the configured parameters and
// retries the switch once. Any other failure is returned as is.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID *big.Int) error {
	if m.provider == nil {
		return types.ErrProviderUnavailable
	}

	err := m.requestSwitch(ctx, chainID)
	if err == nil {
		m.updateChain(chainID)
		return nil
	}
	if types.ProviderCode(err) != types.ProviderCodeUnrecognizedChain {
		return fmt.Errorf("switch to chain %s: %w", chainID, err)
	}

	params, ok := m.networks[chainID.String()]
	if !ok {
		return fmt.Errorf("chain %s unknown to wallet and no network parameters configured: %w", chainID, err)
	}

	logging.Info("chain unknown to wallet, adding it",
		logging.Component("wallet"),
		"chain_id", chainID.String(),
		"name", params.ChainName)
	if _, err := m.provider.Request(ctx, MethodAddChain, params); err != nil {
		return fmt.Errorf("add chain %s: %w", chainID, err)
	}
	if err := m.requestSwitch(ctx, chainID); err != nil {
		return fmt.Errorf("switch to chain %s after adding it: %w", chainID, err)
	}
	m.updateChain(chainID)
	return nil
}

func (m *Manager) requestSwitch(ctx context.Context, chainID *big.Int) error {
	_, err := m.provider.Request(ctx, MethodSwitchChain, switchChainParams{ChainID: hexChainID(chainID)})
	return err
}

// Watch subscribes to account and chain events. The returned release
// function removes both listeners and is safe to call more than once;
// cancelling ctx releases them too.
func (m *Manager) Watch(ctx context.Context) (release func(), err error) {
	if m.provider == nil {
		return func() {}, types.ErrProviderUnavailable
	}

	if err := m.provider.On(EventAccountsChanged, m); err != nil {
		return func() {}, fmt.Errorf("subscribe %s: %w", EventAccountsChanged, err)
	}
	if err := m.provider.On(EventChainChanged, m); err != nil {
		m.provider.RemoveListener(EventAccountsChanged, m)
		return func() {}, fmt.Errorf("subscribe %s: %w", EventChainChanged, err)
	}

	var once sync.Once
	remove := func() {
		once.Do(func() {
			m.provider.RemoveListener(EventAccountsChanged, m)
			m.provider.RemoveListener(EventChainChanged, m)
		})
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}, nil
}

// HandleEvent implements Listener.
func (m *Manager) HandleEvent(event Event, payload any) {
	switch event {
	case EventAccountsChanged:
		accounts, ok := accountsPayload(payload)
		if !ok {
			logging.Warn("ignoring malformed accountsChanged event",
				logging.Component("wallet"),
				"payload_type", fmt.Sprintf("%T", payload))
			return
		}
		m.handleAccounts(accounts)
	case EventChainChanged:
		s, _ := payload.(string)
		id, err := parseChainID(s)
		if err != nil {
			logging.Warn("ignoring malformed chainChanged event", logging.Component("wallet"), logging.Err(err))
			return
		}
		m.updateChain(id)
	}
}

func (m *Manager) handleAccounts(accounts []string) {
	if len(accounts) == 0 {
		if !m.Session().Connected {
			return
		}
		logging.Info("wallet reported no accounts, disconnecting", logging.Component("wallet"))
		m.Disconnect()
		return
	}

	addr, err := parseAccount(accounts[0])
	if err != nil {
		logging.Warn("ignoring malformed accountsChanged event", logging.Component("wallet"), logging.Err(err))
		return
	}

	m.mu.Lock()
	cur := m.session
	if !cur.Connected || (cur.Address != nil && *cur.Address == addr) {
		m.mu.Unlock()
		return
	}
	next := m.connectedSession(addr, cur.ChainID)
	m.session = next
	m.mu.Unlock()

	m.publish(ChangeAccount, next)
}

// Restore silently reconnects when the durable flag says the wallet was
// connected before. Failures leave the session disconnected.
func (m *Manager) Restore(ctx context.Context) types.Session {
	if m.provider == nil {
		return m.Session()
	}
	was, err := m.flags.WasConnected()
	if err != nil {
		logging.Warn("failed to read connection flag", logging.Component("wallet"), logging.Err(err))
		return m.Session()
	}
	if !was {
		return m.Session()
	}

	raw, err := m.provider.Request(ctx, MethodAccounts)
	if err != nil {
		logging.Debug("silent reconnect failed", logging.Component("wallet"), logging.Err(err))
		return m.Session()
	}
	accounts, err := decodeAccounts(raw)
	if err != nil || len(accounts) == 0 {
		// permission revoked in the wallet
		if err := m.flags.SetConnected(false); err != nil {
			logging.Warn("failed to clear connection flag", logging.Component("wallet"), logging.Err(err))
		}
		return m.Session()
	}
	addr, err := parseAccount(accounts[0])
	if err != nil {
		logging.Debug("silent reconnect failed", logging.Component("wallet"), logging.Err(err))
		return m.Session()
	}

	sess := m.connectedSession(addr, m.queryChainID(ctx))
	m.setSession(sess, ChangeRestored)
	return sess.Clone()
}

// Subscribe returns a channel of session transitions. Slow subscribers miss
// changes rather than block the manager. Call the returned function to
// unsubscribe; it closes the channel.
func (m *Manager) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			close(ch)
			m.subMu.Unlock()
		})
	}
}

// OnChange registers a hook run synchronously after every transition.
// Balance resync hangs off this.
func (m *Manager) OnChange(fn func(Change)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) connectedSession(addr common.Address, chainID *big.Int) types.Session {
	a := addr
	return types.Session{Address: &a, ChainID: chainID, Connected: true}
}

func (m *Manager) queryChainID(ctx context.Context) *big.Int {
	raw, err := m.provider.Request(ctx, MethodChainID)
	if err != nil {
		logging.Warn("failed to read wallet chain id", logging.Component("wallet"), logging.Err(err))
		return nil
	}
	id, err := decodeChainID(raw)
	if err != nil {
		logging.Warn("failed to read wallet chain id", logging.Component("wallet"), logging.Err(err))
		return nil
	}
	return id
}

func (m *Manager) updateChain(chainID *big.Int) {
	m.mu.Lock()
	cur := m.session
	if cur.ChainID != nil && cur.ChainID.Cmp(chainID) == 0 {
		m.mu.Unlock()
		return
	}
	next := cur.Clone()
	next.ChainID = new(big.Int).Set(chainID)
	m.session = next
	m.mu.Unlock()

	logging.Info("wallet chain changed", logging.Component("wallet"), "chain_id", chainID.String())
	m.publish(ChangeChain, next)
}

func (m *Manager) clear(kind ChangeKind) {
	m.mu.Lock()
	chainID := m.session.ChainID
	m.mu.Unlock()
	m.setSession(types.Session{ChainID: chainID}, kind)
}

// setSession replaces the session. A session violating
// Connected == (Address != nil) is never stored.
func (m *Manager) setSession(sess types.Session, kind ChangeKind) {
	if !sess.Valid() {
		logging.Error("rejecting invalid session state",
			logging.Component("wallet"),
			"kind", string(kind))
		sess = types.Session{ChainID: sess.ChainID}
		kind = ChangeDisconnected
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	m.publish(kind, sess)
}

func (m *Manager) publish(kind ChangeKind, sess types.Session) {
	change := Change{Kind: kind, Session: sess.Clone(), At: time.Now().UTC()}
	m.metrics.RecordSession(string(kind), sess.Connected)

	m.subMu.Lock()
	hooks := append([]func(Change){}, m.hooks...)
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
			logging.Debug("dropping session change for slow subscriber", logging.Component("wallet"))
		}
	}
	m.subMu.Unlock()

	for _, fn := range hooks {
		fn(change)
	}
}

func parseAccount(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid account %q", s)
	}
	return common.HexToAddress(s), nil
}

func chainString(id *big.Int) string {
	if id == nil {
		return "unknown"
	}
	return id.String()
}

// IsUserRejection reports whether err is a declined wallet prompt.
func IsUserRejection(err error) bool {
	return errors.Is(err, types.ErrUserRejected)
}
