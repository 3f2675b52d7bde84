package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fsnotify/fsnotify"
	"github.com/stakeport/stakeport/internal/identity"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/pkg/types"
)

// ApprovalKind names what the user is being asked to approve.
type ApprovalKind string

const (
	ApproveConnect  ApprovalKind = "connect"
	ApproveAddChain ApprovalKind = "add_chain"
	ApproveSign     ApprovalKind = "sign"
)

// ApprovalRequest describes a prompt shown to the user.
type ApprovalRequest struct {
	Kind    ApprovalKind
	Account common.Address
	Network *NetworkParams
	Tx      *ethtypes.Transaction
}

// Approver asks the user to accept or decline a wallet request.
type Approver func(ctx context.Context, req ApprovalRequest) (bool, error)

// PasswordFunc returns the keystore password for account.
type PasswordFunc func(account common.Address) (string, error)

// KeystoreProvider is a local Provider backed by a geth keystore. It plays
// the role a browser wallet plays for a web dashboard: it holds keys, asks
// for approval and tracks the active chain.
type KeystoreProvider struct {
	dir      string
	approve  Approver
	password PasswordFunc
	silent   PasswordFunc

	mu         sync.Mutex
	wallet     *identity.WalletManager
	chains     map[string]NetworkParams
	active     *big.Int
	authorized map[common.Address]bool
	emitted    []common.Address
	listeners  map[Event][]Listener

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// KeystoreOption configures a KeystoreProvider
type KeystoreOption func(*KeystoreProvider)

// WithApprover sets the approval prompt. Without one every request is approved.
func WithApprover(fn Approver) KeystoreOption {
	return func(p *KeystoreProvider) { p.approve = fn }
}

// WithPasswordFunc sets how account passwords are obtained.
func WithPasswordFunc(fn PasswordFunc) KeystoreOption {
	return func(p *KeystoreProvider) { p.password = fn }
}

// WithSilentPasswordFunc sets the password source used by eth_accounts.
// It must never prompt. Without one, eth_accounts only reports accounts
// unlocked by an earlier eth_requestAccounts.
func WithSilentPasswordFunc(fn PasswordFunc) KeystoreOption {
	return func(p *KeystoreProvider) { p.silent = fn }
}

// WithKnownChains pre-registers chains the wallet can switch to without
// an add-chain request.
func WithKnownChains(params ...NetworkParams) KeystoreOption {
	return func(p *KeystoreProvider) {
		for _, n := range params {
			if n.ChainID != nil {
				p.chains[n.ChainID.String()] = n
			}
		}
	}
}

// NewKeystoreProvider opens the keystore in dir with active as the current
// chain. An empty keystore is allowed; accounts appear once a key file is
// written.
func NewKeystoreProvider(dir string, active NetworkParams, opts ...KeystoreOption) (*KeystoreProvider, error) {
	if active.ChainID == nil {
		return nil, fmt.Errorf("active chain id is required")
	}
	wm, err := identity.LoadWalletManager(dir)
	if err != nil {
		return nil, err
	}

	p := &KeystoreProvider{
		dir:        dir,
		wallet:     wm,
		chains:     map[string]NetworkParams{active.ChainID.String(): active},
		active:     new(big.Int).Set(active.ChainID),
		authorized: make(map[common.Address]bool),
		listeners:  make(map[Event][]Listener),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Request implements Provider.
func (p *KeystoreProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case MethodRequestAccounts:
		return p.requestAccounts(ctx)
	case MethodAccounts:
		return p.accounts()
	case MethodChainID:
		p.mu.Lock()
		id := hexChainID(p.active)
		p.mu.Unlock()
		return json.Marshal(id)
	case MethodSwitchChain:
		var req switchChainParams
		if err := decodeParam(params, &req); err != nil {
			return nil, err
		}
		return p.switchChain(req.ChainID)
	case MethodAddChain:
		var req NetworkParams
		if err := decodeParam(params, &req); err != nil {
			return nil, err
		}
		return p.addChain(ctx, req)
	default:
		return nil, &types.ProviderError{Code: types.ProviderCodeUnsupportedMethod, Message: "unsupported method " + method}
	}
}

func (p *KeystoreProvider) requestAccounts(ctx context.Context) (json.RawMessage, error) {
	wm, err := p.loadWallet()
	if err != nil {
		return nil, err
	}
	addr := wm.Address()

	ok, err := p.ask(ctx, ApprovalRequest{Kind: ApproveConnect, Account: addr})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ProviderError{Code: types.ProviderCodeUserRejected, Message: "user rejected the request"}
	}
	if err := p.unlock(wm, addr, p.password); err != nil {
		return nil, err
	}
	return json.Marshal(p.authorizedAccounts())
}

// accounts returns already-authorized accounts without prompting. An
// account whose password the silent source resolves counts as authorized.
func (p *KeystoreProvider) accounts() (json.RawMessage, error) {
	p.mu.Lock()
	wm := p.wallet
	p.mu.Unlock()

	if wm != nil && len(p.authorizedAccounts()) == 0 && p.silent != nil {
		addr := wm.Address()
		if err := p.unlock(wm, addr, p.silent); err != nil {
			logging.Debug("no silent unlock for keystore account",
				logging.Component("wallet"),
				logging.Address(addr.Hex()),
				logging.Err(err))
		}
	}
	return json.Marshal(p.authorizedAccounts())
}

func (p *KeystoreProvider) switchChain(hexID string) (json.RawMessage, error) {
	id, err := parseChainID(hexID)
	if err != nil {
		return nil, &types.ProviderError{Code: -32602, Message: err.Error()}
	}

	p.mu.Lock()
	if _, ok := p.chains[id.String()]; !ok {
		p.mu.Unlock()
		return nil, &types.ProviderError{Code: types.ProviderCodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain ID %q", hexID)}
	}
	changed := p.active.Cmp(id) != 0
	p.active = id
	p.mu.Unlock()

	if changed {
		p.emit(EventChainChanged, hexChainID(id))
	}
	return json.RawMessage("null"), nil
}

func (p *KeystoreProvider) addChain(ctx context.Context, params NetworkParams) (json.RawMessage, error) {
	if params.ChainID == nil || len(params.RPCURLs) == 0 {
		return nil, &types.ProviderError{Code: -32602, Message: "chainId and rpcUrls are required"}
	}
	ok, err := p.ask(ctx, ApprovalRequest{Kind: ApproveAddChain, Network: &params})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ProviderError{Code: types.ProviderCodeUserRejected, Message: "user rejected the request"}
	}

	p.mu.Lock()
	p.chains[params.ChainID.String()] = params
	p.mu.Unlock()
	return json.RawMessage("null"), nil
}

// On implements Provider. Registering the same listener twice is a no-op.
func (p *KeystoreProvider) On(event Event, l Listener) error {
	if l == nil {
		return fmt.Errorf("nil listener")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.listeners[event], l) {
		p.listeners[event] = append(p.listeners[event], l)
	}
	return nil
}

// RemoveListener implements Provider.
func (p *KeystoreProvider) RemoveListener(event Event, l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[event] = slices.DeleteFunc(p.listeners[event], func(x Listener) bool { return x == l })
}

// ListenerCount returns the number of listeners registered for event.
func (p *KeystoreProvider) ListenerCount(event Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners[event])
}

// Signer implements chain.SignerSource. Every signature goes through the
// approval prompt; a decline surfaces as a user rejection.
func (p *KeystoreProvider) Signer(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	p.mu.Lock()
	wm := p.wallet
	ok := p.authorized[account]
	p.mu.Unlock()
	if wm == nil || !ok {
		return nil, types.ErrNoSigner
	}

	opts, err := wm.Transactor(account, chainID)
	if err != nil {
		return nil, err
	}
	sign := opts.Signer
	opts.Signer = func(from common.Address, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
		ctx := opts.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ok, err := p.ask(ctx, ApprovalRequest{Kind: ApproveSign, Account: from, Tx: tx})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ProviderError{Code: types.ProviderCodeUserRejected, Message: "user denied transaction signature"}
		}
		return sign(from, tx)
	}
	return opts, nil
}

// Start watches the keystore directory and emits accountsChanged when key
// files for authorized accounts appear or disappear.
func (p *KeystoreProvider) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create keystore watcher: %w", err)
	}
	if err := watcher.Add(p.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", p.dir, err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
					p.rescan()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("keystore watcher error", logging.Component("wallet"), logging.Err(err))
			}
		}
	}()
	return nil
}

// Close stops the directory watcher.
func (p *KeystoreProvider) Close() error {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	p.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	p.wg.Wait()
	return err
}

// rescan compares key files on disk with the authorized set.
func (p *KeystoreProvider) rescan() {
	present, err := scanKeystore(p.dir)
	if err != nil {
		logging.Warn("failed to scan keystore", logging.Component("wallet"), logging.Err(err))
		return
	}

	p.mu.Lock()
	for addr := range p.authorized {
		if !slices.Contains(present, addr) {
			delete(p.authorized, addr)
		}
	}
	p.mu.Unlock()

	accounts := p.authorizedAccounts()
	p.mu.Lock()
	same := slices.Equal(toAddresses(accounts), p.emitted)
	p.emitted = toAddresses(accounts)
	p.mu.Unlock()

	if !same {
		p.emit(EventAccountsChanged, accounts)
	}
}

func (p *KeystoreProvider) emit(event Event, payload any) {
	p.mu.Lock()
	ls := slices.Clone(p.listeners[event])
	p.mu.Unlock()
	for _, l := range ls {
		l.HandleEvent(event, payload)
	}
}

func (p *KeystoreProvider) loadWallet() (*identity.WalletManager, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wallet != nil {
		return p.wallet, nil
	}
	wm, err := identity.LoadWalletManager(p.dir)
	if err != nil {
		return nil, err
	}
	if wm == nil {
		return nil, &types.ProviderError{Code: types.ProviderCodeUnauthorized, Message: "no accounts in keystore " + p.dir}
	}
	p.wallet = wm
	return wm, nil
}

func (p *KeystoreProvider) unlock(wm *identity.WalletManager, addr common.Address, password PasswordFunc) error {
	if password == nil {
		return &types.ProviderError{Code: types.ProviderCodeUnauthorized, Message: "no password source configured"}
	}
	pw, err := password(addr)
	if err != nil {
		if errors.Is(err, types.ErrUserRejected) {
			return err
		}
		return &types.ProviderError{Code: types.ProviderCodeUnauthorized, Message: err.Error()}
	}
	if err := wm.Unlock(addr, pw); err != nil {
		return &types.ProviderError{Code: types.ProviderCodeUnauthorized, Message: err.Error()}
	}

	p.mu.Lock()
	p.authorized[addr] = true
	p.emitted = toAddresses(p.authorizedAccountsLocked())
	p.mu.Unlock()
	return nil
}

func (p *KeystoreProvider) ask(ctx context.Context, req ApprovalRequest) (bool, error) {
	if p.approve == nil {
		return true, nil
	}
	return p.approve(ctx, req)
}

// authorizedAccounts lists authorized accounts as lower-case hex, in
// keystore order.
func (p *KeystoreProvider) authorizedAccounts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authorizedAccountsLocked()
}

func (p *KeystoreProvider) authorizedAccountsLocked() []string {
	out := []string{}
	if p.wallet == nil {
		return out
	}
	for _, addr := range p.wallet.Accounts() {
		if p.authorized[addr] {
			out = append(out, strings.ToLower(addr.Hex()))
		}
	}
	return out
}

// scanKeystore reads the address field of every key file in dir.
func scanKeystore(dir string) ([]common.Address, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []common.Address
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var key struct {
			Address string `json:"address"`
		}
		if json.Unmarshal(data, &key) != nil || !common.IsHexAddress(key.Address) {
			continue
		}
		out = append(out, common.HexToAddress(key.Address))
	}
	return out, nil
}

func toAddresses(hexes []string) []common.Address {
	out := make([]common.Address, len(hexes))
	for i, h := range hexes {
		out[i] = common.HexToAddress(h)
	}
	return out
}

func decodeParam(params []any, v any) error {
	if len(params) == 0 {
		return &types.ProviderError{Code: -32602, Message: "missing params"}
	}
	data, err := json.Marshal(params[0])
	if err != nil {
		return &types.ProviderError{Code: -32602, Message: err.Error()}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &types.ProviderError{Code: -32602, Message: err.Error()}
	}
	return nil
}
