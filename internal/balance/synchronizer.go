package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakeport/stakeport/internal/chain"
	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/internal/util"
	"github.com/stakeport/stakeport/internal/wallet"
	"github.com/stakeport/stakeport/pkg/types"
)

// TokenReader is the read surface of an ERC-20 contract.
type TokenReader interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Decimals(ctx context.Context) (uint8, error)
}

// Token is one tracked token.
type Token struct {
	Symbol string
	Reader TokenReader
}

// Synchronizer keeps the balance snapshot for the connected address.
type Synchronizer struct {
	tokens   []Token
	timeout  time.Duration
	metrics  *metrics.Collector
	onUpdate func(*types.BalanceSnapshot)

	refreshMu sync.Mutex
	current   atomic.Pointer[types.BalanceSnapshot]
}

// Option configures a Synchronizer
type Option func(*Synchronizer)

// WithTimeout bounds each per-token call.
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.timeout = d }
}

// WithMetrics records refresh durations and per-token failures.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithUpdateHook is called with every published snapshot, and with nil
// when the snapshot is cleared.
func WithUpdateHook(fn func(*types.BalanceSnapshot)) Option {
	return func(s *Synchronizer) { s.onUpdate = fn }
}

// NewSynchronizer creates a synchronizer for a fixed token set.
func NewSynchronizer(tokens []Token, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		tokens:  tokens,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokensFromConfig builds token readers for the configured contracts.
func TokensFromConfig(factory *chain.Factory, tokens config.TokenList) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" || seen[sym] {
			return nil, fmt.Errorf("duplicate or empty token symbol %q", t.Symbol)
		}
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", sym, t.Address)
		}
		seen[sym] = true
		out = append(out, Token{Symbol: sym, Reader: chain.NewTokenContract(factory, common.HexToAddress(t.Address))})
	}
	return out, nil
}

// Symbols returns the configured symbols in configuration order.
func (s *Synchronizer) Symbols() []string {
	out := make([]string, len(s.tokens))
	for i, t := range s.tokens {
		out[i] = t.Symbol
	}
	return out
}

// Snapshot returns the last published snapshot, or nil if none.
func (s *Synchronizer) Snapshot() *types.BalanceSnapshot {
	return s.current.Load()
}

// Refresh fetches balance and decimals of every token concurrently and
// publishes a complete snapshot. A token whose calls fail is reported as
// zero and marked Failed; one bad token never aborts the refresh.
func (s *Synchronizer) Refresh(ctx context.Context, address common.Address) *types.BalanceSnapshot {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	n := len(s.tokens)
	raws := make([]*big.Int, n)
	decimals := make([]uint8, n)

	// tasks [0,n) fetch balances, [n,2n) fetch decimals
	errs := util.JoinAll(2*n, func(i int) error {
		tok := s.tokens[i%n]
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if i < n {
			bal, err := tok.Reader.BalanceOf(callCtx, address)
			if err != nil {
				return fmt.Errorf("balanceOf: %w", err)
			}
			if bal == nil || bal.Sign() < 0 {
				return fmt.Errorf("balanceOf returned %v", bal)
			}
			raws[i] = bal
			return nil
		}
		d, err := tok.Reader.Decimals(callCtx)
		if err != nil {
			return fmt.Errorf("decimals: %w", err)
		}
		decimals[i-n] = d
		return nil
	})

	snap := &types.BalanceSnapshot{
		Address:  address,
		Balances: make(map[string]types.TokenBalance, n),
		TakenAt:  time.Now().UTC(),
	}
	for i, tok := range s.tokens {
		failure := errs[i]
		if failure == nil {
			failure = errs[n+i]
		}
		if failure != nil {
			logging.Warn("token balance fetch failed, reporting zero",
				logging.Component("balance"),
				"symbol", tok.Symbol,
				logging.Address(address.Hex()),
				logging.Err(failure))
			s.metrics.RecordBalanceFailure(tok.Symbol)
			snap.Balances[tok.Symbol] = types.TokenBalance{
				Symbol: tok.Symbol,
				Raw:    new(big.Int),
				Amount: "0",
				Failed: true,
			}
			continue
		}
		snap.Balances[tok.Symbol] = types.TokenBalance{
			Symbol:   tok.Symbol,
			Raw:      raws[i],
			Decimals: decimals[i],
			Amount:   chain.FormatUnits(raws[i], decimals[i]),
		}
	}

	s.current.Store(snap)
	s.metrics.RecordRefresh(time.Since(start))
	if s.onUpdate != nil {
		s.onUpdate(snap)
	}
	return snap
}

// Clear drops the published snapshot.
func (s *Synchronizer) Clear() {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	s.current.Store(nil)
	if s.onUpdate != nil {
		s.onUpdate(nil)
	}
}

// Run refreshes on every session transition that yields a connected
// address and clears on disconnect. It returns when ctx is done or changes
// is closed.
func (s *Synchronizer) Run(ctx context.Context, changes <-chan wallet.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if !c.Session.Connected || c.Session.Address == nil {
				s.Clear()
				continue
			}
			s.Refresh(ctx, *c.Session.Address)
		}
	}
}
