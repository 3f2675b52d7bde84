package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultDropTimeout  = 5 * time.Minute
)

// ReceiptReader is the part of the backend the tracker polls.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// TxResult is the tracked outcome of one submitted transaction.
type TxResult struct {
	Method  string
	Hash    common.Hash
	State   pkgtypes.TxState
	Receipt *types.Receipt
}

// TxTracker drives a submitted transaction through
// Submitted -> Confirmed | Reverted | Dropped.
type TxTracker struct {
	reader        ReceiptReader
	confirmations uint64
	dropTimeout   time.Duration
	pollInterval  time.Duration
	metrics       *metrics.Collector
	onTransition  func(TxResult)
}

// TrackerOption configures a TxTracker
type TrackerOption func(*TxTracker)

// WithPollInterval sets how often the receipt is polled.
func WithPollInterval(d time.Duration) TrackerOption {
	return func(t *TxTracker) { t.pollInterval = d }
}

// WithDropTimeout sets how long to wait for a receipt before declaring the
// transaction dropped.
func WithDropTimeout(d time.Duration) TrackerOption {
	return func(t *TxTracker) {
		if d > 0 {
			t.dropTimeout = d
		}
	}
}

// WithConfirmations sets the number of blocks required after inclusion.
func WithConfirmations(n uint64) TrackerOption {
	return func(t *TxTracker) { t.confirmations = n }
}

// WithTrackerMetrics records terminal states.
func WithTrackerMetrics(m *metrics.Collector) TrackerOption {
	return func(t *TxTracker) { t.metrics = m }
}

// WithTransitionHook is called on every state change, including Submitted.
func WithTransitionHook(fn func(TxResult)) TrackerOption {
	return func(t *TxTracker) { t.onTransition = fn }
}

// NewTxTracker creates a tracker polling reader.
func NewTxTracker(reader ReceiptReader, opts ...TrackerOption) *TxTracker {
	t := &TxTracker{
		reader:       reader,
		dropTimeout:  defaultDropTimeout,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track waits for tx to reach a terminal state. A reverted receipt returns
// ErrOnChainRevert and a missing receipt after the drop timeout returns
// ErrTxDropped; both come with a non-nil result. If ctx ends first the
// result stays Submitted and ctx.Err() is returned.
func (t *TxTracker) Track(ctx context.Context, method string, tx *types.Transaction) (*TxResult, error) {
	res := &TxResult{Method: method, Hash: tx.Hash(), State: pkgtypes.TxSubmitted}
	t.transition(res)

	deadline := time.Now().Add(t.dropTimeout)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.reader.TransactionReceipt(ctx, res.Hash)
		switch {
		case err == nil && receipt != nil:
			return t.settle(ctx, res, receipt, ticker)
		case err != nil && !errors.Is(err, ethereum.NotFound):
			logging.Debug("receipt lookup failed",
				logging.Component("chain"),
				logging.TxHash(res.Hash.Hex()),
				logging.Err(err))
		}

		if time.Now().After(deadline) {
			res.State = pkgtypes.TxDropped
			t.transition(res)
			return res, fmt.Errorf("%s %s: %w", method, res.Hash.Hex(), pkgtypes.ErrTxDropped)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}

// settle handles an included transaction: a failed status reverts
// immediately, a successful one waits for the confirmation depth.
func (t *TxTracker) settle(ctx context.Context, res *TxResult, receipt *types.Receipt, ticker *time.Ticker) (*TxResult, error) {
	res.Receipt = receipt
	if receipt.Status == types.ReceiptStatusFailed {
		res.State = pkgtypes.TxReverted
		t.transition(res)
		return res, fmt.Errorf("%s %s: %w", res.Method, res.Hash.Hex(), pkgtypes.ErrOnChainRevert)
	}

	if t.confirmations > 0 && receipt.BlockNumber != nil {
		target := receipt.BlockNumber.Uint64() + t.confirmations
		for {
			current, err := t.reader.BlockNumber(ctx)
			if err == nil && current >= target {
				break
			}
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-ticker.C:
			}
		}
	}

	res.State = pkgtypes.TxConfirmed
	t.transition(res)
	return res, nil
}

func (t *TxTracker) transition(res *TxResult) {
	if res.State.Terminal() {
		t.metrics.RecordTx(res.Method, string(res.State))
	}
	logging.Info("transaction state",
		logging.Component("chain"),
		"method", res.Method,
		"state", string(res.State),
		logging.TxHash(res.Hash.Hex()))
	if t.onTransition != nil {
		t.onTransition(*res)
	}
}
