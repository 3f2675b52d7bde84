package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stakeport/stakeport/internal/metrics"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

func newTestTx(nonce uint64) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &stakingAddr,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
}

type recorder struct {
	mu     sync.Mutex
	states []pkgtypes.TxState
}

func (r *recorder) hook(res TxResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, res.State)
}

func TestTxTracker_Confirmed(t *testing.T) {
	backend := newFakeBackend()
	tx := newTestTx(0)
	backend.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}

	rec := &recorder{}
	tracker := NewTxTracker(backend,
		WithPollInterval(time.Millisecond),
		WithConfirmations(3),
		WithTransitionHook(rec.hook),
		WithTrackerMetrics(metrics.NewCollector()))

	res, err := tracker.Track(context.Background(), "stake", tx)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if res.State != pkgtypes.TxConfirmed || res.Receipt == nil {
		t.Errorf("result = %+v", res)
	}
	if len(rec.states) != 2 || rec.states[0] != pkgtypes.TxSubmitted || rec.states[1] != pkgtypes.TxConfirmed {
		t.Errorf("transitions = %v", rec.states)
	}
}

func TestTxTracker_Reverted(t *testing.T) {
	backend := newFakeBackend()
	tx := newTestTx(1)
	backend.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}

	res, err := NewTxTracker(backend, WithPollInterval(time.Millisecond)).Track(context.Background(), "claimRewards", tx)
	if !errors.Is(err, pkgtypes.ErrOnChainRevert) {
		t.Fatalf("err = %v, want ErrOnChainRevert", err)
	}
	if res.State != pkgtypes.TxReverted {
		t.Errorf("state = %s", res.State)
	}
}

func TestTxTracker_Dropped(t *testing.T) {
	backend := newFakeBackend()
	tracker := NewTxTracker(backend,
		WithPollInterval(time.Millisecond),
		WithDropTimeout(20*time.Millisecond))

	res, err := tracker.Track(context.Background(), "deposit", newTestTx(2))
	if !errors.Is(err, pkgtypes.ErrTxDropped) {
		t.Fatalf("err = %v, want ErrTxDropped", err)
	}
	if res.State != pkgtypes.TxDropped {
		t.Errorf("state = %s", res.State)
	}
}

func TestTxTracker_ContextCanceled(t *testing.T) {
	backend := newFakeBackend()
	tracker := NewTxTracker(backend, WithPollInterval(time.Millisecond), WithDropTimeout(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res, err := tracker.Track(ctx, "deposit", newTestTx(3))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if res.State != pkgtypes.TxSubmitted {
		t.Errorf("state = %s, want submitted", res.State)
	}
}

func TestTxTracker_HashPreserved(t *testing.T) {
	backend := newFakeBackend()
	tx := newTestTx(4)
	backend.receipts[tx.Hash()] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}

	res, err := NewTxTracker(backend, WithPollInterval(time.Millisecond)).Track(context.Background(), "withdraw", tx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Hash != tx.Hash() || res.Hash == (common.Hash{}) {
		t.Errorf("hash = %s", res.Hash.Hex())
	}
}
