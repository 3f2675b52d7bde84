package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

// Well-known test key (never funded).
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var testChainID = big.NewInt(97)

type callHandler func(args []interface{}) ([]interface{}, error)

// fakeBackend answers contract calls by ABI method name and mines every
// sent transaction into a receipt immediately.
type fakeBackend struct {
	mu       sync.Mutex
	abis     []abi.ABI
	handlers map[string]callHandler
	sent     []string
	receipts map[common.Hash]*types.Receipt
	revert   map[string]bool
	drop     bool
	block    uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		abis:     []abi.ABI{TokenContractABI, StakingContractABI, StrategyContractABI},
		handlers: make(map[string]callHandler),
		receipts: make(map[common.Hash]*types.Receipt),
		revert:   make(map[string]bool),
		block:    100,
	}
}

func (f *fakeBackend) handle(method string, h callHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeBackend) returns(method string, vals ...interface{}) {
	f.handle(method, func([]interface{}) ([]interface{}, error) { return vals, nil })
}

func (f *fakeBackend) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeBackend) method(data []byte) (*abi.Method, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	for _, a := range f.abis {
		if m, err := a.MethodById(data[:4]); err == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown selector %x", data[:4])
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := f.method(msg.Data)
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	h, ok := f.handlers[m.Name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %s", m.Name)
	}
	vals, err := h(args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(vals...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(f.block)}, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(50e9), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m, err := f.method(tx.Data())
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m.Name)
	if f.drop {
		return nil
	}
	status := types.ReceiptStatusSuccessful
	if f.revert[m.Name] {
		status = types.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(f.block),
	}
	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

// BlockNumber advances one block per call so confirmation waits terminate.
func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block++
	return f.block, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

// staticSession is a fixed wallet session.
type staticSession struct {
	sess pkgtypes.Session
}

func (s staticSession) Session() pkgtypes.Session { return s.sess }

func connectedSession(addr common.Address, chainID *big.Int) staticSession {
	return staticSession{sess: pkgtypes.Session{Address: &addr, ChainID: chainID, Connected: true}}
}

// keySigner signs with an in-memory key, or rejects like a wallet would.
type keySigner struct {
	key    *ecdsa.PrivateKey
	reject bool
}

func (k keySigner) Signer(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(k.key, chainID)
	if err != nil {
		return nil, err
	}
	if k.reject {
		opts.Signer = func(common.Address, *types.Transaction) (*types.Transaction, error) {
			return nil, &pkgtypes.ProviderError{Code: pkgtypes.ProviderCodeUserRejected, Message: "User denied transaction signature."}
		}
	}
	return opts, nil
}

type testEnv struct {
	backend *fakeBackend
	factory *Factory
	account common.Address
}

func newTestEnv(t *testing.T, opts ...func(*keySigner)) *testEnv {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	signer := keySigner{key: key}
	for _, o := range opts {
		o(&signer)
	}
	account := crypto.PubkeyToAddress(key.PublicKey)

	backend := newFakeBackend()
	client := NewClient(backend, &ClientConfig{ChainID: testChainID, MaxGasPrice: big.NewInt(20e9)})
	tracker := NewTxTracker(backend,
		WithPollInterval(time.Millisecond),
		WithDropTimeout(50*time.Millisecond))
	factory := NewFactory(client, connectedSession(account, testChainID), signer, tracker)
	return &testEnv{backend: backend, factory: factory, account: account}
}
