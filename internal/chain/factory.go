package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

// SessionSource exposes the current wallet session.
type SessionSource interface {
	Session() pkgtypes.Session
}

// SignerSource produces signing options for a connected account.
type SignerSource interface {
	Signer(account common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

// Factory builds contract handles bound either to the read-only backend or
// to the current session's signer.
type Factory struct {
	client   *Client
	sessions SessionSource
	signers  SignerSource
	tracker  *TxTracker
}

// NewFactory creates a Factory. sessions and signers may be nil, in which
// case only read handles can be built.
func NewFactory(client *Client, sessions SessionSource, signers SignerSource, tracker *TxTracker) *Factory {
	if tracker == nil {
		tracker = NewTxTracker(client.Backend(),
			WithConfirmations(client.Config().Confirmations),
			WithDropTimeout(client.Config().TxTimeout))
	}
	return &Factory{client: client, sessions: sessions, signers: signers, tracker: tracker}
}

// Client returns the underlying chain client
func (f *Factory) Client() *Client {
	return f.client
}

// Tracker returns the transaction tracker shared by write handles.
func (f *Factory) Tracker() *TxTracker {
	return f.tracker
}

// ReadClient returns a handle usable without a connected wallet.
func (f *Factory) ReadClient(address common.Address, contractABI abi.ABI) *Contract {
	backend := f.client.Backend()
	return &Contract{
		address: address,
		abi:     contractABI,
		bound:   bind.NewBoundContract(address, contractABI, backend, backend, backend),
		client:  f.client,
		tracker: f.tracker,
	}
}

// WriteClient returns a handle bound to the session signer. It fails with
// ErrNoSigner when no wallet is connected and ErrChainMismatch when the
// wallet is on a different chain than the client.
func (f *Factory) WriteClient(address common.Address, contractABI abi.ABI) (*Contract, error) {
	if f.sessions == nil || f.signers == nil {
		return nil, pkgtypes.ErrNoSigner
	}
	sess := f.sessions.Session()
	if !sess.Connected || sess.Address == nil {
		return nil, pkgtypes.ErrNoSigner
	}

	want := f.client.ChainID()
	if sess.ChainID == nil || sess.ChainID.Cmp(want) != 0 {
		return nil, fmt.Errorf("wallet on chain %v, contracts on chain %s: %w",
			sess.ChainID, want, pkgtypes.ErrChainMismatch)
	}

	opts, err := f.signers.Signer(*sess.Address, want)
	if err != nil {
		return nil, fmt.Errorf("failed to get signer: %w", err)
	}

	c := f.ReadClient(address, contractABI)
	c.signer = opts
	return c, nil
}
