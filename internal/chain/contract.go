package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stakeport/stakeport/internal/logging"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

// Contract is a contract handle returned by the Factory. Read handles have
// no signer and reject Transact.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
	client  *Client
	tracker *TxTracker
	signer  *bind.TransactOpts
}

// Address returns the contract address
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// CanWrite reports whether the handle is bound to a signer.
func (c *Contract) CanWrite() bool {
	return c.signer != nil
}

// From returns the signer address, or the zero address for read handles.
func (c *Contract) From() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.From
}

// Call invokes a constant method and returns the unpacked outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var result []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &result, method, args...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return result, nil
}

// Transact signs and submits a mutating call. It only covers the submit
// phase; use Execute to also await confirmation.
func (c *Contract) Transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("%s: %w", method, pkgtypes.ErrNoSigner)
	}

	opts := *c.signer
	opts.Context = ctx

	gasPrice, err := c.client.gasPrice(ctx)
	if err != nil {
		return nil, err
	}
	opts.GasPrice = gasPrice

	if m := c.client.config.GasMultiplier; m > 1 {
		gas, err := c.estimateGas(ctx, opts.From, method, args...)
		if err != nil {
			return nil, err
		}
		opts.GasLimit = uint64(float64(gas) * m)
	}

	tx, err := c.bound.Transact(&opts, method, args...)
	if err != nil {
		if errors.Is(err, pkgtypes.ErrUserRejected) {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		return nil, fmt.Errorf("failed to submit %s: %w", method, err)
	}

	logging.Info("transaction submitted",
		logging.Component("chain"),
		"method", method,
		logging.TxHash(tx.Hash().Hex()))
	return tx, nil
}

// Execute submits a mutating call and waits for it to reach a terminal state.
func (c *Contract) Execute(ctx context.Context, method string, args ...interface{}) (*TxResult, error) {
	tx, err := c.Transact(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return c.tracker.Track(ctx, method, tx)
}

func (c *Contract) estimateGas(ctx context.Context, from common.Address, method string, args ...interface{}) (uint64, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	to := c.address
	gas, err := c.client.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: input})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas for %s: %w", method, err)
	}
	return gas, nil
}

// IsOwner reports whether caller is the contract's owner(). The comparison
// is case-insensitive. Only useful for hiding admin affordances: the
// contract enforces ownership itself.
func IsOwner(ctx context.Context, contract *Contract, caller common.Address) (bool, error) {
	owner, err := Owner(ctx, contract)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(owner.Hex(), caller.Hex()), nil
}

// Owner reads owner() from an Ownable contract.
func Owner(ctx context.Context, contract *Contract) (common.Address, error) {
	out, err := contract.Call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return first[common.Address](out, "owner")
}

// first extracts the first output value as T.
func first[T any](out []interface{}, method string) (T, error) {
	var zero T
	if len(out) == 0 {
		return zero, fmt.Errorf("%s returned no values", method)
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("%s returned unexpected type %T", method, out[0])
	}
	return v, nil
}
