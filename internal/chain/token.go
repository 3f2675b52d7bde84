package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenContract provides access to an ERC-20 token
type TokenContract struct {
	factory *Factory
	read    *Contract
	address common.Address
}

// NewTokenContract creates a token client for the contract at address.
func NewTokenContract(factory *Factory, address common.Address) *TokenContract {
	return &TokenContract{
		factory: factory,
		read:    factory.ReadClient(address, TokenContractABI),
		address: address,
	}
}

// Address returns the token contract address
func (tc *TokenContract) Address() common.Address {
	return tc.address
}

// BalanceOf returns the raw token balance for an address
func (tc *TokenContract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := tc.read.Call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return first[*big.Int](out, "balanceOf")
}

// Decimals returns the token's declared precision
func (tc *TokenContract) Decimals(ctx context.Context) (uint8, error) {
	out, err := tc.read.Call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return first[uint8](out, "decimals")
}

// Symbol returns the token symbol
func (tc *TokenContract) Symbol(ctx context.Context) (string, error) {
	out, err := tc.read.Call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return first[string](out, "symbol")
}

// Allowance returns how much spender may transfer on behalf of owner
func (tc *TokenContract) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := tc.read.Call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return first[*big.Int](out, "allowance")
}

// Approve lets spender transfer amount from the connected wallet and waits
// for confirmation.
func (tc *TokenContract) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*TxResult, error) {
	w, err := tc.factory.WriteClient(tc.address, TokenContractABI)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	return w.Execute(ctx, "approve", spender, amount)
}

// Transfer sends amount to the given address and waits for confirmation.
func (tc *TokenContract) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*TxResult, error) {
	w, err := tc.factory.WriteClient(tc.address, TokenContractABI)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	return w.Execute(ctx, "transfer", to, amount)
}
