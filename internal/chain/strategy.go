package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StrategyStatus is a point-in-time read of the strategy getters.
type StrategyStatus struct {
	TotalDeposited *big.Int  `json:"total_deposited"`
	Paused         bool      `json:"paused"`
	LastHarvest    time.Time `json:"last_harvest"`
	Owner          string    `json:"owner"`
}

// StrategyContract provides access to the yield strategy contract
type StrategyContract struct {
	factory *Factory
	read    *Contract
	address common.Address
}

// NewStrategyContract creates a strategy client
func NewStrategyContract(factory *Factory, address common.Address) *StrategyContract {
	return &StrategyContract{
		factory: factory,
		read:    factory.ReadClient(address, StrategyContractABI),
		address: address,
	}
}

func (s *StrategyContract) execute(ctx context.Context, method string, args ...interface{}) (*TxResult, error) {
	w, err := s.factory.WriteClient(s.address, StrategyContractABI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return w.Execute(ctx, method, args...)
}

// Deposit moves amount into the strategy.
func (s *StrategyContract) Deposit(ctx context.Context, amount *big.Int) (*TxResult, error) {
	return s.execute(ctx, "deposit", amount)
}

// Withdraw moves amount out of the strategy.
func (s *StrategyContract) Withdraw(ctx context.Context, amount *big.Int) (*TxResult, error) {
	return s.execute(ctx, "withdraw", amount)
}

// Harvest collects accrued yield.
func (s *StrategyContract) Harvest(ctx context.Context) (*TxResult, error) {
	return s.execute(ctx, "harvest")
}

// EmergencyExit pulls all funds and pauses the strategy.
func (s *StrategyContract) EmergencyExit(ctx context.Context) (*TxResult, error) {
	return s.execute(ctx, "emergencyExit")
}

// TotalDeposited returns the amount currently deployed in the strategy.
func (s *StrategyContract) TotalDeposited(ctx context.Context) (*big.Int, error) {
	out, err := s.read.Call(ctx, "totalDeposited")
	if err != nil {
		return nil, err
	}
	return first[*big.Int](out, "totalDeposited")
}

// Paused reports whether the strategy is paused.
func (s *StrategyContract) Paused(ctx context.Context) (bool, error) {
	out, err := s.read.Call(ctx, "paused")
	if err != nil {
		return false, err
	}
	return first[bool](out, "paused")
}

// LastHarvest returns the time of the last harvest, zero if never.
func (s *StrategyContract) LastHarvest(ctx context.Context) (time.Time, error) {
	out, err := s.read.Call(ctx, "lastHarvest")
	if err != nil {
		return time.Time{}, err
	}
	ts, err := first[*big.Int](out, "lastHarvest")
	if err != nil {
		return time.Time{}, err
	}
	return unixTime(ts), nil
}

// IsOwner reports whether caller owns the strategy contract.
func (s *StrategyContract) IsOwner(ctx context.Context, caller common.Address) (bool, error) {
	return IsOwner(ctx, s.read, caller)
}

// Status reads all strategy getters.
func (s *StrategyContract) Status(ctx context.Context) (*StrategyStatus, error) {
	total, err := s.TotalDeposited(ctx)
	if err != nil {
		return nil, err
	}
	paused, err := s.Paused(ctx)
	if err != nil {
		return nil, err
	}
	last, err := s.LastHarvest(ctx)
	if err != nil {
		return nil, err
	}
	owner, err := Owner(ctx, s.read)
	if err != nil {
		return nil, err
	}
	return &StrategyStatus{
		TotalDeposited: total,
		Paused:         paused,
		LastHarvest:    last,
		Owner:          owner.Hex(),
	}, nil
}
