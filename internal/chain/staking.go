package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stakeport/stakeport/internal/logging"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

// stakeTuple mirrors the getUserStakes tuple layout.
type stakeTuple struct {
	PlanId         *big.Int
	Amount         *big.Int
	StartTime      *big.Int
	EndTime        *big.Int
	LastRewardTime *big.Int
	Active         bool
}

// StakingContract provides access to the staking vault contract
type StakingContract struct {
	factory *Factory
	read    *Contract
	token   *TokenContract
	address common.Address
}

// NewStakingContract creates a staking client. token is the staked ERC-20
// and is needed for the approve-then-stake flows.
func NewStakingContract(factory *Factory, address common.Address, token *TokenContract) *StakingContract {
	return &StakingContract{
		factory: factory,
		read:    factory.ReadClient(address, StakingContractABI),
		token:   token,
		address: address,
	}
}

// Address returns the staking contract address
func (sc *StakingContract) Address() common.Address {
	return sc.address
}

// Token returns the staked ERC-20, or nil when none was configured.
func (sc *StakingContract) Token() *TokenContract {
	return sc.token
}

func (sc *StakingContract) execute(ctx context.Context, method string, args ...interface{}) (*TxResult, error) {
	w, err := sc.factory.WriteClient(sc.address, StakingContractABI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return w.Execute(ctx, method, args...)
}

// Deposit adds amount to the caller's free vault balance.
func (sc *StakingContract) Deposit(ctx context.Context, amount *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "deposit", amount)
}

// Withdraw takes amount out of the caller's free vault balance.
func (sc *StakingContract) Withdraw(ctx context.Context, amount *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "withdraw", amount)
}

// Stake opens a position in planID.
func (sc *StakingContract) Stake(ctx context.Context, planID, amount *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "stake", planID, amount)
}

// ClaimRewards claims accrued rewards for one position.
func (sc *StakingContract) ClaimRewards(ctx context.Context, stakeIndex *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "claimRewards", stakeIndex)
}

// EndStake closes a matured position.
func (sc *StakingContract) EndStake(ctx context.Context, stakeIndex *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "endStake", stakeIndex)
}

// EmergencyWithdraw closes a position early, forfeiting rewards.
func (sc *StakingContract) EmergencyWithdraw(ctx context.Context, stakeIndex *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "emergencyWithdraw", stakeIndex)
}

// AdminWithdraw moves amount of the reserve to the owner. Owner only.
func (sc *StakingContract) AdminWithdraw(ctx context.Context, amount *big.Int) (*TxResult, error) {
	return sc.execute(ctx, "adminWithdraw", amount)
}

// AdminWithdrawAll drains the reserve to the owner. Owner only.
func (sc *StakingContract) AdminWithdrawAll(ctx context.Context) (*TxResult, error) {
	return sc.execute(ctx, "adminWithdrawAll")
}

// StakeWithApproval approves the staking contract for amount if the current
// allowance is short, waits for the approval to confirm, and only then
// submits the stake. A rejected, reverted or dropped approval stops the
// flow before any stake is sent.
func (sc *StakingContract) StakeWithApproval(ctx context.Context, planID, amount *big.Int) (*TxResult, error) {
	if err := sc.ensureAllowance(ctx, amount); err != nil {
		return nil, err
	}
	return sc.Stake(ctx, planID, amount)
}

// DepositWithApproval is StakeWithApproval for free-balance deposits.
func (sc *StakingContract) DepositWithApproval(ctx context.Context, amount *big.Int) (*TxResult, error) {
	if err := sc.ensureAllowance(ctx, amount); err != nil {
		return nil, err
	}
	return sc.Deposit(ctx, amount)
}

func (sc *StakingContract) ensureAllowance(ctx context.Context, amount *big.Int) error {
	if sc.token == nil {
		return fmt.Errorf("staking token not configured")
	}
	w, err := sc.factory.WriteClient(sc.address, StakingContractABI)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	current, err := sc.token.Allowance(ctx, w.From(), sc.address)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}

	res, err := sc.token.Approve(ctx, sc.address, amount)
	if err != nil {
		return fmt.Errorf("approval not confirmed: %w", err)
	}
	logging.Info("token spend approved",
		logging.Component("chain"),
		"spender", sc.address.Hex(),
		"amount", amount.String(),
		logging.TxHash(res.Hash.Hex()))
	return nil
}

// GetUserStakes returns every position of user, in contract index order.
func (sc *StakingContract) GetUserStakes(ctx context.Context, user common.Address) ([]pkgtypes.StakePosition, error) {
	out, err := sc.read.Call(ctx, "getUserStakes", user)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	raw := *abi.ConvertType(out[0], new([]stakeTuple)).(*[]stakeTuple)

	positions := make([]pkgtypes.StakePosition, len(raw))
	for i, s := range raw {
		positions[i] = pkgtypes.StakePosition{
			PlanID:         s.PlanId,
			Amount:         s.Amount,
			StartTime:      unixTime(s.StartTime),
			EndTime:        unixTime(s.EndTime),
			LastRewardTime: unixTime(s.LastRewardTime),
			Active:         s.Active,
		}
	}
	return positions, nil
}

// CalculateRewards returns the contract's view of pending rewards for one position.
func (sc *StakingContract) CalculateRewards(ctx context.Context, user common.Address, stakeIndex *big.Int) (*big.Int, error) {
	out, err := sc.read.Call(ctx, "calculateRewards", user, stakeIndex)
	if err != nil {
		return nil, err
	}
	return first[*big.Int](out, "calculateRewards")
}

// Plan returns one staking plan.
func (sc *StakingContract) Plan(ctx context.Context, id *big.Int) (pkgtypes.Plan, error) {
	out, err := sc.read.Call(ctx, "plans", id)
	if err != nil {
		return pkgtypes.Plan{}, err
	}
	if len(out) < 4 {
		return pkgtypes.Plan{}, fmt.Errorf("plans returned %d values", len(out))
	}
	duration, _ := out[0].(*big.Int)
	rate, _ := out[1].(*big.Int)
	minAmount, _ := out[2].(*big.Int)
	active, _ := out[3].(bool)
	if duration == nil || rate == nil || minAmount == nil {
		return pkgtypes.Plan{}, fmt.Errorf("plans returned unexpected types")
	}
	return pkgtypes.Plan{
		ID:         new(big.Int).Set(id),
		Duration:   time.Duration(duration.Int64()) * time.Second,
		RewardRate: rate,
		MinAmount:  minAmount,
		Active:     active,
	}, nil
}

// Plans returns every plan the contract knows about.
func (sc *StakingContract) Plans(ctx context.Context) ([]pkgtypes.Plan, error) {
	out, err := sc.read.Call(ctx, "planCount")
	if err != nil {
		return nil, err
	}
	count, err := first[*big.Int](out, "planCount")
	if err != nil {
		return nil, err
	}

	plans := make([]pkgtypes.Plan, 0, count.Int64())
	for i := int64(0); i < count.Int64(); i++ {
		p, err := sc.Plan(ctx, big.NewInt(i))
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// DepositedBalance returns user's free (unstaked) vault balance.
func (sc *StakingContract) DepositedBalance(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := sc.read.Call(ctx, "balances", user)
	if err != nil {
		return nil, err
	}
	return first[*big.Int](out, "balances")
}

// StakingToken returns the address of the staked ERC-20.
func (sc *StakingContract) StakingToken(ctx context.Context) (common.Address, error) {
	out, err := sc.read.Call(ctx, "stakingToken")
	if err != nil {
		return common.Address{}, err
	}
	return first[common.Address](out, "stakingToken")
}

// Owner returns the contract owner
func (sc *StakingContract) Owner(ctx context.Context) (common.Address, error) {
	return Owner(ctx, sc.read)
}

// IsOwner reports whether caller owns the staking contract.
func (sc *StakingContract) IsOwner(ctx context.Context, caller common.Address) (bool, error) {
	return IsOwner(ctx, sc.read, caller)
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
