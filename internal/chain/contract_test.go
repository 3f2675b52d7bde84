package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

var (
	tokenAddr    = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	stakingAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	strategyAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestTokenContract_Reads(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("balanceOf", big.NewInt(1234))
	env.backend.returns("decimals", uint8(6))
	env.backend.returns("symbol", "USDT")

	token := NewTokenContract(env.factory, tokenAddr)
	ctx := context.Background()

	bal, err := token.BalanceOf(ctx, env.account)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if bal.Int64() != 1234 {
		t.Errorf("balance = %s, want 1234", bal)
	}

	dec, err := token.Decimals(ctx)
	if err != nil || dec != 6 {
		t.Errorf("Decimals = %d, %v", dec, err)
	}
	sym, err := token.Symbol(ctx)
	if err != nil || sym != "USDT" {
		t.Errorf("Symbol = %q, %v", sym, err)
	}
}

func TestTokenContract_CallError(t *testing.T) {
	env := newTestEnv(t)
	token := NewTokenContract(env.factory, tokenAddr)
	if _, err := token.BalanceOf(context.Background(), env.account); err == nil {
		t.Fatal("expected error when the call reverts")
	}
}

func TestFactory_WriteClientWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	f := NewFactory(env.factory.Client(), staticSession{}, keySigner{}, env.factory.Tracker())

	_, err := f.WriteClient(tokenAddr, TokenContractABI)
	if !errors.Is(err, pkgtypes.ErrNoSigner) {
		t.Fatalf("err = %v, want ErrNoSigner", err)
	}

	read := f.ReadClient(tokenAddr, TokenContractABI)
	if read.CanWrite() {
		t.Error("read handle should not be able to write")
	}
	if _, err := read.Transact(context.Background(), "approve", stakingAddr, big.NewInt(1)); !errors.Is(err, pkgtypes.ErrNoSigner) {
		t.Errorf("Transact on read handle err = %v", err)
	}
}

func TestFactory_WriteClientChainMismatch(t *testing.T) {
	env := newTestEnv(t)
	f := NewFactory(env.factory.Client(), connectedSession(env.account, big.NewInt(1)), keySigner{}, nil)

	_, err := f.WriteClient(tokenAddr, TokenContractABI)
	if !errors.Is(err, pkgtypes.ErrChainMismatch) {
		t.Fatalf("err = %v, want ErrChainMismatch", err)
	}
}

func TestFactory_WriteClientBindsSigner(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.factory.WriteClient(tokenAddr, TokenContractABI)
	if err != nil {
		t.Fatalf("WriteClient: %v", err)
	}
	if !w.CanWrite() || w.From() != env.account {
		t.Errorf("From = %s, want %s", w.From().Hex(), env.account.Hex())
	}
}

func TestIsOwner_CaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("owner", env.account)
	staking := NewStakingContract(env.factory, stakingAddr, nil)

	for _, caller := range []string{
		strings.ToLower(env.account.Hex()),
		"0x" + strings.ToUpper(env.account.Hex()[2:]),
	} {
		ok, err := staking.IsOwner(context.Background(), common.HexToAddress(caller))
		if err != nil {
			t.Fatalf("IsOwner: %v", err)
		}
		if !ok {
			t.Errorf("IsOwner(%s) = false", caller)
		}
	}

	ok, err := staking.IsOwner(context.Background(), stakingAddr)
	if err != nil || ok {
		t.Errorf("IsOwner(other) = %v, %v", ok, err)
	}
}

func TestTransact_UserRejected(t *testing.T) {
	env := newTestEnv(t, func(s *keySigner) { s.reject = true })
	token := NewTokenContract(env.factory, tokenAddr)

	_, err := token.Approve(context.Background(), stakingAddr, big.NewInt(10))
	if !errors.Is(err, pkgtypes.ErrUserRejected) {
		t.Fatalf("err = %v, want ErrUserRejected", err)
	}
	if sent := env.backend.sentMethods(); len(sent) != 0 {
		t.Errorf("sent = %v, want nothing", sent)
	}
}

func TestStakeWithApproval_ApprovesThenStakes(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("allowance", big.NewInt(0))
	staking := NewStakingContract(env.factory, stakingAddr, NewTokenContract(env.factory, tokenAddr))

	res, err := staking.StakeWithApproval(context.Background(), big.NewInt(1), big.NewInt(500))
	if err != nil {
		t.Fatalf("StakeWithApproval: %v", err)
	}
	if res.State != pkgtypes.TxConfirmed || res.Method != "stake" {
		t.Errorf("result = %+v", res)
	}

	sent := env.backend.sentMethods()
	if len(sent) != 2 || sent[0] != "approve" || sent[1] != "stake" {
		t.Errorf("sent = %v, want [approve stake]", sent)
	}
}

func TestStakeWithApproval_RevertedApprovalStopsStake(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("allowance", big.NewInt(0))
	env.backend.revert["approve"] = true
	staking := NewStakingContract(env.factory, stakingAddr, NewTokenContract(env.factory, tokenAddr))

	_, err := staking.StakeWithApproval(context.Background(), big.NewInt(1), big.NewInt(500))
	if !errors.Is(err, pkgtypes.ErrOnChainRevert) {
		t.Fatalf("err = %v, want ErrOnChainRevert", err)
	}
	if sent := env.backend.sentMethods(); len(sent) != 1 || sent[0] != "approve" {
		t.Errorf("sent = %v, want only approve", sent)
	}
}

func TestStakeWithApproval_SkipsApprovalWhenAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("allowance", big.NewInt(1000))
	staking := NewStakingContract(env.factory, stakingAddr, NewTokenContract(env.factory, tokenAddr))

	if _, err := staking.StakeWithApproval(context.Background(), big.NewInt(0), big.NewInt(500)); err != nil {
		t.Fatalf("StakeWithApproval: %v", err)
	}
	if sent := env.backend.sentMethods(); len(sent) != 1 || sent[0] != "stake" {
		t.Errorf("sent = %v, want only stake", sent)
	}
}

func TestStaking_GetUserStakes(t *testing.T) {
	env := newTestEnv(t)
	env.backend.handle("getUserStakes", func(args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) != env.account {
			t.Errorf("user arg = %v", args[0])
		}
		return []interface{}{[]stakeTuple{{
			PlanId:         big.NewInt(2),
			Amount:         big.NewInt(1000),
			StartTime:      big.NewInt(1_700_000_000),
			EndTime:        big.NewInt(1_702_592_000),
			LastRewardTime: big.NewInt(1_700_000_000),
			Active:         true,
		}}}, nil
	})
	staking := NewStakingContract(env.factory, stakingAddr, nil)

	stakes, err := staking.GetUserStakes(context.Background(), env.account)
	if err != nil {
		t.Fatalf("GetUserStakes: %v", err)
	}
	if len(stakes) != 1 {
		t.Fatalf("len = %d", len(stakes))
	}
	s := stakes[0]
	if s.PlanID.Int64() != 2 || s.Amount.Int64() != 1000 || !s.Active {
		t.Errorf("stake = %+v", s)
	}
	if s.EndTime.Unix() != 1_702_592_000 {
		t.Errorf("EndTime = %v", s.EndTime)
	}
}

func TestStaking_Plans(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("planCount", big.NewInt(2))
	env.backend.handle("plans", func(args []interface{}) ([]interface{}, error) {
		id := args[0].(*big.Int).Int64()
		return []interface{}{big.NewInt(30 * 86400), big.NewInt(100 * (id + 1)), big.NewInt(10), true}, nil
	})
	staking := NewStakingContract(env.factory, stakingAddr, nil)

	plans, err := staking.Plans(context.Background())
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("len = %d", len(plans))
	}
	if plans[1].RewardRate.Int64() != 200 || plans[1].ID.Int64() != 1 {
		t.Errorf("plan[1] = %+v", plans[1])
	}
}

func TestStrategy_Status(t *testing.T) {
	env := newTestEnv(t)
	env.backend.returns("totalDeposited", big.NewInt(42))
	env.backend.returns("paused", true)
	env.backend.returns("lastHarvest", big.NewInt(1_700_000_000))
	env.backend.returns("owner", env.account)

	st, err := NewStrategyContract(env.factory, strategyAddr).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.TotalDeposited.Int64() != 42 || !st.Paused || st.LastHarvest.Unix() != 1_700_000_000 {
		t.Errorf("status = %+v", st)
	}
	if st.Owner != env.account.Hex() {
		t.Errorf("owner = %s", st.Owner)
	}
}

func TestStrategy_Harvest(t *testing.T) {
	env := newTestEnv(t)
	res, err := NewStrategyContract(env.factory, strategyAddr).Harvest(context.Background())
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if res.State != pkgtypes.TxConfirmed {
		t.Errorf("state = %s", res.State)
	}
}
