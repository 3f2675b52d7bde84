package chain

import (
	"math/big"
	"time"

	pkgtypes "github.com/stakeport/stakeport/pkg/types"
)

const (
	basisPoints = 10_000
	year        = 365 * 24 * time.Hour
)

// APR returns the plan's simple annualized rate in percent. Plans express
// RewardRate in basis points per plan Duration.
func APR(plan pkgtypes.Plan) float64 {
	if plan.RewardRate == nil || plan.Duration <= 0 {
		return 0
	}
	rate := new(big.Rat).SetFrac(plan.RewardRate, big.NewInt(basisPoints))
	periods := new(big.Rat).SetFrac64(int64(year), int64(plan.Duration))
	pct := new(big.Rat).Mul(rate, periods)
	pct.Mul(pct, big.NewRat(100, 1))
	f, _ := pct.Float64()
	return f
}

// AccruedReward is the linear reward earned by pos between its last reward
// time and min(now, end time). Inactive positions accrue nothing.
func AccruedReward(pos pkgtypes.StakePosition, plan pkgtypes.Plan, now time.Time) *big.Int {
	until := now
	if pos.EndTime.Before(until) {
		until = pos.EndTime
	}
	return linearReward(pos, plan, pos.LastRewardTime, until)
}

// ProjectedReward is the reward still to be paid on pos if held to maturity.
func ProjectedReward(pos pkgtypes.StakePosition, plan pkgtypes.Plan) *big.Int {
	return linearReward(pos, plan, pos.LastRewardTime, pos.EndTime)
}

func linearReward(pos pkgtypes.StakePosition, plan pkgtypes.Plan, from, until time.Time) *big.Int {
	if !pos.Active || pos.Amount == nil || plan.RewardRate == nil || plan.Duration <= 0 {
		return new(big.Int)
	}
	elapsed := until.Sub(from)
	if elapsed <= 0 {
		return new(big.Int)
	}

	// amount * rate * elapsed / (bps * duration), in whole seconds
	r := new(big.Int).Mul(pos.Amount, plan.RewardRate)
	r.Mul(r, big.NewInt(int64(elapsed/time.Second)))
	den := big.NewInt(basisPoints)
	den.Mul(den, big.NewInt(int64(plan.Duration/time.Second)))
	if den.Sign() == 0 {
		return new(big.Int)
	}
	return r.Quo(r, den)
}

// Reserve summarizes whether the reward reserve covers what is owed.
type Reserve struct {
	Balance     *big.Int `json:"balance"`
	Outstanding *big.Int `json:"outstanding"`
	Coverage    float64  `json:"coverage"` // Balance / Outstanding; 0 when nothing is owed
	Adequate    bool     `json:"adequate"`
}

// ReserveAdequacy compares a reserve balance against the projected rewards
// of every active position. Positions whose plan is unknown are skipped.
func ReserveAdequacy(balance *big.Int, positions []pkgtypes.StakePosition, plans map[string]pkgtypes.Plan) Reserve {
	if balance == nil {
		balance = new(big.Int)
	}
	owed := new(big.Int)
	for _, pos := range positions {
		if pos.PlanID == nil {
			continue
		}
		plan, ok := plans[pos.PlanID.String()]
		if !ok {
			continue
		}
		owed.Add(owed, ProjectedReward(pos, plan))
	}

	res := Reserve{
		Balance:     new(big.Int).Set(balance),
		Outstanding: owed,
		Adequate:    balance.Cmp(owed) >= 0,
	}
	if owed.Sign() > 0 {
		res.Coverage, _ = new(big.Rat).SetFrac(balance, owed).Float64()
	}
	return res
}

// PlanIndex keys plans by id for ReserveAdequacy.
func PlanIndex(plans []pkgtypes.Plan) map[string]pkgtypes.Plan {
	idx := make(map[string]pkgtypes.Plan, len(plans))
	for _, p := range plans {
		if p.ID != nil {
			idx[p.ID.String()] = p
		}
	}
	return idx
}
