package types

import (
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Session is the wallet connection state tracked by the session manager.
// Connected is true if and only if Address is non-nil.
type Session struct {
	Address   *common.Address `json:"address"`
	ChainID   *big.Int        `json:"chain_id"`
	Connected bool            `json:"connected"`
}

// Valid reports whether the connected/address invariant holds.
func (s Session) Valid() bool {
	return s.Connected == (s.Address != nil)
}

// Clone returns a deep copy so callers cannot mutate manager state.
func (s Session) Clone() Session {
	out := Session{Connected: s.Connected}
	if s.Address != nil {
		addr := *s.Address
		out.Address = &addr
	}
	if s.ChainID != nil {
		out.ChainID = new(big.Int).Set(s.ChainID)
	}
	return out
}

// AddressHex returns the checksummed address or "" when disconnected.
func (s Session) AddressHex() string {
	if s.Address == nil {
		return ""
	}
	return s.Address.Hex()
}

// TokenBalance is one entry of a balance snapshot.
type TokenBalance struct {
	Symbol   string   `json:"symbol"`
	Raw      *big.Int `json:"raw"`
	Decimals uint8    `json:"decimals"`
	Amount   string   `json:"amount"` // Raw scaled by Decimals, exact decimal string
	Failed   bool     `json:"failed,omitempty"`
}

// BalanceSnapshot maps token symbol to balance for the full configured token set.
type BalanceSnapshot struct {
	Address  common.Address          `json:"address"`
	Balances map[string]TokenBalance `json:"balances"`
	TakenAt  time.Time               `json:"taken_at"`
}

// Symbols returns the snapshot's token symbols in sorted order.
func (b *BalanceSnapshot) Symbols() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.Balances))
	for sym := range b.Balances {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Amount returns the decimal amount for a symbol, "0" when unknown.
func (b *BalanceSnapshot) Amount(symbol string) string {
	if b == nil {
		return "0"
	}
	if tb, ok := b.Balances[symbol]; ok {
		return tb.Amount
	}
	return "0"
}

// UserStatus is the allow-list record status.
type UserStatus string

const (
	UserStatusActive    UserStatus = "Active"
	UserStatusSuspended UserStatus = "Suspended"
	UserStatusInactive  UserStatus = "Inactive"
)

// IsValid checks if the status is one of the known values
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusActive, UserStatusSuspended, UserStatusInactive:
		return true
	default:
		return false
	}
}

// UserType is the joined permissions record from user_types.
type UserType struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	IsAdmin     bool     `json:"is_admin"`
	Permissions []string `json:"permissions,omitempty"`
}

// AuthorizationRecord is an allow-list entry keyed by lower-cased wallet address.
type AuthorizationRecord struct {
	ID            int64      `json:"id,omitempty"`
	WalletAddress string     `json:"wallet_address"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Status        UserStatus `json:"status"`
	UserTypeID    int64      `json:"user_type_id"`
	UserType      *UserType  `json:"user_types,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
}

// NormalizeAddress lower-cases and trims a wallet address for store lookups.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Plan is a staking plan as reported by the staking contract.
type Plan struct {
	ID         *big.Int      `json:"id"`
	Duration   time.Duration `json:"duration"`
	RewardRate *big.Int      `json:"reward_rate"` // basis points per Duration
	MinAmount  *big.Int      `json:"min_amount"`
	Active     bool          `json:"active"`
}

// StakePosition is read-only contract state for one user stake.
type StakePosition struct {
	PlanID         *big.Int  `json:"plan_id"`
	Amount         *big.Int  `json:"amount"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	LastRewardTime time.Time `json:"last_reward_time"`
	Active         bool      `json:"active"`
}

// Matured reports whether the lock period has elapsed at t.
func (p StakePosition) Matured(t time.Time) bool {
	return !t.Before(p.EndTime)
}

// TxState is the lifecycle of a submitted transaction.
type TxState string

const (
	TxSubmitted TxState = "submitted"
	TxConfirmed TxState = "confirmed"
	TxReverted  TxState = "reverted"
	TxDropped   TxState = "dropped"
)

// Terminal reports whether no further transition can happen.
func (s TxState) Terminal() bool {
	return s == TxConfirmed || s == TxReverted || s == TxDropped
}
