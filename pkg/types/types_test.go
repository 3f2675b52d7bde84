package types

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSession_Valid(t *testing.T) {
	addr := common.HexToAddress("0xabc0000000000000000000000000000000000001")

	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"disconnected", Session{}, true},
		{"connected", Session{Address: &addr, Connected: true}, true},
		{"connected without address", Session{Connected: true}, false},
		{"address without connected", Session{Address: &addr}, false},
	}
	for _, tt := range tests {
		if got := tt.s.Valid(); got != tt.want {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	addr := common.HexToAddress("0x1")
	s := Session{Address: &addr, ChainID: big.NewInt(56), Connected: true}

	c := s.Clone()
	c.ChainID.SetInt64(97)
	*c.Address = common.HexToAddress("0x2")

	if s.ChainID.Int64() != 56 {
		t.Errorf("clone shares chain id")
	}
	if *s.Address != addr {
		t.Errorf("clone shares address")
	}
}

func TestProviderError_IsUserRejected(t *testing.T) {
	err := fmt.Errorf("connect: %w", &ProviderError{Code: ProviderCodeUserRejected, Message: "denied"})
	if !errors.Is(err, ErrUserRejected) {
		t.Error("4001 should match ErrUserRejected")
	}
	if ProviderCode(err) != ProviderCodeUserRejected {
		t.Errorf("ProviderCode = %d", ProviderCode(err))
	}

	other := &ProviderError{Code: ProviderCodeUnrecognizedChain}
	if errors.Is(other, ErrUserRejected) {
		t.Error("4902 should not match ErrUserRejected")
	}
}

func TestDeliveryError_Unwrap(t *testing.T) {
	cause := errors.New("535 auth failed")
	err := &DeliveryError{Transport: "smtp", Diagnostic: cause.Error(), Err: cause}

	if !errors.Is(err, ErrDelivery) {
		t.Error("expected ErrDelivery")
	}
	if !errors.Is(err, cause) {
		t.Error("expected transport cause")
	}
}

func TestUserStatus_IsValid(t *testing.T) {
	for _, s := range []UserStatus{UserStatusActive, UserStatusSuspended, UserStatusInactive} {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if UserStatus("active").IsValid() {
		t.Error("status is case-sensitive")
	}
}

func TestBalanceSnapshot_Symbols(t *testing.T) {
	b := &BalanceSnapshot{Balances: map[string]TokenBalance{
		"USDT": {Symbol: "USDT", Amount: "1"},
		"FID":  {Symbol: "FID", Amount: "2"},
	}}
	got := b.Symbols()
	if len(got) != 2 || got[0] != "FID" || got[1] != "USDT" {
		t.Errorf("Symbols() = %v", got)
	}
	if b.Amount("BNB") != "0" {
		t.Errorf("unknown symbol should read as 0")
	}
}
