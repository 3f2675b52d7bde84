package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Wallet RPC methods used by the session manager.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodAccounts        = "eth_accounts"
	MethodChainID         = "eth_chainId"
	MethodSwitchChain     = "wallet_switchEthereumChain"
	MethodAddChain        = "wallet_addEthereumChain"
)

// Event is a provider notification name.
type Event string

const (
	EventAccountsChanged Event = "accountsChanged"
	EventChainChanged    Event = "chainChanged"
)

// Listener receives provider events. Payloads are []string for
// accountsChanged and a hex chain id string for chainChanged.
// Implementations must be comparable so RemoveListener can find them.
type Listener interface {
	HandleEvent(event Event, payload any)
}

// ListenerFunc adapts a function to a Listener. Use a pointer to it when
// registering so the value stays comparable.
type ListenerFunc func(event Event, payload any)

func (f *ListenerFunc) HandleEvent(event Event, payload any) { (*f)(event, payload) }

// Provider is an EIP-1193 style wallet: one request entry point plus
// event subscriptions.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	On(event Event, l Listener) error
	RemoveListener(event Event, l Listener)
}

// switchChainParams is the wallet_switchEthereumChain argument.
type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func decodeAccounts(raw json.RawMessage) ([]string, error) {
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("invalid accounts response: %w", err)
	}
	return accounts, nil
}

func decodeChainID(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid chain id response: %w", err)
	}
	return parseChainID(s)
}

// parseChainID accepts hex ("0x38") or decimal ("56") chain ids.
func parseChainID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err := hexutil.DecodeBig(strings.ToLower(s))
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		return id, nil
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

// accountsPayload normalizes an accountsChanged payload. ok is false when
// the payload is not a list of strings.
func accountsPayload(payload any) (accounts []string, ok bool) {
	switch v := payload.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
