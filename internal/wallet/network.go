package wallet

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stakeport/stakeport/internal/config"
)

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// NetworkParams are the fixed parameters sent with wallet_addEthereumChain.
type NetworkParams struct {
	ChainID           *big.Int
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

type networkParamsJSON struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// MarshalJSON encodes the EIP-3085 shape with a hex chain id.
func (p NetworkParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(networkParamsJSON{
		ChainID:           hexChainID(p.ChainID),
		ChainName:         p.ChainName,
		NativeCurrency:    p.NativeCurrency,
		RPCURLs:           p.RPCURLs,
		BlockExplorerURLs: p.BlockExplorerURLs,
	})
}

// UnmarshalJSON decodes the EIP-3085 shape.
func (p *NetworkParams) UnmarshalJSON(data []byte) error {
	var raw networkParamsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := parseChainID(raw.ChainID)
	if err != nil {
		return err
	}
	*p = NetworkParams{
		ChainID:           id,
		ChainName:         raw.ChainName,
		NativeCurrency:    raw.NativeCurrency,
		RPCURLs:           raw.RPCURLs,
		BlockExplorerURLs: raw.BlockExplorerURLs,
	}
	return nil
}

// NetworkFromConfig builds add-chain parameters from the network config.
func NetworkFromConfig(n config.NetworkConfig) NetworkParams {
	p := NetworkParams{
		ChainID:   big.NewInt(n.ChainID),
		ChainName: n.Name,
		NativeCurrency: NativeCurrency{
			Name:     n.CurrencyName,
			Symbol:   n.CurrencySymbol,
			Decimals: n.CurrencyDecimals,
		},
		RPCURLs: []string{n.RPCURL},
	}
	if n.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	return p
}

func hexChainID(id *big.Int) string {
	if id == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(id)
}
