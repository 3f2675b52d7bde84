package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stakeport/stakeport/internal/config"
	"github.com/stakeport/stakeport/internal/logging"
)

// Backend is the RPC surface the contract clients need. *ethclient.Client
// satisfies it; tests substitute an in-memory fake.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ClientConfig holds chain connection settings
type ClientConfig struct {
	RPCURL        string
	WSURL         string
	ChainID       *big.Int
	Confirmations uint64
	TxTimeout     time.Duration
	GasMultiplier float64
	MaxGasPrice   *big.Int
}

// ClientConfigFromNetwork converts the network section of the config file.
func ClientConfigFromNetwork(n config.NetworkConfig) *ClientConfig {
	cc := &ClientConfig{
		RPCURL:        n.RPCURL,
		WSURL:         n.WSURL,
		ChainID:       big.NewInt(n.ChainID),
		GasMultiplier: n.GasMultiplier,
		MaxGasPrice:   n.MaxGasPrice(),
		TxTimeout:     time.Duration(n.TxTimeoutSecs) * time.Second,
	}
	if n.Confirmations > 0 {
		cc.Confirmations = uint64(n.Confirmations)
	}
	return cc
}

// Client provides access to the BNB Smart Chain RPC
type Client struct {
	config  *ClientConfig
	backend Backend
	rpc     *ethclient.Client
	ws      *ethclient.Client
	mu      sync.RWMutex
}

// Dial connects to the configured RPC endpoint and verifies the chain id.
func Dial(ctx context.Context, cfg *ClientConfig) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if cfg.ChainID != nil && chainID.Cmp(cfg.ChainID) != 0 {
		rpc.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %s, got %s", cfg.ChainID, chainID)
	}

	c := &Client{config: cfg, backend: rpc, rpc: rpc}
	c.config.ChainID = chainID

	// The websocket endpoint only serves event subscriptions
	if cfg.WSURL != "" {
		ws, err := ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			logging.Warn("websocket endpoint unavailable",
				"url", cfg.WSURL,
				logging.Err(err))
		} else {
			c.ws = ws
		}
	}
	return c, nil
}

// NewClient wraps an existing backend. Used by tests and by callers that
// manage their own RPC connection.
func NewClient(backend Backend, cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = &ClientConfig{ChainID: big.NewInt(config.ChainIDBSC)}
	}
	return &Client{config: cfg, backend: backend}
}

// Close closes the RPC connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpc != nil {
		c.rpc.Close()
		c.rpc = nil
	}
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}

// Backend returns the contract backend
func (c *Client) Backend() Backend {
	return c.backend
}

// WSClient returns the websocket client for subscriptions, or nil.
func (c *Client) WSClient() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ws
}

// ChainID returns the verified chain ID
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.config.ChainID)
}

// Config returns the client configuration
func (c *Client) Config() *ClientConfig {
	return c.config
}

// NativeBalance returns the BNB balance of an account.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// gasPrice returns the suggested gas price capped at MaxGasPrice.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	if c.config.MaxGasPrice != nil && price.Cmp(c.config.MaxGasPrice) > 0 {
		price = new(big.Int).Set(c.config.MaxGasPrice)
	}
	return price, nil
}
