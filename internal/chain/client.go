// Package chain provides read-only blockchain RPC access for the reward
// distribution engine: block headers, Transfer event queries and ERC-20
// balance reads against the configured token contract.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Config holds RPC connection settings.
type Config struct {
	// Primary HTTP endpoint URL
	URL string `yaml:"url"`

	// WebSocket endpoint URL (for new-head subscriptions)
	WSURL string `yaml:"ws_url"`

	// ChainID is the expected numeric chain ID, verified on connect
	ChainID uint64 `yaml:"chain_id"`

	// Token is the ERC-20 contract emitting the Transfer events we ingest
	Token string `yaml:"token"`

	// Per-call deadline applied to every RPC request
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// Client is the read-only chain boundary consumed by the ingestion loop
// and the distribution orchestrator.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FinalizedBlockNumber(ctx context.Context) (uint64, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]Transfer, error)
	TokenBalanceAt(ctx context.Context, holder common.Address, blockNumber *big.Int) (*big.Int, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	Close()
}

// RPCClient implements Client over go-ethereum's ethclient.
type RPCClient struct {
	cfg    Config
	logger *slog.Logger

	client   *ethclient.Client
	wsClient *ethclient.Client

	token common.Address
}

// Dial connects the HTTP endpoint, verifies the chain ID, and optionally
// connects the WebSocket endpoint for head subscriptions.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*RPCClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}
	if cfg.Token == "" || !common.IsHexAddress(cfg.Token) {
		return nil, fmt.Errorf("token contract address is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &RPCClient{
		cfg:    cfg,
		logger: logger.With("component", "chain-client"),
		token:  common.HexToAddress(cfg.Token),
	}

	var err error
	c.client, err = ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial HTTP RPC: %w", err)
	}

	chainID, err := c.client.ChainID(ctx)
	if err != nil {
		c.client.Close()
		return nil, fmt.Errorf("get chain ID: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		c.client.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %d", cfg.ChainID, chainID.Uint64())
	}
	c.logger.Info("connected to RPC", "url", cfg.URL, "chain_id", chainID)

	if cfg.WSURL != "" {
		c.wsClient, err = ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			c.logger.Warn("failed to connect WebSocket, head subscription unavailable", "error", err)
			c.wsClient = nil
		}
	}

	return c, nil
}

func (c *RPCClient) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// BlockNumber returns the current head block number.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n, nil
}

// FinalizedBlockNumber returns the number of the latest finalized block,
// the safe boundary for re-walking the ingestion window after reorgs.
func (c *RPCClient) FinalizedBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, big.NewInt(rpc.FinalizedBlockNumber.Int64()))
	if err != nil {
		return 0, fmt.Errorf("get finalized header: %w", err)
	}
	return header.Number.Uint64(), nil
}

// HeaderByHash returns the header for the given block hash. Used to
// resolve event block timestamps.
func (c *RPCClient) HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	header, err := c.client.HeaderByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get header %s: %w", hash.Hex(), err)
	}
	return header, nil
}

// FilterTransfers fetches and strictly decodes all Transfer events emitted
// by the token contract in the inclusive block range [fromBlock, toBlock].
func (c *RPCClient) FilterTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]Transfer, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{TransferTopic}},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d, %d]: %w", fromBlock, toBlock, err)
	}

	transfers := make([]Transfer, 0, len(logs))
	for i := range logs {
		transfer, err := DecodeTransfer(&logs[i])
		if err != nil {
			return nil, fmt.Errorf("decode log %s[%d]: %w", logs[i].TxHash.Hex(), logs[i].Index, err)
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// TokenBalanceAt reads the token balance of holder, optionally at a
// historical block when blockNumber is non-nil.
func (c *RPCClient) TokenBalanceAt(ctx context.Context, holder common.Address, blockNumber *big.Int) (*big.Int, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()

	data := packBalanceOf(holder)
	msg := ethereum.CallMsg{To: &c.token, Data: data}

	out, err := c.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", holder.Hex(), err)
	}
	if len(out) != 32 {
		return nil, fmt.Errorf("balanceOf %s: unexpected return length %d", holder.Hex(), len(out))
	}
	return new(big.Int).SetBytes(out), nil
}

// SubscribeNewHead subscribes to new block headers over WebSocket. Returns
// an error if no WebSocket endpoint is configured; callers fall back to
// polling.
func (c *RPCClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if c.wsClient == nil {
		return nil, fmt.Errorf("no WebSocket endpoint configured")
	}
	sub, err := c.wsClient.SubscribeNewHead(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}
	return sub, nil
}

// Close releases the underlying RPC connections.
func (c *RPCClient) Close() {
	if c.wsClient != nil {
		c.wsClient.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
}

var _ Client = (*RPCClient)(nil)
