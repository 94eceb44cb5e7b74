package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to reach an EVM compatible endpoint.
type Config struct {
	RPCURL  string
	ChainID int64
}

// Backend is the subset of node operations the wallet tools rely on. It is
// satisfied by *ethclient.Client and by in-memory fakes in tests.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client bundles the RPC connection with the chain identity expected by the
// local wallet. The configured chain ID guards against signing for the wrong
// network when the endpoint is misconfigured.
type Client struct {
	rpcClient *gethrpc.Client
	backend   Backend
	chainID   *big.Int
}

// NewClient dials the configured RPC endpoint and verifies the chain ID.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("chain rpc_url is required")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain endpoint: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	remoteID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if cfg.ChainID > 0 && remoteID.Int64() != cfg.ChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("chain id mismatch: endpoint reports %s, config expects %d", remoteID, cfg.ChainID)
	}

	return &Client{
		rpcClient: rpcClient,
		backend:   eth,
		chainID:   remoteID,
	}, nil
}

// NewClientWithBackend wires an existing backend, used by tests.
func NewClientWithBackend(backend Backend, chainID *big.Int) *Client {
	return &Client{backend: backend, chainID: new(big.Int).Set(chainID)}
}

// ChainID returns the verified chain identifier.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Backend exposes the underlying node operations.
func (c *Client) Backend() Backend {
	return c.backend
}

// Snapshot gathers lightweight metadata from the chain.
type Snapshot struct {
	ChainID     string
	BlockNumber string
}

// FetchSnapshot reports the chain ID and latest block height.
func (c *Client) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	if c == nil || c.backend == nil {
		return Snapshot{}, errors.New("chain client not initialised")
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query block number: %w", err)
	}
	return Snapshot{
		ChainID:     "0x" + c.chainID.Text(16),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
	}, nil
}

// Close releases the network connection held by the client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}
