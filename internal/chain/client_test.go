package chain

import (
	"context"
	"math/big"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

type stubBackend struct {
	blockNumber uint64
}

func (b *stubBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (b *stubBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return b.blockNumber, nil
}
func (b *stubBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (b *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}
func (b *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (b *stubBackend) EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error) {
	return 21000, nil
}
func (b *stubBackend) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	return nil
}
func (b *stubBackend) CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing rpc url")
	}
}

func TestClientWithBackend(t *testing.T) {
	client := NewClientWithBackend(&stubBackend{blockNumber: 0x10}, big.NewInt(11155111))

	if client.ChainID().Int64() != 11155111 {
		t.Fatalf("unexpected chain id: %s", client.ChainID())
	}

	snapshot, err := client.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.BlockNumber != "0x10" {
		t.Fatalf("unexpected block number: %s", snapshot.BlockNumber)
	}
	if snapshot.ChainID != "0xaa36a7" {
		t.Fatalf("unexpected chain id: %s", snapshot.ChainID)
	}
}

func TestFetchSnapshotNilClient(t *testing.T) {
	var client *Client
	if _, err := client.FetchSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error for uninitialised client")
	}
}
