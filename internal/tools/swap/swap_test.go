package swap

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"ChainChat/internal/chain"
	"ChainChat/internal/wallet"
)

const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	usdcAddress    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	wethAddress    = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

type fakeBackend struct {
	sent []*coretypes.Transaction
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (b *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}
func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 3, nil
}
func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (b *fakeBackend) EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error) {
	return 90_000, nil
}
func (b *fakeBackend) SendTransaction(ctx context.Context, tx *coretypes.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}
func (b *fakeBackend) CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func newTestService(t *testing.T, baseURL string, backend *fakeBackend) *Service {
	t.Helper()
	w, err := wallet.New(testPrivateKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc, err := NewService(Config{APIKey: "test", BaseURL: baseURL}, w, chain.NewClientWithBackend(backend, big.NewInt(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestNewServiceValidation(t *testing.T) {
	w, err := wallet.New(testPrivateKey, big.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewService(Config{}, w, chain.NewClientWithBackend(&fakeBackend{}, big.NewInt(1))); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
	if _, err := NewService(Config{APIKey: "k"}, nil, nil); err == nil {
		t.Fatalf("expected error when wallet or client is missing")
	}
}

func TestCheckApprovalAlreadyApproved(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/check_approval" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test" {
			t.Fatalf("api key header missing")
		}
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"requestId": "r-1"})
	}))
	defer srv.Close()

	backend := &fakeBackend{}
	svc := newTestService(t, srv.URL, backend)
	svc.httpClient = srv.Client()

	result, err := svc.CheckApproval(context.Background(), json.RawMessage(
		`{"token":"`+usdcAddress+`","amount":"1000000"}`,
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := result.(map[string]string)
	if out["status"] != "approved" || out["tx_hash"] != "" {
		t.Fatalf("unexpected result: %v", out)
	}
	if len(backend.sent) != 0 {
		t.Fatalf("no transaction should be sent when allowance suffices")
	}
	if captured["walletAddress"] != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("wallet address missing from request: %v", captured)
	}
}

func TestCheckApprovalSendsApproveTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"approval": map[string]any{"to": usdcAddress},
		})
	}))
	defer srv.Close()

	backend := &fakeBackend{}
	svc := newTestService(t, srv.URL, backend)
	svc.httpClient = srv.Client()

	result, err := svc.CheckApproval(context.Background(), json.RawMessage(
		`{"token":"`+usdcAddress+`","amount":"1000000"}`,
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected an approve transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.To().Hex() != usdcAddress {
		t.Fatalf("approve must target the token contract, got %s", tx.To())
	}
	// approve(spender, value) 的 calldata 应包含 Permit2 合约地址。
	spender := strings.ToLower(strings.TrimPrefix(permit2Spender, "0x"))
	if !strings.Contains(strings.ToLower(common.Bytes2Hex(tx.Data())), spender) {
		t.Fatalf("approve calldata does not reference the permit2 spender")
	}
	if result.(map[string]string)["tx_hash"] == "" {
		t.Fatalf("tx hash missing from result")
	}
}

func TestGetQuote(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quote": map[string]any{"output": map[string]any{"amount": "420"}},
		})
	}))
	defer srv.Close()

	svc := newTestService(t, srv.URL, &fakeBackend{})
	svc.httpClient = srv.Client()

	result, err := svc.GetQuote(context.Background(), json.RawMessage(
		`{"token_in":"`+usdcAddress+`","token_out":"`+wethAddress+`","amount":"1000000"}`,
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.(map[string]any)["quote"]; !ok {
		t.Fatalf("quote missing from result: %v", result)
	}
	if captured["type"] != "EXACT_INPUT" {
		t.Fatalf("quote request must be exact input: %v", captured)
	}
	if captured["tokenInChainId"] != float64(1) || captured["tokenOutChainId"] != float64(1) {
		t.Fatalf("chain ids missing from quote request: %v", captured)
	}
}

func TestSwapTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/quote":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"quote": map[string]any{"routing": "CLASSIC"},
			})
		case "/swap":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"swap": map[string]any{
					"to":    wethAddress,
					"data":  "0x12345678",
					"value": "0x0",
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	backend := &fakeBackend{}
	svc := newTestService(t, srv.URL, backend)
	svc.httpClient = srv.Client()

	result, err := svc.SwapTokens(context.Background(), json.RawMessage(
		`{"token_in":"`+usdcAddress+`","token_out":"`+wethAddress+`","amount":"1000000"}`,
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(backend.sent) != 1 {
		t.Fatalf("expected one swap transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.To().Hex() != wethAddress {
		t.Fatalf("swap transaction target mismatch: %s", tx.To())
	}
	if common.Bytes2Hex(tx.Data()) != "12345678" {
		t.Fatalf("swap calldata mismatch: %x", tx.Data())
	}

	out := result.(map[string]any)
	if out["tx_hash"] == "" || out["token_in"] != usdcAddress {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestMakeRequestTranslatesErrorCodes(t *testing.T) {
	cases := []struct {
		code string
		want string
	}{
		{"VALIDATION_ERROR", "参数无效"},
		{"INSUFFICIENT_BALANCE", "余额不足"},
		{"RATE_LIMIT", "限流"},
		{"SOMETHING_ELSE", "SOMETHING_ELSE"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"errorCode": tc.code})
			}))
			defer srv.Close()

			svc := newTestService(t, srv.URL, &fakeBackend{})
			svc.httpClient = srv.Client()

			_, err := svc.GetQuote(context.Background(), json.RawMessage(
				`{"token_in":"`+usdcAddress+`","token_out":"`+wethAddress+`","amount":"1"}`,
			))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestQuoteValidation(t *testing.T) {
	svc := newTestService(t, "http://unused.invalid", &fakeBackend{})

	if _, err := svc.GetQuote(context.Background(), json.RawMessage(`{"token_in":"nope","token_out":"`+wethAddress+`","amount":"1"}`)); err == nil {
		t.Fatalf("expected error for invalid token address")
	}
	if _, err := svc.GetQuote(context.Background(), json.RawMessage(`{"token_in":"`+usdcAddress+`","token_out":"`+wethAddress+`","amount":" "}`)); err == nil {
		t.Fatalf("expected error for empty amount")
	}
}
