package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"ChainChat/internal/chain"
	"ChainChat/internal/tools"
	"ChainChat/internal/wallet"
)

const (
	defaultBaseURL = "https://trade-api.gateway.uniswap.org/v1"
	defaultTimeout = 30 * time.Second

	// permit2Spender 是路由 API 约定的授权合约地址。
	permit2Spender = "0x000000000022d473030f116ddee9f6b43ac78ba3"
)

// maxApproval 为授权上限（uint256 最大值），避免每次兑换前重复授权。
var maxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

const approveABI = `[{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

// Config 描述兑换路由 API 的访问参数。
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Service 通过交易路由 API 完成授权检查、询价与代币兑换。
type Service struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	wallet     *wallet.Wallet
	client     *chain.Client
	approve    abi.ABI
}

// NewService 创建兑换服务。
func NewService(cfg Config, w *wallet.Wallet, client *chain.Client) (*Service, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供兑换 API Key")
	}
	if w == nil || client == nil {
		return nil, errors.New("兑换服务缺少钱包或链客户端")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	parsed, err := abi.JSON(strings.NewReader(approveABI))
	if err != nil {
		return nil, fmt.Errorf("解析 approve ABI 失败: %w", err)
	}

	return &Service{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		wallet:     w,
		client:     client,
		approve:    parsed,
	}, nil
}

// makeRequest 调用路由 API 并把业务错误码翻译成可读信息。
func (s *Service) makeRequest(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化 %s 请求失败: %w", endpoint, err)
	}

	url := s.baseURL + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("构建 %s 请求失败: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取 %s 响应失败: %w", endpoint, err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%s 返回了无效的 JSON: %s", endpoint, strings.TrimSpace(string(body)))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errorCode, _ := decoded["errorCode"].(string)
		switch errorCode {
		case "VALIDATION_ERROR":
			return nil, errors.New("兑换请求参数无效")
		case "INSUFFICIENT_BALANCE":
			return nil, errors.New("余额不足，无法完成兑换")
		case "RATE_LIMIT":
			return nil, errors.New("兑换 API 触发限流，请稍后重试")
		case "":
			return nil, fmt.Errorf("兑换 API 返回错误状态 %d", resp.StatusCode)
		default:
			return nil, fmt.Errorf("兑换 API 错误: %s", errorCode)
		}
	}
	return decoded, nil
}

type approvalParams struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// CheckApproval 检查代币授权额度，不足时先发送授权交易。兑换前必须完成授权。
func (s *Service) CheckApproval(ctx context.Context, raw json.RawMessage) (any, error) {
	var params approvalParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("解析授权参数失败: %w", err)
	}
	if !common.IsHexAddress(params.Token) {
		return nil, fmt.Errorf("无效的代币地址: %q", params.Token)
	}

	data, err := s.makeRequest(ctx, "check_approval", map[string]any{
		"token":         params.Token,
		"amount":        params.Amount,
		"walletAddress": s.wallet.Address().Hex(),
		"chainId":       s.client.ChainID().Int64(),
	})
	if err != nil {
		return nil, err
	}

	// 未返回 approval 字段说明额度已经足够。
	if _, ok := data["approval"]; !ok {
		return map[string]string{"status": "approved"}, nil
	}

	calldata, err := s.approve.Pack("approve", common.HexToAddress(permit2Spender), maxApproval)
	if err != nil {
		return nil, fmt.Errorf("编码 approve 调用失败: %w", err)
	}
	tokenAddr := common.HexToAddress(params.Token)
	txHash, err := s.sendTransaction(ctx, &tokenAddr, nil, calldata)
	if err != nil {
		return nil, fmt.Errorf("发送授权交易失败: %w", err)
	}

	return map[string]string{"status": "approved", "tx_hash": txHash}, nil
}

type quoteParams struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	Amount   string `json:"amount"`
}

// GetQuote 查询一次兑换的报价。
func (s *Service) GetQuote(ctx context.Context, raw json.RawMessage) (any, error) {
	var params quoteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("解析询价参数失败: %w", err)
	}
	return s.requestQuote(ctx, params)
}

func (s *Service) requestQuote(ctx context.Context, params quoteParams) (map[string]any, error) {
	if !common.IsHexAddress(params.TokenIn) || !common.IsHexAddress(params.TokenOut) {
		return nil, errors.New("询价需要合法的 token_in 与 token_out 地址")
	}
	if strings.TrimSpace(params.Amount) == "" {
		return nil, errors.New("询价金额不能为空")
	}

	chainID := s.client.ChainID().Int64()
	return s.makeRequest(ctx, "quote", map[string]any{
		"tokenIn":         params.TokenIn,
		"tokenOut":        params.TokenOut,
		"amount":          params.Amount,
		"type":            "EXACT_INPUT",
		"tokenInChainId":  chainID,
		"tokenOutChainId": chainID,
		"swapper":         s.wallet.Address().Hex(),
	})
}

// SwapTokens 先询价再发送兑换交易，返回交易哈希。
func (s *Service) SwapTokens(ctx context.Context, raw json.RawMessage) (any, error) {
	var params quoteParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("解析兑换参数失败: %w", err)
	}

	quote, err := s.requestQuote(ctx, params)
	if err != nil {
		return nil, err
	}

	data, err := s.makeRequest(ctx, "swap", map[string]any{
		"quote": quote["quote"],
	})
	if err != nil {
		return nil, err
	}

	swapTx, ok := data["swap"].(map[string]any)
	if !ok {
		return nil, errors.New("兑换 API 未返回交易内容")
	}
	to, _ := swapTx["to"].(string)
	if !common.IsHexAddress(to) {
		return nil, errors.New("兑换交易缺少合法的目标地址")
	}
	calldataHex, _ := swapTx["data"].(string)
	calldata, err := hexutil.Decode(calldataHex)
	if err != nil {
		return nil, fmt.Errorf("解析兑换交易数据失败: %w", err)
	}
	value := new(big.Int)
	if rawValue, ok := swapTx["value"].(string); ok && rawValue != "" && rawValue != "0x" {
		parsed, err := hexutil.DecodeBig(rawValue)
		if err != nil {
			return nil, fmt.Errorf("解析兑换交易金额失败: %w", err)
		}
		value = parsed
	}

	toAddr := common.HexToAddress(to)
	txHash, err := s.sendTransaction(ctx, &toAddr, value, calldata)
	if err != nil {
		return nil, fmt.Errorf("发送兑换交易失败: %w", err)
	}

	return map[string]any{
		"tx_hash":   txHash,
		"token_in":  params.TokenIn,
		"token_out": params.TokenOut,
		"amount":    params.Amount,
	}, nil
}

// sendTransaction 组装、签名并广播一笔交易。
func (s *Service) sendTransaction(ctx context.Context, to *common.Address, value *big.Int, calldata []byte) (string, error) {
	backend := s.client.Backend()
	from := s.wallet.Address()

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("查询 nonce 失败: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("查询 gas 价格失败: %w", err)
	}
	if value == nil {
		value = new(big.Int)
	}
	gas, err := backend.EstimateGas(ctx, gethcore.CallMsg{
		From:  from,
		To:    to,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		return "", fmt.Errorf("估算 gas 失败: %w", err)
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    value,
		Data:     calldata,
	})
	signed, err := s.wallet.SignTx(tx)
	if err != nil {
		return "", err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("广播交易失败: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// Tools 返回兑换相关的工具列表。
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "swap_check_approval",
			Description: "Check if the wallet has enough token approval for a swap and send the approval transaction when it does not. Must be called before swap_tokens.",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "token": {"type": "string", "description": "Token contract address to approve"},
    "amount": {"type": "string", "description": "Amount to swap, in the token's smallest denomination"}
  },
  "required": ["token", "amount"]
}`),
			Invoke: s.CheckApproval,
		},
		{
			Name:        "swap_get_quote",
			Description: "Get a quote for swapping one token for another.",
			Schema:      quoteSchema,
			Invoke:      s.GetQuote,
		},
		{
			Name:        "swap_tokens",
			Description: "Swap one token for another at the current market rate. Requires prior approval via swap_check_approval.",
			Schema:      quoteSchema,
			Invoke:      s.SwapTokens,
		},
	}
}

var quoteSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "token_in": {"type": "string", "description": "Input token contract address"},
    "token_out": {"type": "string", "description": "Output token contract address"},
    "amount": {"type": "string", "description": "Exact input amount, in the token's smallest denomination"}
  },
  "required": ["token_in", "token_out", "amount"]
}`)
