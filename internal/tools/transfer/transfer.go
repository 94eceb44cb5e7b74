package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	"ChainChat/internal/chain"
	"ChainChat/internal/tools"
	"ChainChat/internal/wallet"
)

// nativeTransferGas is the fixed gas cost of a plain value transfer.
const nativeTransferGas = 21000

const erc20ABI = `[
  {"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// Service executes value transfers and balance queries against the chain on
// behalf of the model.
type Service struct {
	wallet   *wallet.Wallet
	client   *chain.Client
	registry *chain.TokenRegistry
	tokenABI abi.ABI
}

// NewService wires the wallet, chain client and token registry together.
func NewService(w *wallet.Wallet, client *chain.Client, registry *chain.TokenRegistry) (*Service, error) {
	if w == nil {
		return nil, errors.New("wallet is required")
	}
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Service{wallet: w, client: client, registry: registry, tokenABI: parsed}, nil
}

type transferParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

type transferResult struct {
	TxHash string `json:"tx_hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

// Transfer sends the native asset or a registered ERC-20 token. The amount is
// a decimal string in token units ("0.5" means half a token).
func (s *Service) Transfer(ctx context.Context, raw json.RawMessage) (any, error) {
	var params transferParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode transfer arguments: %w", err)
	}
	if !common.IsHexAddress(params.To) {
		return nil, fmt.Errorf("invalid recipient address %q", params.To)
	}
	to := common.HexToAddress(params.To)

	symbol := params.Token
	if strings.TrimSpace(symbol) == "" {
		symbol = chain.NativeSymbol
	}
	token, ok := s.registry.Resolve(symbol)
	if !ok {
		return nil, fmt.Errorf("unknown token %q", symbol)
	}

	amount, err := ParseAmount(params.Amount, token.Decimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}

	backend := s.client.Backend()
	from := s.wallet.Address()

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("query nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("query gas price: %w", err)
	}

	var tx *coretypes.Transaction
	if token.Native {
		tx = coretypes.NewTx(&coretypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      nativeTransferGas,
			To:       &to,
			Value:    amount,
		})
	} else {
		calldata, err := s.tokenABI.Pack("transfer", to, amount)
		if err != nil {
			return nil, fmt.Errorf("encode transfer call: %w", err)
		}
		tokenAddr := token.Address
		gas, err := backend.EstimateGas(ctx, gethcore.CallMsg{
			From: from,
			To:   &tokenAddr,
			Data: calldata,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		tx = coretypes.NewTx(&coretypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &tokenAddr,
			Data:     calldata,
		})
	}

	signed, err := s.wallet.SignTx(tx)
	if err != nil {
		return nil, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}

	return transferResult{
		TxHash: signed.Hash().Hex(),
		From:   from.Hex(),
		To:     to.Hex(),
		Amount: params.Amount,
		Token:  token.Symbol,
	}, nil
}

type balanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type balanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Raw     string `json:"raw"`
}

// Balance reports the native or ERC-20 balance of an address, defaulting to
// the wallet's own address.
func (s *Service) Balance(ctx context.Context, raw json.RawMessage) (any, error) {
	var params balanceParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("decode balance arguments: %w", err)
		}
	}

	address := s.wallet.Address()
	if strings.TrimSpace(params.Address) != "" {
		if !common.IsHexAddress(params.Address) {
			return nil, fmt.Errorf("invalid address %q", params.Address)
		}
		address = common.HexToAddress(params.Address)
	}

	symbol := params.Token
	if strings.TrimSpace(symbol) == "" {
		symbol = chain.NativeSymbol
	}
	token, ok := s.registry.Resolve(symbol)
	if !ok {
		return nil, fmt.Errorf("unknown token %q", symbol)
	}

	backend := s.client.Backend()
	var value *big.Int
	if token.Native {
		balance, err := backend.BalanceAt(ctx, address, nil)
		if err != nil {
			return nil, fmt.Errorf("query balance: %w", err)
		}
		value = balance
	} else {
		calldata, err := s.tokenABI.Pack("balanceOf", address)
		if err != nil {
			return nil, fmt.Errorf("encode balanceOf call: %w", err)
		}
		tokenAddr := token.Address
		output, err := backend.CallContract(ctx, gethcore.CallMsg{To: &tokenAddr, Data: calldata}, nil)
		if err != nil {
			return nil, fmt.Errorf("call balanceOf: %w", err)
		}
		results, err := s.tokenABI.Unpack("balanceOf", output)
		if err != nil {
			return nil, fmt.Errorf("decode balanceOf result: %w", err)
		}
		balance, ok := results[0].(*big.Int)
		if !ok {
			return nil, errors.New("unexpected balanceOf result type")
		}
		value = balance
	}

	return balanceResult{
		Address: address.Hex(),
		Token:   token.Symbol,
		Balance: FormatAmount(value, token.Decimals),
		Raw:     value.String(),
	}, nil
}

// WalletAddress returns the agent wallet's own address.
func (s *Service) WalletAddress(_ context.Context, _ json.RawMessage) (any, error) {
	return map[string]string{"address": s.wallet.Address().Hex()}, nil
}

// Tools returns the wallet action capabilities in registration order.
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Name:        "send_transfer",
			Description: "Transfer the native asset or a registered ERC-20 token from the agent wallet to a recipient address.",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "to": {"type": "string", "description": "Recipient address (0x-prefixed hex)"},
    "amount": {"type": "string", "description": "Amount in token units, e.g. \"0.5\""},
    "token": {"type": "string", "description": "Token symbol; omit for the native asset"}
  },
  "required": ["to", "amount"]
}`),
			Invoke: s.Transfer,
		},
		{
			Name:        "get_balance",
			Description: "Get the native or ERC-20 token balance of an address. Defaults to the agent wallet address.",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "address": {"type": "string", "description": "Address to query; omit for the agent wallet"},
    "token": {"type": "string", "description": "Token symbol; omit for the native asset"}
  }
}`),
			Invoke: s.Balance,
		},
		{
			Name:        "get_wallet_address",
			Description: "Get the agent wallet's own address.",
			Schema:      json.RawMessage(`{"type": "object", "properties": {}}`),
			Invoke:      s.WalletAddress,
		},
	}
}
