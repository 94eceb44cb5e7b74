package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// NativeSymbol is the symbol used for the chain's native asset.
const NativeSymbol = "ETH"

// Token describes one entry of the token registry file.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
	Native   bool
}

// TokenRegistry resolves token symbols to on-chain addresses. Lookups are
// case-insensitive; the registry is immutable after loading.
type TokenRegistry struct {
	tokens map[string]Token
}

type tokenDefinitions struct {
	Tokens map[string]tokenDefinition `yaml:"tokens"`
}

type tokenDefinition struct {
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

// LoadTokenRegistry parses the YAML file containing token metadata. The
// native asset is always present, even with an empty path.
func LoadTokenRegistry(path string) (*TokenRegistry, error) {
	registry := &TokenRegistry{tokens: map[string]Token{
		strings.ToUpper(NativeSymbol): {Symbol: NativeSymbol, Decimals: 18, Native: true},
	}}
	if strings.TrimSpace(path) == "" {
		return registry, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token registry: %w", err)
	}

	var defs tokenDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("parse token registry: %w", err)
	}

	for symbol, def := range defs.Tokens {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		if symbol == strings.ToUpper(NativeSymbol) {
			continue
		}
		if !common.IsHexAddress(def.Address) {
			return nil, fmt.Errorf("token %s has invalid address %q", symbol, def.Address)
		}
		decimals := def.Decimals
		if decimals <= 0 {
			decimals = 18
		}
		registry.tokens[symbol] = Token{
			Symbol:   symbol,
			Address:  common.HexToAddress(def.Address),
			Decimals: decimals,
		}
	}
	return registry, nil
}

// Resolve looks up a token by symbol.
func (r *TokenRegistry) Resolve(symbol string) (Token, bool) {
	if r == nil {
		return Token{}, false
	}
	token, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

// Symbols returns the registered symbols in no particular order.
func (r *TokenRegistry) Symbols() []string {
	if r == nil {
		return nil
	}
	symbols := make([]string, 0, len(r.tokens))
	for symbol := range r.tokens {
		symbols = append(symbols, symbol)
	}
	return symbols
}
