package transfer

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount converts a decimal string in token units into the smallest
// on-chain denomination. "1.5" with 18 decimals yields 1500000000000000000.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount is required")
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("amount %q must not be negative", amount)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("invalid decimals %d", decimals)
	}

	whole, fraction := amount, ""
	if idx := strings.IndexByte(amount, '.'); idx >= 0 {
		whole, fraction = amount[:idx], amount[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(fraction) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	fraction += strings.Repeat("0", decimals-len(fraction))

	value, ok := new(big.Int).SetString(whole+fraction, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	return value, nil
}

// FormatAmount renders an on-chain value as a decimal string in token units,
// trimming trailing zeros from the fractional part.
func FormatAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	text := value.String()
	if decimals <= 0 {
		return text
	}
	negative := strings.HasPrefix(text, "-")
	if negative {
		text = text[1:]
	}
	if len(text) <= decimals {
		text = strings.Repeat("0", decimals-len(text)+1) + text
	}
	split := len(text) - decimals
	whole, fraction := text[:split], strings.TrimRight(text[split:], "0")
	result := whole
	if fraction != "" {
		result += "." + fraction
	}
	if negative {
		result = "-" + result
	}
	return result
}
