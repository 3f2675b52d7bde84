package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatUnits renders a raw integer amount as an exact decimal string using
// the token's precision. Trailing fractional zeros are trimmed.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	neg := raw.Sign() < 0
	digits := new(big.Int).Abs(raw).String()

	d := int(decimals)
	if d > 0 {
		if len(digits) <= d {
			digits = strings.Repeat("0", d-len(digits)+1) + digits
		}
		whole, frac := digits[:len(digits)-d], strings.TrimRight(digits[len(digits)-d:], "0")
		digits = whole
		if frac != "" {
			digits += "." + frac
		}
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// ParseUnits converts a decimal string to a raw integer amount. More
// fractional digits than the token's precision is an error.
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if (whole == "" && frac == "") || !allDigits(whole) || !allDigits(frac) {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	raw, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if neg {
		raw.Neg(raw)
	}
	return raw, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
