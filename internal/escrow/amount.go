package escrow

import (
	"math/big"
	"strings"

	"github.com/canwork/escrow-service/internal/processor"
)

// DefaultTokenDecimals is the decimal precision of the escrow token.
const DefaultTokenDecimals = 6

// ApproveAmount decodes the token amount from an approve call's parameters
// and renders it scaled down by the token's decimal precision. The approve
// signature is approve(spender, amount), so the amount is the second
// parameter. Returns "" when the parameters cannot be decoded; the milestone
// is still recorded in that case, just without an amount.
func ApproveAmount(params []processor.FunctionParam, decimals int) string {
	if len(params) < 2 {
		return ""
	}
	raw := strings.TrimSpace(params[1].Value)
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return ""
	}
	return scaleDown(n, decimals)
}

// scaleDown divides n by 10^decimals and formats the result as a decimal
// string without trailing zeros.
func scaleDown(n *big.Int, decimals int) string {
	if decimals <= 0 {
		return n.String()
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Rat).SetFrac(n, divisor)

	s := value.FloatString(decimals)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s
}
