package escrow

import (
	"testing"

	"github.com/canwork/escrow-service/internal/processor"
)

func params(values ...string) []processor.FunctionParam {
	out := make([]processor.FunctionParam, 0, len(values))
	for _, v := range values {
		out = append(out, processor.FunctionParam{Type: "uint256", Value: v})
	}
	return out
}

func TestApproveAmount(t *testing.T) {
	cases := []struct {
		name     string
		params   []processor.FunctionParam
		decimals int
		want     string
	}{
		{"whole tokens", params("0xSpender", "150000000"), 6, "150"},
		{"fractional", params("0xSpender", "150500000"), 6, "150.5"},
		{"sub unit", params("0xSpender", "1"), 6, "0.000001"},
		{"zero decimals", params("0xSpender", "42"), 0, "42"},
		{"large amount", params("0xSpender", "1000000000000000000"), 18, "1"},
		{"missing amount param", params("0xSpender"), 6, ""},
		{"no params", nil, 6, ""},
		{"non numeric", params("0xSpender", "lots"), 6, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ApproveAmount(tc.params, tc.decimals); got != tc.want {
				t.Fatalf("ApproveAmount(...) = %q, want %q", got, tc.want)
			}
		})
	}
}
