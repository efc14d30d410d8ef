package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommission(t *testing.T) {
	calc, err := NewCalculator(decimal.RequireFromString("0.05"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{name: "whole amount", amount: "100000", want: "5000"},
		{name: "cents", amount: "1234.56", want: "61.73"},
		{name: "rounds half up", amount: "0.10", want: "0.01"},
		{name: "rounds down", amount: "0.09", want: "0"},
		{name: "large", amount: "987654321.99", want: "49382716.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Commission(decimal.RequireFromString(tt.amount))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestNewCalculatorRejectsOutOfRangeRates(t *testing.T) {
	for _, rate := range []string{"0", "-0.05", "1", "1.5"} {
		_, err := NewCalculator(decimal.RequireFromString(rate))
		assert.ErrorIs(t, err, ErrInvalidRate, rate)
	}
}

func TestCommissionSumMatchesPerPaymentRounding(t *testing.T) {
	calc, err := NewCalculator(decimal.RequireFromString("0.05"))
	require.NoError(t, err)

	total := decimal.Zero
	for _, amount := range []string{"10.10", "10.10", "10.10"} {
		total = total.Add(calc.Commission(decimal.RequireFromString(amount)))
	}
	// 0.505 rounds to 0.51 per payment.
	assert.True(t, total.Equal(decimal.RequireFromString("1.53")), total.String())
}

func TestNormalizeAmount(t *testing.T) {
	assert.Equal(t, "12.35", NormalizeAmount(decimal.RequireFromString("12.345")).StringFixed(2))
	assert.Equal(t, "-12.35", NormalizeAmount(decimal.RequireFromString("-12.345")).StringFixed(2))
}
