// Package commission derives partner commission from recorded payment amounts.
package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for amounts and commissions.
const Scale = 2

var ErrInvalidRate = errors.New("invalid_commission_rate")

// Calculator applies a fixed rate. A Calculator is built once per recorded
// payment from the policy in force at that moment.
type Calculator struct {
	rate decimal.Decimal
}

func NewCalculator(rate decimal.Decimal) (Calculator, error) {
	if !rate.IsPositive() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Calculator{}, ErrInvalidRate
	}
	return Calculator{rate: rate}, nil
}

func (c Calculator) Rate() decimal.Decimal {
	return c.rate
}

// Commission returns round(amount * rate, 2), rounding half away from zero.
// Callers reject non-positive amounts before calling.
func (c Calculator) Commission(amount decimal.Decimal) decimal.Decimal {
	return NormalizeAmount(amount.Mul(c.rate))
}

// NormalizeAmount rounds amount to two decimal places.
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}
