package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
)

// Summary lists the referrals a partner can claim right now and their total.
type Summary struct {
	Referrals          []referraldomain.Referral `json:"referrals"`
	AvailableForPayout decimal.Decimal           `json:"available_for_payout"`
}

type Service interface {
	ListEligible(ctx context.Context) (Summary, error)
}

var ErrUnauthenticated = errors.New("eligibility_unauthenticated")
