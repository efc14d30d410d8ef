package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	"github.com/smallbiznis/referralhub/internal/eligibility/domain"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	ReferralRepo referraldomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	referralRepo referraldomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("eligibility.service"),
		referralRepo: p.ReferralRepo,
	}
}

// ListEligible applies Referral.PayoutEligible, the same predicate payout
// requests are checked against, to the partner's fully paid referrals.
func (s *Service) ListEligible(ctx context.Context) (domain.Summary, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return domain.Summary{}, domain.ErrUnauthenticated
	}

	items, err := s.referralRepo.ListFullyPaidByPartner(ctx, s.db, actor.ID)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{
		Referrals:          make([]referraldomain.Referral, 0, len(items)),
		AvailableForPayout: decimal.Zero,
	}
	for _, item := range items {
		if item == nil || !item.PayoutEligible() {
			continue
		}
		summary.Referrals = append(summary.Referrals, *item)
		summary.AvailableForPayout = summary.AvailableForPayout.Add(item.TotalCommissionEarned)
	}

	s.log.Debug("eligible referrals listed",
		zap.String("partner_id", actor.ID),
		zap.Int("count", len(summary.Referrals)),
	)
	return summary, nil
}
