package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	auditdomain "github.com/smallbiznis/referralhub/internal/audit/domain"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/commission"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/smallbiznis/referralhub/internal/observability/metrics"
	"github.com/smallbiznis/referralhub/internal/payment/domain"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Policy       *config.CommissionPolicyHolder
	ReferralRepo referraldomain.Repository
	ReferralSvc  referraldomain.Service
	AuditSvc     auditdomain.Service
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	policy       *config.CommissionPolicyHolder
	referralRepo referraldomain.Repository
	referralSvc  referraldomain.Service
	auditSvc     auditdomain.Service
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		policy:       p.Policy,
		referralRepo: p.ReferralRepo,
		referralSvc:  p.ReferralSvc,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

// Record stores a client payment with its commission computed once at the
// current rate. A confirmed payment linked to a referral is accrued into the
// referral's totals in the same transaction.
func (s *Service) Record(ctx context.Context, req domain.RecordPaymentRequest) (domain.Payment, error) {
	if isZeroID(req.ReferralID) && isZeroID(req.LeadID) {
		return domain.Payment{}, domain.ErrMissingLink
	}

	amount := commission.NormalizeAmount(req.Amount)
	if !amount.IsPositive() {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	status := domain.Status(strings.TrimSpace(req.Status))
	switch status {
	case "":
		status = domain.StatusConfirmed
	case domain.StatusConfirmed, domain.StatusPending:
	default:
		return domain.Payment{}, domain.ErrInvalidStatus
	}

	calc, err := commission.NewCalculator(s.policy.Get().Rate)
	if err != nil {
		return domain.Payment{}, err
	}

	actor, _ := actorcontext.ActorFromContext(ctx)
	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = req.PaymentDate.UTC()
	}

	payment := domain.Payment{
		ID:                   s.genID.Generate(),
		Amount:               amount,
		CommissionRate:       calc.Rate(),
		CommissionCalculated: calc.Commission(amount),
		PaymentDate:          paymentDate,
		PaymentMethod:        strings.TrimSpace(req.PaymentMethod),
		TransactionReference: strings.TrimSpace(req.TransactionReference),
		Notes:                strings.TrimSpace(req.Notes),
		Status:               status,
		RecordedBy:           actor.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referralID, leadID, err := s.resolveLinks(ctx, tx, req.ReferralID, req.LeadID)
		if err != nil {
			return err
		}
		payment.ReferralID = referralID
		payment.LeadID = leadID

		accrue := status == domain.StatusConfirmed && referralID != nil
		if accrue {
			payment.AccruedAt = &now
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}
		if !accrue {
			return nil
		}
		_, err = s.referralSvc.ApplyConfirmedPayment(ctx, tx, *referralID, payment.Amount, payment.CommissionCalculated)
		return err
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.metrics.RecordPayment(ctx, string(payment.Status))
	s.audit(ctx, "payment.record", payment.ID, map[string]any{
		"referral_id":           idString(payment.ReferralID),
		"lead_id":               idString(payment.LeadID),
		"amount":                payment.Amount.StringFixed(2),
		"commission_rate":       payment.CommissionRate.String(),
		"commission_calculated": payment.CommissionCalculated.StringFixed(2),
		"status":                string(payment.Status),
	})
	return payment, nil
}

// Confirm flips a pending payment to confirmed and accrues it exactly once.
func (s *Service) Confirm(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	if id == 0 {
		return domain.Payment{}, domain.ErrInvalidID
	}
	now := s.clock.Now()

	var payment domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status != domain.StatusPending {
			return domain.ErrAlreadyConfirmed
		}

		var accruedAt *time.Time
		if current.ReferralID != nil {
			accruedAt = &now
		}
		swapped, err := s.repo.MarkConfirmed(ctx, tx, current.ID, accruedAt, now)
		if err != nil {
			return err
		}
		if !swapped {
			return domain.ErrAlreadyConfirmed
		}

		payment = *current
		payment.Status = domain.StatusConfirmed
		payment.AccruedAt = accruedAt
		payment.UpdatedAt = now
		if current.ReferralID == nil {
			return nil
		}
		_, err = s.referralSvc.ApplyConfirmedPayment(ctx, tx, *current.ReferralID, current.Amount, current.CommissionCalculated)
		return err
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.metrics.RecordPayment(ctx, string(domain.StatusConfirmed))
	s.audit(ctx, "payment.confirm", payment.ID, map[string]any{
		"referral_id":           idString(payment.ReferralID),
		"commission_calculated": payment.CommissionCalculated.StringFixed(2),
	})
	return payment, nil
}

// Update applies the allow-listed corrections. Amount and commission are
// never changed here; a wrong amount is corrected by recording a new payment.
func (s *Service) Update(ctx context.Context, id snowflake.ID, patch domain.Patch) (domain.Payment, error) {
	if id == 0 {
		return domain.Payment{}, domain.ErrInvalidID
	}
	if patch.Empty() {
		return domain.Payment{}, domain.ErrEmptyPatch
	}
	now := s.clock.Now()

	var before, after domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		before = *current

		if err := s.repo.ApplyPatch(ctx, tx, id, patch, now); err != nil {
			return err
		}
		updated, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		after = *updated
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.audit(ctx, "payment.update", id, map[string]any{
		"before": patchView(before),
		"after":  patchView(after),
	})
	return after, nil
}

// resolveLinks checks the referenced rows and derives the referral from the
// lead when only a lead is given.
func (s *Service) resolveLinks(ctx context.Context, tx *gorm.DB, referralID, leadID *snowflake.ID) (*snowflake.ID, *snowflake.ID, error) {
	if isZeroID(referralID) {
		referralID = nil
	}
	if isZeroID(leadID) {
		leadID = nil
	}

	if leadID != nil {
		lead, err := s.referralSvc.ResolveLead(ctx, tx, *leadID)
		if err != nil {
			return nil, nil, err
		}
		if lead.ReferralID != nil {
			if referralID != nil && *referralID != *lead.ReferralID {
				return nil, nil, domain.ErrReferralMismatch
			}
			linked := *lead.ReferralID
			referralID = &linked
		}
	}

	if referralID != nil {
		referral, err := s.referralRepo.FindByID(ctx, tx, *referralID)
		if err != nil {
			return nil, nil, err
		}
		if referral == nil {
			return nil, nil, referraldomain.ErrNotFound
		}
	}
	return referralID, leadID, nil
}

func (s *Service) audit(ctx context.Context, action string, paymentID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := paymentID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "payment", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.String("payment_id", targetID), zap.Error(err))
	}
}

func patchView(p domain.Payment) map[string]any {
	return map[string]any{
		"payment_date":          p.PaymentDate.Format(time.RFC3339),
		"payment_method":        p.PaymentMethod,
		"transaction_reference": p.TransactionReference,
		"notes":                 p.Notes,
	}
}

func isZeroID(id *snowflake.ID) bool {
	return id == nil || *id == 0
}

func idString(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
