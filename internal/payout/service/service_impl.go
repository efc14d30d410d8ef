package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	auditdomain "github.com/smallbiznis/referralhub/internal/audit/domain"
	bankingdomain "github.com/smallbiznis/referralhub/internal/banking/domain"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/commission"
	notificationdomain "github.com/smallbiznis/referralhub/internal/notification/domain"
	"github.com/smallbiznis/referralhub/internal/observability/metrics"
	"github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/internal/providers/blob"
	"github.com/smallbiznis/referralhub/internal/providers/pdf"
	"github.com/smallbiznis/referralhub/internal/ratelimit"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	"github.com/smallbiznis/referralhub/pkg/db"
	"github.com/smallbiznis/referralhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const partnerListLimit = 200

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	ReferralRepo referraldomain.Repository
	BankingSvc   bankingdomain.Service
	NotifySvc    notificationdomain.Service
	AuditSvc     auditdomain.Service
	Blob         blob.Provider
	PDF          pdf.Provider
	Guard        *ratelimit.Guard `optional:"true"`
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	referralRepo referraldomain.Repository
	bankingSvc   bankingdomain.Service
	notifySvc    notificationdomain.Service
	auditSvc     auditdomain.Service
	blob         blob.Provider
	pdf          pdf.Provider
	guard        *ratelimit.Guard
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payout.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		referralRepo: p.ReferralRepo,
		bankingSvc:   p.BankingSvc,
		notifySvc:    p.NotifySvc,
		auditSvc:     p.AuditSvc,
		blob:         p.Blob,
		pdf:          p.PDF,
		guard:        p.Guard,
		metrics:      p.Metrics,
	}
}

// Request opens a pending payout against one of the partner's referrals.
// Preconditions are checked in order: ownership, eligibility, amount, and
// finally the absence of another active payout.
func (s *Service) Request(ctx context.Context, req domain.RequestPayoutRequest) (domain.Payout, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return domain.Payout{}, domain.ErrUnauthenticated
	}
	if req.ReferralID == 0 {
		return domain.Payout{}, referraldomain.ErrInvalidID
	}

	var (
		payout   domain.Payout
		referral referraldomain.Referral
	)
	err := s.guard.WithEntityLock(ctx, "referral", req.ReferralID.String(), func() error {
		now := s.clock.Now()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.referralRepo.FindByID(ctx, tx, req.ReferralID)
			if err != nil {
				return err
			}
			if current == nil || current.PartnerID != actor.ID {
				return referraldomain.ErrNotFound
			}

			active, err := s.repo.FindActiveByReferral(ctx, tx, current.ID)
			if err != nil {
				return err
			}
			if !current.PayoutEligible() {
				// A repeat request while the first is still open is a conflict,
				// not an eligibility failure.
				if current.EligibleIgnoringRequest() && active != nil {
					return domain.ErrPayoutExists
				}
				return domain.ErrNotEligible
			}

			amount := current.TotalCommissionEarned
			if req.Amount.Valid {
				amount = commission.NormalizeAmount(req.Amount.Decimal)
				if !amount.IsPositive() {
					return domain.ErrInvalidAmount
				}
				if amount.GreaterThan(current.TotalCommissionEarned) {
					return domain.ErrAmountExceedsEarned
				}
			}

			if active != nil {
				return domain.ErrPayoutExists
			}

			account, err := s.bankingSvc.AccountFor(ctx, tx, actor.ID)
			if err != nil {
				return err
			}

			payout = domain.Payout{
				ID:          s.genID.Generate(),
				PartnerID:   actor.ID,
				ReferralID:  current.ID,
				Amount:      amount,
				Status:      domain.StatusPending,
				RequestedAt: now,
				Version:     1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if account != nil {
				payout.BankCode = account.BankCode
				payout.BankName = account.BankName
				payout.AccountNumber = account.AccountNumber
				payout.AccountName = account.AccountName
			}
			if err := s.repo.Insert(ctx, tx, &payout); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrPayoutExists
				}
				return err
			}

			if err := s.referralRepo.SetPayoutRequested(ctx, tx, current.ID, current.Version, true, now); err != nil {
				if errors.Is(err, referraldomain.ErrConcurrentUpdate) {
					return domain.ErrConcurrentUpdate
				}
				return err
			}
			referral = *current
			return nil
		})
	})
	if err != nil {
		return domain.Payout{}, err
	}

	s.metrics.RecordPayoutEvent(ctx, "requested")
	s.notify(ctx, notificationdomain.NotifyRequest{
		Audience: notificationdomain.AudienceStaff,
		Type:     notificationdomain.TypePayoutRequested,
		Title:    "Payout requested",
		Message:  fmt.Sprintf("Partner %s requested a payout of %s for referral %s (%s).", actor.ID, payout.Amount.StringFixed(2), referral.Code, referral.CompanyName),
	})
	s.audit(ctx, "payout.request", payout.ID, map[string]any{
		"referral_id": payout.ReferralID.String(),
		"amount":      payout.Amount.StringFixed(2),
	})
	return payout, nil
}

// Process moves a payout through staff settlement. Every argument check runs
// before the proof is uploaded, and the upload runs before any write.
func (s *Service) Process(ctx context.Context, req domain.ProcessPayoutRequest) (domain.Payout, error) {
	target, ok := domain.ParseProcessTarget(strings.TrimSpace(req.Status))
	if !ok {
		return domain.Payout{}, domain.ErrInvalidStatus
	}
	reference := strings.TrimSpace(req.PaymentReference)
	if target == domain.StatusPaid && reference == "" {
		return domain.Payout{}, domain.ErrReferenceRequired
	}
	var amountPaid decimal.NullDecimal
	if req.AmountPaid.Valid {
		amountPaid = decimal.NewNullDecimal(commission.NormalizeAmount(req.AmountPaid.Decimal))
		if !amountPaid.Decimal.IsPositive() {
			return domain.Payout{}, domain.ErrInvalidAmountPaid
		}
	}
	if req.PayoutID == 0 {
		return domain.Payout{}, domain.ErrInvalidID
	}

	actor, _ := actorcontext.ActorFromContext(ctx)

	var before, after domain.Payout
	err := s.guard.WithEntityLock(ctx, "payout", req.PayoutID.String(), func() error {
		current, err := s.repo.FindByID(ctx, s.db, req.PayoutID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if !current.Status.CanTransition(target) {
			return domain.ErrInvalidTransition
		}
		if amountPaid.Valid && amountPaid.Decimal.GreaterThan(current.Amount) {
			return domain.ErrInvalidAmountPaid
		}

		proofURL := current.ProofOfPaymentURL
		if req.Proof != nil && len(req.Proof.Data) > 0 {
			url, err := s.blob.Upload(ctx, req.Proof.Data, req.Proof.ContentType, req.Proof.Filename)
			if err != nil {
				s.log.Error("failed to upload proof of payment", zap.String("payout_id", current.ID.String()), zap.Error(err))
				return fmt.Errorf("%w: %v", domain.ErrProofUpload, err)
			}
			proofURL = &url
		}

		now := s.clock.Now()
		settlement := domain.Settlement{
			Status:            target,
			AmountPaid:        current.AmountPaid,
			PaymentReference:  current.PaymentReference,
			ProofOfPaymentURL: proofURL,
			Notes:             current.Notes,
			ProcessedAt:       current.ProcessedAt,
			ProcessedBy:       current.ProcessedBy,
		}
		if reference != "" {
			settlement.PaymentReference = &reference
		}
		if notes := strings.TrimSpace(req.Notes); notes != "" {
			settlement.Notes = notes
		}
		switch target {
		case domain.StatusPaid:
			settlement.ProcessedAt = &now
			settlement.AmountPaid = decimal.NewNullDecimal(current.Amount)
			if amountPaid.Valid {
				settlement.AmountPaid = amountPaid
			}
			if actor.ID != "" {
				settlement.ProcessedBy = &actor.ID
			}
		case domain.StatusFailed:
			if actor.ID != "" {
				settlement.ProcessedBy = &actor.ID
			}
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.ApplySettlement(ctx, tx, current.ID, current.Version, settlement, now); err != nil {
				return err
			}
			if target != domain.StatusFailed {
				return nil
			}
			return s.reopenReferral(ctx, tx, current.ReferralID, now)
		})
		if err != nil {
			return err
		}

		before = *current
		after = *current
		after.Status = settlement.Status
		after.AmountPaid = settlement.AmountPaid
		after.PaymentReference = settlement.PaymentReference
		after.ProofOfPaymentURL = settlement.ProofOfPaymentURL
		after.Notes = settlement.Notes
		after.ProcessedAt = settlement.ProcessedAt
		after.ProcessedBy = settlement.ProcessedBy
		after.Version++
		after.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.Payout{}, err
	}

	s.metrics.RecordPayoutEvent(ctx, string(target))
	switch target {
	case domain.StatusPaid:
		s.notify(ctx, notificationdomain.NotifyRequest{
			UserID:   after.PartnerID,
			Audience: notificationdomain.AudiencePartner,
			Type:     notificationdomain.TypePayoutPaid,
			Title:    "Payout paid",
			Message:  fmt.Sprintf("Your payout of %s has been paid. Reference: %s.", after.AmountPaid.Decimal.StringFixed(2), reference),
		})
	case domain.StatusFailed:
		s.notify(ctx, notificationdomain.NotifyRequest{
			UserID:   after.PartnerID,
			Audience: notificationdomain.AudiencePartner,
			Type:     notificationdomain.TypePayoutFailed,
			Title:    "Payout failed",
			Message:  fmt.Sprintf("Your payout of %s could not be completed. You can request it again.", after.Amount.StringFixed(2)),
		})
	}
	s.audit(ctx, "payout.process", after.ID, map[string]any{
		"before": snapshot(before),
		"after":  snapshot(after),
	})
	return after, nil
}

// Cancel withdraws a pending payout and makes the referral claimable again.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Payout, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return domain.Payout{}, domain.ErrUnauthenticated
	}
	if id == 0 {
		return domain.Payout{}, domain.ErrInvalidID
	}

	var payout domain.Payout
	err := s.guard.WithEntityLock(ctx, "payout", id.String(), func() error {
		now := s.clock.Now()
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			current, err := s.repo.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if current == nil || current.PartnerID != actor.ID {
				return domain.ErrNotFound
			}
			if current.Status != domain.StatusPending {
				return domain.ErrNotCancellable
			}

			if err := s.repo.Cancel(ctx, tx, current.ID, current.Version, now); err != nil {
				return err
			}
			if err := s.reopenReferral(ctx, tx, current.ReferralID, now); err != nil {
				return err
			}

			payout = *current
			payout.Status = domain.StatusCancelled
			payout.Version++
			payout.UpdatedAt = now
			return nil
		})
	})
	if err != nil {
		return domain.Payout{}, err
	}

	s.metrics.RecordPayoutEvent(ctx, "cancelled")
	s.audit(ctx, "payout.cancel", payout.ID, map[string]any{
		"referral_id": payout.ReferralID.String(),
		"amount":      payout.Amount.StringFixed(2),
	})
	return payout, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Payout, error) {
	payout, err := s.loadVisible(ctx, id)
	if err != nil {
		return domain.Payout{}, err
	}
	return *payout, nil
}

func (s *Service) ListForPartner(ctx context.Context) ([]domain.Payout, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return nil, domain.ErrUnauthenticated
	}

	items, err := s.repo.ListByPartner(ctx, s.db, actor.ID, partnerListLimit)
	if err != nil {
		return nil, err
	}
	return deref(items), nil
}

func (s *Service) ListByStatus(ctx context.Context, req domain.ListPayoutsRequest) (domain.ListPayoutsResponse, error) {
	var status *domain.Status
	if raw := strings.TrimSpace(req.Status); raw != "" {
		parsed := domain.Status(raw)
		switch parsed {
		case domain.StatusPending, domain.StatusProcessing, domain.StatusPaid, domain.StatusFailed, domain.StatusCancelled:
		default:
			return domain.ListPayoutsResponse{}, domain.ErrInvalidStatus
		}
		status = &parsed
	}

	items, err := s.repo.ListByStatus(ctx, s.db, status, req.Pagination)
	if err != nil {
		return domain.ListPayoutsResponse{}, err
	}

	page, pageInfo := pagination.Trim(items, req.Pagination, func(p *domain.Payout) pagination.Cursor {
		return pagination.Cursor{
			ID:        p.ID.String(),
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	})
	return domain.ListPayoutsResponse{
		PageInfo: pageInfo,
		Payouts:  deref(page),
	}, nil
}

// Remittance renders the remittance advice of a paid payout.
func (s *Service) Remittance(ctx context.Context, id snowflake.ID) ([]byte, error) {
	payout, err := s.loadVisible(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.StatusPaid {
		return nil, domain.ErrNotPaid
	}

	referral, err := s.referralRepo.FindByID(ctx, s.db, payout.ReferralID)
	if err != nil {
		return nil, err
	}

	data := pdf.RemittanceData{
		PayoutID:      payout.ID.String(),
		PartnerID:     payout.PartnerID,
		Amount:        payout.Amount.StringFixed(2),
		BankName:      payout.BankName,
		AccountName:   payout.AccountName,
		AccountNumber: payout.AccountNumber,
		Notes:         payout.Notes,
	}
	if referral != nil {
		data.ReferralCode = referral.Code
		data.CompanyName = referral.CompanyName
	}
	if payout.AmountPaid.Valid {
		data.AmountPaid = payout.AmountPaid.Decimal.StringFixed(2)
	}
	if payout.PaymentReference != nil {
		data.PaymentReference = *payout.PaymentReference
	}
	if payout.ProcessedAt != nil {
		data.PaidAt = payout.ProcessedAt.UTC().Format("02 Jan 2006 15:04 MST")
	}

	return s.pdf.GenerateRemittance(ctx, data)
}

// reopenReferral clears payout_requested so the referral is claimable again.
func (s *Service) reopenReferral(ctx context.Context, tx *gorm.DB, referralID snowflake.ID, now time.Time) error {
	referral, err := s.referralRepo.FindByID(ctx, tx, referralID)
	if err != nil {
		return err
	}
	if referral == nil || !referral.PayoutRequested {
		return nil
	}
	if err := s.referralRepo.SetPayoutRequested(ctx, tx, referral.ID, referral.Version, false, now); err != nil {
		if errors.Is(err, referraldomain.ErrConcurrentUpdate) {
			return domain.ErrConcurrentUpdate
		}
		return err
	}
	return nil
}

func (s *Service) loadVisible(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	payout, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrNotFound
	}
	if actor.IsPartner() && payout.PartnerID != actor.ID {
		return nil, domain.ErrNotFound
	}
	return payout, nil
}

func (s *Service) notify(ctx context.Context, req notificationdomain.NotifyRequest) {
	if s.notifySvc == nil {
		return
	}
	if err := s.notifySvc.Notify(ctx, req); err != nil {
		s.log.Warn("failed to send notification", zap.String("type", req.Type), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, action string, payoutID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := payoutID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "payout", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.String("payout_id", targetID), zap.Error(err))
	}
}

func snapshot(p domain.Payout) map[string]any {
	view := map[string]any{
		"status": string(p.Status),
		"amount": p.Amount.StringFixed(2),
		"notes":  p.Notes,
	}
	if p.AmountPaid.Valid {
		view["amount_paid"] = p.AmountPaid.Decimal.StringFixed(2)
	}
	if p.PaymentReference != nil {
		view["payment_reference"] = *p.PaymentReference
	}
	if p.ProofOfPaymentURL != nil {
		view["proof_of_payment_url"] = *p.ProofOfPaymentURL
	}
	if p.ProcessedAt != nil {
		view["processed_at"] = p.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return view
}

func deref(items []*domain.Payout) []domain.Payout {
	out := make([]domain.Payout, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out
}
