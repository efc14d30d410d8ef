package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	auditdomain "github.com/smallbiznis/referralhub/internal/audit/domain"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/commission"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/smallbiznis/referralhub/internal/observability/metrics"
	"github.com/smallbiznis/referralhub/internal/referral/domain"
	"github.com/smallbiznis/referralhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxCodeAttempts  = 5
	partnerListLimit = 200
	activityStatus   = "status_change"
	activityLeadOpen = "lead_created"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Policy   *config.CommissionPolicyHolder
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	policy   *config.CommissionPolicyHolder
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("referral.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		policy:   p.Policy,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateReferralRequest) (domain.Referral, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return domain.Referral{}, domain.ErrUnauthenticated
	}

	companyName := strings.TrimSpace(req.CompanyName)
	if companyName == "" {
		return domain.Referral{}, domain.ErrInvalidCompanyName
	}
	email := strings.TrimSpace(req.ContactEmail)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Referral{}, domain.ErrInvalidEmail
	}
	if req.EstimatedDealValue.IsNegative() {
		return domain.Referral{}, domain.ErrInvalidDealValue
	}

	now := s.clock.Now()
	referral := domain.Referral{
		ID:                    s.genID.Generate(),
		PartnerID:             actor.ID,
		CompanyName:           companyName,
		ContactName:           strings.TrimSpace(req.ContactName),
		ContactEmail:          email,
		ContactPhone:          strings.TrimSpace(req.ContactPhone),
		Industry:              strings.TrimSpace(req.Industry),
		Notes:                 strings.TrimSpace(req.Notes),
		Status:                domain.StatusCodeSent,
		EstimatedDealValue:    commission.NormalizeAmount(req.EstimatedDealValue),
		TotalDealValue:        decimal.Zero,
		TotalCommissionEarned: decimal.Zero,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	prefix := s.policy.Get().CodePrefix
	inserted := false
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := domain.NewCode(prefix)
		if err != nil {
			return domain.Referral{}, err
		}
		referral.Code = code

		err = s.repo.Insert(ctx, s.db, &referral)
		if err == nil {
			inserted = true
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Referral{}, err
		}
		s.log.Debug("referral code collision, retrying", zap.Int("attempt", attempt+1))
	}
	if !inserted {
		return domain.Referral{}, domain.ErrCodeExhausted
	}

	s.audit(ctx, "referral.create", referral.ID, map[string]any{
		"code":         referral.Code,
		"company_name": referral.CompanyName,
	})
	return referral, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Referral, error) {
	referral, err := s.loadVisible(ctx, id)
	if err != nil {
		return domain.Referral{}, err
	}
	return *referral, nil
}

func (s *Service) ListForPartner(ctx context.Context) ([]domain.Referral, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return nil, domain.ErrUnauthenticated
	}

	items, err := s.repo.ListByPartner(ctx, s.db, actor.ID, partnerListLimit)
	if err != nil {
		return nil, err
	}

	referrals := make([]domain.Referral, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		referrals = append(referrals, *item)
	}
	return referrals, nil
}

func (s *Service) LookupByCode(ctx context.Context, code string) (domain.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !domain.ValidCode(code) {
		return domain.Referral{}, domain.ErrInvalidCode
	}

	referral, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Referral{}, err
	}
	if referral == nil {
		return domain.Referral{}, domain.ErrNotFound
	}
	return *referral, nil
}

func (s *Service) TransitionStatus(ctx context.Context, req domain.TransitionRequest) (domain.Referral, error) {
	target, ok := domain.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		return domain.Referral{}, domain.ErrInvalidStatus
	}
	if target == domain.StatusFullyPaid {
		return domain.Referral{}, domain.ErrUseFinalize
	}
	if req.ReferralID == 0 {
		return domain.Referral{}, domain.ErrInvalidID
	}
	return s.transition(ctx, req.ReferralID, target, strings.TrimSpace(req.Notes), "referral.status_update")
}

// FinalizeDeal moves a non-terminal referral to fully_paid and is the only
// path that sets commission_eligible.
func (s *Service) FinalizeDeal(ctx context.Context, id snowflake.ID, notes string) (domain.Referral, error) {
	if id == 0 {
		return domain.Referral{}, domain.ErrInvalidID
	}
	return s.transition(ctx, id, domain.StatusFullyPaid, strings.TrimSpace(notes), "referral.finalize")
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, target domain.Status, notes, action string) (domain.Referral, error) {
	actor, _ := actorcontext.ActorFromContext(ctx)
	now := s.clock.Now()

	var before, after domain.Referral
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status.Terminal() {
			return domain.ErrTerminal
		}
		if current.Status == target {
			return domain.ErrSameStatus
		}

		// commission_eligible never goes back to false once set.
		eligible := current.CommissionEligible || target == domain.StatusFullyPaid
		if err := s.repo.UpdateStatus(ctx, tx, current.ID, current.Version, target, eligible, now); err != nil {
			return err
		}

		before = *current
		after = *current
		after.Status = target
		after.CommissionEligible = eligible
		after.Version++
		after.UpdatedAt = now

		return s.syncLead(ctx, tx, after, before.Status, notes, actor.ID, now)
	})
	if err != nil {
		return domain.Referral{}, err
	}

	s.metrics.RecordReferralTransition(ctx, string(target))
	s.audit(ctx, action, after.ID, map[string]any{
		"from_status":         string(before.Status),
		"to_status":           string(after.Status),
		"commission_eligible": after.CommissionEligible,
		"notes":               notes,
	})
	return after, nil
}

func (s *Service) syncLead(ctx context.Context, tx *gorm.DB, referral domain.Referral, from domain.Status, notes, actorID string, now time.Time) error {
	lead, err := s.repo.FindLeadByReferralID(ctx, tx, referral.ID)
	if err != nil {
		return err
	}
	if lead == nil {
		return nil
	}

	if leadStatus, ok := domain.LeadStatusFor(referral.Status); ok && lead.Status != leadStatus {
		if err := s.repo.UpdateLeadStatus(ctx, tx, lead.ID, leadStatus, now); err != nil {
			return err
		}
	}

	description := fmt.Sprintf("referral status changed from %s to %s", from, referral.Status)
	if notes != "" {
		description += ": " + notes
	}
	return s.repo.InsertLeadActivity(ctx, tx, &domain.LeadActivity{
		ID:           s.genID.Generate(),
		LeadID:       lead.ID,
		ActivityType: activityStatus,
		Description:  description,
		ActorID:      actorID,
		CreatedAt:    now,
	})
}

func (s *Service) CreateLead(ctx context.Context, req domain.CreateLeadRequest) (domain.Lead, error) {
	if req.ReferralID == 0 {
		return domain.Lead{}, domain.ErrInvalidID
	}
	actor, _ := actorcontext.ActorFromContext(ctx)
	now := s.clock.Now()

	var lead domain.Lead
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.FindByID(ctx, tx, req.ReferralID)
		if err != nil {
			return err
		}
		if referral == nil {
			return domain.ErrNotFound
		}

		existing, err := s.repo.FindLeadByReferralID(ctx, tx, referral.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrLeadExists
		}

		referralID := referral.ID
		lead = domain.Lead{
			ID:           s.genID.Generate(),
			ReferralID:   &referralID,
			CompanyName:  referral.CompanyName,
			ContactEmail: referral.ContactEmail,
			AssignedTo:   strings.TrimSpace(req.AssignedTo),
			Status:       domain.LeadStatusNew,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.InsertLead(ctx, tx, &lead); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrLeadExists
			}
			return err
		}

		return s.repo.InsertLeadActivity(ctx, tx, &domain.LeadActivity{
			ID:           s.genID.Generate(),
			LeadID:       lead.ID,
			ActivityType: activityLeadOpen,
			Description:  "lead opened from referral " + referral.Code,
			ActorID:      actor.ID,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return domain.Lead{}, err
	}

	s.audit(ctx, "lead.create", req.ReferralID, map[string]any{
		"lead_id": lead.ID.String(),
	})
	return lead, nil
}

func (s *Service) ResolveLead(ctx context.Context, tx *gorm.DB, leadID snowflake.ID) (*domain.Lead, error) {
	lead, err := s.repo.FindLeadByID(ctx, tx, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, domain.ErrLeadNotFound
	}
	return lead, nil
}

func (s *Service) ApplyConfirmedPayment(ctx context.Context, tx *gorm.DB, referralID snowflake.ID, amount, earned decimal.Decimal) (*domain.Referral, error) {
	referral, err := s.repo.FindByID(ctx, tx, referralID)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	totalDeal := referral.TotalDealValue.Add(amount)
	totalCommission := referral.TotalCommissionEarned.Add(earned)
	if err := s.repo.UpdateTotals(ctx, tx, referral.ID, referral.Version, totalDeal, totalCommission, now); err != nil {
		return nil, err
	}

	referral.TotalDealValue = totalDeal
	referral.TotalCommissionEarned = totalCommission
	referral.Version++
	referral.UpdatedAt = now
	return referral, nil
}

// loadVisible returns the referral when the caller may see it. Partners
// asking for someone else's referral get ErrNotFound.
func (s *Service) loadVisible(ctx context.Context, id snowflake.ID) (*domain.Referral, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	referral, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, domain.ErrNotFound
	}
	if actor.IsPartner() && referral.PartnerID != actor.ID {
		return nil, domain.ErrNotFound
	}
	return referral, nil
}

func (s *Service) audit(ctx context.Context, action string, referralID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := referralID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "referral", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("referral_id", targetID),
			zap.Error(err),
		)
	}
}
