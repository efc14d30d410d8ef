package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/smallbiznis/referralhub/internal/actorcontext"
	auditdomain "github.com/smallbiznis/referralhub/internal/audit/domain"
	"github.com/smallbiznis/referralhub/internal/banking/domain"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/observability/metrics"
	"github.com/smallbiznis/referralhub/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	bankCodePattern      = regexp.MustCompile(`^[0-9]{3,6}$`)
	accountNumberPattern = regexp.MustCompile(`^[0-9]{10}$`)
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Resolver domain.Resolver
	AuditSvc auditdomain.Service
	Guard    *ratelimit.Guard `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	resolver domain.Resolver
	auditSvc auditdomain.Service
	guard    *ratelimit.Guard
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("banking.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		resolver: p.Resolver,
		auditSvc: p.AuditSvc,
		guard:    p.Guard,
		metrics:  p.Metrics,
	}
}

// SetAccount verifies the account with the bank lookup service and stores it
// as the partner's payout destination.
func (s *Service) SetAccount(ctx context.Context, req domain.SetAccountRequest) (domain.PartnerBankAccount, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return domain.PartnerBankAccount{}, domain.ErrUnauthenticated
	}

	bankCode := strings.TrimSpace(req.BankCode)
	if !bankCodePattern.MatchString(bankCode) {
		return domain.PartnerBankAccount{}, domain.ErrInvalidBankCode
	}
	accountNumber := strings.TrimSpace(req.AccountNumber)
	if !accountNumberPattern.MatchString(accountNumber) {
		return domain.PartnerBankAccount{}, domain.ErrInvalidAccountNumber
	}

	if err := s.guard.AllowBankLookup(ctx, actor.ID); err != nil {
		return domain.PartnerBankAccount{}, err
	}

	accountName, err := s.resolver.Resolve(ctx, bankCode, accountNumber)
	s.metrics.RecordBankLookup(ctx, lookupResult(err))
	if err != nil {
		return domain.PartnerBankAccount{}, err
	}

	now := s.clock.Now()
	account := domain.PartnerBankAccount{
		PartnerID:     actor.ID,
		BankCode:      bankCode,
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: accountNumber,
		AccountName:   accountName,
		VerifiedAt:    now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Upsert(ctx, s.db, &account); err != nil {
		return domain.PartnerBankAccount{}, err
	}

	if s.auditSvc != nil {
		if err := s.auditSvc.AuditLog(ctx, "", nil, "bank_account.set", "bank_account", &actor.ID, map[string]any{
			"bank_code":      bankCode,
			"account_number": accountNumber,
			"account_name":   accountName,
		}); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", "bank_account.set"), zap.Error(err))
		}
	}
	return account, nil
}

func (s *Service) GetAccount(ctx context.Context) (domain.PartnerBankAccount, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || !actor.IsPartner() {
		return domain.PartnerBankAccount{}, domain.ErrUnauthenticated
	}
	account, err := s.AccountFor(ctx, s.db, actor.ID)
	if err != nil {
		return domain.PartnerBankAccount{}, err
	}
	if account == nil {
		return domain.PartnerBankAccount{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) AccountFor(ctx context.Context, db *gorm.DB, partnerID string) (*domain.PartnerBankAccount, error) {
	return s.repo.FindByPartner(ctx, db, partnerID)
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, domain.ErrAccountNotResolved):
		return "not_resolved"
	default:
		return "unavailable"
	}
}
