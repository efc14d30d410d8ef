package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateReferralRequest struct {
	CompanyName        string
	ContactName        string
	ContactEmail       string
	ContactPhone       string
	Industry           string
	Notes              string
	EstimatedDealValue decimal.Decimal
}

type TransitionRequest struct {
	ReferralID snowflake.ID
	Status     string
	Notes      string
}

type CreateLeadRequest struct {
	ReferralID snowflake.ID
	AssignedTo string
}

type Service interface {
	Create(ctx context.Context, req CreateReferralRequest) (Referral, error)
	Get(ctx context.Context, id snowflake.ID) (Referral, error)
	ListForPartner(ctx context.Context) ([]Referral, error)
	LookupByCode(ctx context.Context, code string) (Referral, error)
	TransitionStatus(ctx context.Context, req TransitionRequest) (Referral, error)
	FinalizeDeal(ctx context.Context, id snowflake.ID, notes string) (Referral, error)
	CreateLead(ctx context.Context, req CreateLeadRequest) (Lead, error)

	// ResolveLead returns the lead and, when linked, its referral id.
	ResolveLead(ctx context.Context, db *gorm.DB, leadID snowflake.ID) (*Lead, error)
	// ApplyConfirmedPayment accrues a confirmed payment into the referral's
	// running totals. It must run inside the caller's transaction.
	ApplyConfirmedPayment(ctx context.Context, tx *gorm.DB, referralID snowflake.ID, amount, commission decimal.Decimal) (*Referral, error)
}

var (
	ErrNotFound           = errors.New("referral_not_found")
	ErrLeadNotFound       = errors.New("lead_not_found")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrUseFinalize        = errors.New("use_finalize_for_fully_paid")
	ErrInvalidCode        = errors.New("invalid_referral_code")
	ErrInvalidCompanyName = errors.New("invalid_company_name")
	ErrInvalidEmail       = errors.New("invalid_contact_email")
	ErrInvalidDealValue   = errors.New("invalid_estimated_deal_value")
	ErrInvalidID          = errors.New("invalid_referral_id")
	ErrTerminal           = errors.New("referral_terminal")
	ErrSameStatus         = errors.New("referral_status_unchanged")
	ErrLeadExists         = errors.New("lead_already_exists")
	ErrConcurrentUpdate   = errors.New("referral_concurrent_update")
	ErrCodeExhausted      = errors.New("referral_code_generation_failed")
	ErrUnauthenticated    = errors.New("referral_unauthenticated")
)
