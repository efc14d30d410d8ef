package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referralhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Active payouts block further requests against the same referral.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// CanTransition reports whether staff processing may move a payout from s to
// target. Cancellation is a partner action and is not covered here.
func (s Status) CanTransition(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusProcessing || target == StatusPaid || target == StatusFailed
	case StatusProcessing:
		return target == StatusPaid || target == StatusFailed
	default:
		return false
	}
}

func ParseProcessTarget(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusProcessing, StatusPaid, StatusFailed:
		return s, true
	default:
		return "", false
	}
}

type Payout struct {
	ID                snowflake.ID        `gorm:"primaryKey" json:"id"`
	PartnerID         string              `gorm:"not null;index" json:"partner_id"`
	ReferralID        snowflake.ID        `gorm:"not null;index" json:"referral_id"`
	Amount            decimal.Decimal     `gorm:"type:numeric(20,2);not null" json:"amount"`
	AmountPaid        decimal.NullDecimal `gorm:"type:numeric(20,2)" json:"amount_paid"`
	Status            Status              `gorm:"not null;index" json:"status"`
	BankCode          string              `json:"bank_code,omitempty"`
	BankName          string              `json:"bank_name,omitempty"`
	AccountNumber     string              `json:"account_number,omitempty"`
	AccountName       string              `json:"account_name,omitempty"`
	RequestedAt       time.Time           `gorm:"not null" json:"requested_at"`
	ProcessedAt       *time.Time          `json:"processed_at,omitempty"`
	ProcessedBy       *string             `json:"processed_by,omitempty"`
	PaymentReference  *string             `json:"payment_reference,omitempty"`
	ProofOfPaymentURL *string             `json:"proof_of_payment_url,omitempty"`
	Notes             string              `json:"notes,omitempty"`
	Version           int64               `gorm:"not null;default:1" json:"-"`
	CreatedAt         time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"not null" json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

// Settlement carries the fields written by a processing step.
type Settlement struct {
	Status            Status
	AmountPaid        decimal.NullDecimal
	PaymentReference  *string
	ProofOfPaymentURL *string
	Notes             string
	ProcessedAt       *time.Time
	ProcessedBy       *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindActiveByReferral(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*Payout, error)
	ListByPartner(ctx context.Context, db *gorm.DB, partnerID string, limit int) ([]*Payout, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status *Status, page pagination.Pagination) ([]*Payout, error)
	// ApplySettlement and Cancel are compare-and-swap on version.
	ApplySettlement(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, s Settlement, now time.Time) error
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, now time.Time) error
}

type RequestPayoutRequest struct {
	ReferralID snowflake.ID
	Amount     decimal.NullDecimal
}

// Proof is an uploaded proof-of-payment document.
type Proof struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ProcessPayoutRequest struct {
	PayoutID         snowflake.ID
	Status           string
	PaymentReference string
	AmountPaid       decimal.NullDecimal
	Notes            string
	Proof            *Proof
}

type Service interface {
	Request(ctx context.Context, req RequestPayoutRequest) (Payout, error)
	Process(ctx context.Context, req ProcessPayoutRequest) (Payout, error)
	Cancel(ctx context.Context, id snowflake.ID) (Payout, error)
	Get(ctx context.Context, id snowflake.ID) (Payout, error)
	ListForPartner(ctx context.Context) ([]Payout, error)
	ListByStatus(ctx context.Context, req ListPayoutsRequest) (ListPayoutsResponse, error)
	Remittance(ctx context.Context, id snowflake.ID) ([]byte, error)
}

var (
	ErrNotFound            = errors.New("payout_not_found")
	ErrInvalidID           = errors.New("invalid_payout_id")
	ErrNotEligible         = errors.New("referral_not_eligible_for_payout")
	ErrInvalidAmount       = errors.New("invalid_payout_amount")
	ErrAmountExceedsEarned = errors.New("payout_amount_exceeds_commission")
	ErrPayoutExists        = errors.New("payout_already_requested")
	ErrInvalidStatus       = errors.New("invalid_payout_status")
	ErrReferenceRequired   = errors.New("payment_reference_required")
	ErrInvalidAmountPaid   = errors.New("invalid_amount_paid")
	ErrInvalidTransition   = errors.New("payout_invalid_transition")
	ErrNotCancellable      = errors.New("payout_not_pending")
	ErrNotPaid             = errors.New("payout_not_paid")
	ErrConcurrentUpdate    = errors.New("payout_concurrent_update")
	ErrProofUpload         = errors.New("proof_upload_failed")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrUnauthenticated     = errors.New("payout_unauthenticated")
)
