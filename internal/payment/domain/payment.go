package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
)

// Payment is a client payment recorded by staff. Amount and commission are
// fixed at recording time.
type Payment struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	ReferralID           *snowflake.ID   `gorm:"index" json:"referral_id,omitempty"`
	LeadID               *snowflake.ID   `gorm:"index" json:"lead_id,omitempty"`
	Amount               decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	CommissionRate       decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"commission_rate"`
	CommissionCalculated decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"commission_calculated"`
	PaymentDate          time.Time       `gorm:"not null" json:"payment_date"`
	PaymentMethod        string          `json:"payment_method,omitempty"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	Status               Status          `gorm:"not null" json:"status"`
	AccruedAt            *time.Time      `json:"accrued_at,omitempty"`
	RecordedBy           string          `json:"recorded_by,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Patch lists the only fields that may change after recording. Nil means
// unchanged.
type Patch struct {
	PaymentDate          *time.Time
	PaymentMethod        *string
	TransactionReference *string
	Notes                *string
}

func (p Patch) Empty() bool {
	return p.PaymentDate == nil && p.PaymentMethod == nil && p.TransactionReference == nil && p.Notes == nil
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// MarkConfirmed flips a pending payment to confirmed. It returns false
	// when the payment was no longer pending.
	MarkConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, accruedAt *time.Time, now time.Time) (bool, error)
	ApplyPatch(ctx context.Context, db *gorm.DB, id snowflake.ID, patch Patch, now time.Time) error
}

type RecordPaymentRequest struct {
	ReferralID           *snowflake.ID
	LeadID               *snowflake.ID
	Amount               decimal.Decimal
	PaymentDate          *time.Time
	PaymentMethod        string
	TransactionReference string
	Notes                string
	Status               string
}

type Service interface {
	Record(ctx context.Context, req RecordPaymentRequest) (Payment, error)
	Confirm(ctx context.Context, id snowflake.ID) (Payment, error)
	Update(ctx context.Context, id snowflake.ID, patch Patch) (Payment, error)
}

var (
	ErrNotFound         = errors.New("payment_not_found")
	ErrInvalidID        = errors.New("invalid_payment_id")
	ErrMissingLink      = errors.New("payment_referral_or_lead_required")
	ErrInvalidAmount    = errors.New("invalid_payment_amount")
	ErrInvalidStatus    = errors.New("invalid_payment_status")
	ErrReferralMismatch = errors.New("payment_lead_referral_mismatch")
	ErrEmptyPatch       = errors.New("payment_patch_empty")
	ErrAlreadyConfirmed = errors.New("payment_already_confirmed")
)
