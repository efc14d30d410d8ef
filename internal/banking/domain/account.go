package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PartnerBankAccount is the verified payout destination of a partner.
type PartnerBankAccount struct {
	PartnerID     string    `gorm:"primaryKey" json:"partner_id"`
	BankCode      string    `gorm:"not null" json:"bank_code"`
	BankName      string    `json:"bank_name,omitempty"`
	AccountNumber string    `gorm:"not null" json:"account_number"`
	AccountName   string    `gorm:"not null" json:"account_name"`
	VerifiedAt    time.Time `gorm:"not null" json:"verified_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (PartnerBankAccount) TableName() string { return "partner_bank_accounts" }

// Resolver looks up the registered holder name of a bank account.
type Resolver interface {
	Resolve(ctx context.Context, bankCode, accountNumber string) (string, error)
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, account *PartnerBankAccount) error
	FindByPartner(ctx context.Context, db *gorm.DB, partnerID string) (*PartnerBankAccount, error)
}

type SetAccountRequest struct {
	BankCode      string
	BankName      string
	AccountNumber string
}

type Service interface {
	SetAccount(ctx context.Context, req SetAccountRequest) (PartnerBankAccount, error)
	GetAccount(ctx context.Context) (PartnerBankAccount, error)
	// AccountFor returns the partner's account or nil when none is on file.
	AccountFor(ctx context.Context, db *gorm.DB, partnerID string) (*PartnerBankAccount, error)
}

var (
	ErrNotFound             = errors.New("bank_account_not_found")
	ErrInvalidBankCode      = errors.New("invalid_bank_code")
	ErrInvalidAccountNumber = errors.New("invalid_account_number")
	ErrAccountNotResolved   = errors.New("bank_account_not_resolved")
	ErrLookupUnavailable    = errors.New("bank_lookup_unavailable")
	ErrUnauthenticated      = errors.New("bank_account_unauthenticated")
)
