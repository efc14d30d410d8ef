package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository updates are compare-and-swap on version and return
// ErrConcurrentUpdate when the row moved underneath the caller.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, referral *Referral) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Referral, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Referral, error)
	ListByPartner(ctx context.Context, db *gorm.DB, partnerID string, limit int) ([]*Referral, error)
	ListFullyPaidByPartner(ctx context.Context, db *gorm.DB, partnerID string) ([]*Referral, error)

	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, status Status, commissionEligible bool, now time.Time) error
	UpdateTotals(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, totalDeal, totalCommission decimal.Decimal, now time.Time) error
	SetPayoutRequested(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, requested bool, now time.Time) error

	InsertLead(ctx context.Context, db *gorm.DB, lead *Lead) error
	FindLeadByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lead, error)
	FindLeadByReferralID(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*Lead, error)
	UpdateLeadStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status LeadStatus, now time.Time) error
	InsertLeadActivity(ctx context.Context, db *gorm.DB, activity *LeadActivity) error
}
