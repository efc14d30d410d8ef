package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCodeSent         Status = "code_sent"
	StatusContacted        Status = "contacted"
	StatusMeetingScheduled Status = "meeting_scheduled"
	StatusProposalSent     Status = "proposal_sent"
	StatusNegotiation      Status = "negotiation"
	StatusWon              Status = "won"
	StatusFullyPaid        Status = "fully_paid"
	StatusLost             Status = "lost"
)

var statuses = map[Status]struct{}{
	StatusCodeSent:         {},
	StatusContacted:        {},
	StatusMeetingScheduled: {},
	StatusProposalSent:     {},
	StatusNegotiation:      {},
	StatusWon:              {},
	StatusFullyPaid:        {},
	StatusLost:             {},
}

// ParseStatus accepts only the fixed pipeline enum.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := statuses[s]
	return s, ok
}

func (s Status) Terminal() bool {
	return s == StatusFullyPaid || s == StatusLost
}

type Referral struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	Code                  string          `gorm:"not null;uniqueIndex" json:"code"`
	PartnerID             string          `gorm:"not null;index" json:"partner_id"`
	CompanyName           string          `gorm:"not null" json:"company_name"`
	ContactName           string          `json:"contact_name,omitempty"`
	ContactEmail          string          `json:"contact_email,omitempty"`
	ContactPhone          string          `json:"contact_phone,omitempty"`
	Industry              string          `json:"industry,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	Status                Status          `gorm:"not null;index" json:"status"`
	EstimatedDealValue    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"estimated_deal_value"`
	TotalDealValue        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_deal_value"`
	TotalCommissionEarned decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_commission_earned"`
	CommissionEligible    bool            `gorm:"not null;default:false" json:"commission_eligible"`
	PayoutRequested       bool            `gorm:"not null;default:false" json:"payout_requested"`
	Version               int64           `gorm:"not null;default:1" json:"-"`
	CreatedAt             time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null" json:"updated_at"`
}

func (Referral) TableName() string { return "referrals" }

// PayoutEligible is the single claimability predicate shared by the
// eligibility listing and payout creation.
func (r Referral) PayoutEligible() bool {
	return r.Status == StatusFullyPaid &&
		r.CommissionEligible &&
		!r.PayoutRequested &&
		r.TotalCommissionEarned.IsPositive()
}

// EligibleIgnoringRequest reports whether r would be claimable if no payout
// had been requested against it.
func (r Referral) EligibleIgnoringRequest() bool {
	r.PayoutRequested = false
	return r.PayoutEligible()
}
