package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// Lead is the internal tracking record for pursuing a referral.
type Lead struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	ReferralID   *snowflake.ID `gorm:"uniqueIndex" json:"referral_id,omitempty"`
	CompanyName  string        `gorm:"not null" json:"company_name"`
	ContactEmail string        `json:"contact_email,omitempty"`
	AssignedTo   string        `json:"assigned_to,omitempty"`
	Status       LeadStatus    `gorm:"not null" json:"status"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

type LeadActivity struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	LeadID       snowflake.ID `gorm:"not null;index" json:"lead_id"`
	ActivityType string       `gorm:"not null" json:"activity_type"`
	Description  string       `json:"description"`
	ActorID      string       `json:"actor_id,omitempty"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (LeadActivity) TableName() string { return "lead_activities" }

// LeadStatusFor returns the lead status implied by a referral reaching s.
func LeadStatusFor(s Status) (LeadStatus, bool) {
	switch s {
	case StatusWon, StatusFullyPaid:
		return LeadStatusConverted, true
	case StatusLost:
		return LeadStatusLost, true
	default:
		return "", false
	}
}
