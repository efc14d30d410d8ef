package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Audience string

const (
	AudiencePartner Audience = "partner"
	AudienceStaff   Audience = "staff"
)

const (
	TypePayoutRequested = "payout_requested"
	TypePayoutPaid      = "payout_paid"
	TypePayoutFailed    = "payout_failed"
)

// Notification is an in-app message. Rows with a UserID target one user,
// staff-audience rows without one are shared by all staff.
type Notification struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    *string      `gorm:"index" json:"user_id,omitempty"`
	Audience  Audience     `gorm:"not null;index" json:"audience"`
	Type      string       `gorm:"not null" json:"type"`
	Title     string       `gorm:"not null" json:"title"`
	Message   string       `gorm:"not null" json:"message"`
	ReadAt    *time.Time   `json:"read_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

type NotifyRequest struct {
	UserID   string
	Audience Audience
	Type     string
	Title    string
	Message  string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	ListForPartner(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*Notification, error)
	ListForStaff(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*Notification, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Notification, error)
	MarkRead(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type Service interface {
	// Notify stores the notification and, for the staff audience, emails the
	// configured staff list. Failures are logged and returned but callers
	// treat them as best effort.
	Notify(ctx context.Context, req NotifyRequest) error
	ListForUser(ctx context.Context) ([]Notification, error)
	MarkRead(ctx context.Context, id snowflake.ID) (Notification, error)
}

var (
	ErrNotFound        = errors.New("notification_not_found")
	ErrInvalidRequest  = errors.New("invalid_notification")
	ErrUnauthenticated = errors.New("notification_unauthenticated")
)
