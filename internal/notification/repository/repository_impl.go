package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referralhub/internal/notification/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, user_id, audience, type, title, message, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.UserID,
		n.Audience,
		n.Type,
		n.Title,
		n.Message,
		n.ReadAt,
		n.CreatedAt,
	).Error
}

func (r *repo) ListForPartner(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*domain.Notification, error) {
	var items []*domain.Notification
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("audience = ? AND user_id = ?", domain.AudiencePartner, userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) ListForStaff(ctx context.Context, db *gorm.DB, userID string, limit int) ([]*domain.Notification, error) {
	var items []*domain.Notification
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("audience = ? AND (user_id IS NULL OR user_id = ?)", domain.AudienceStaff, userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Notification, error) {
	var n domain.Notification
	err := db.WithContext(ctx).Raw(`SELECT * FROM notifications WHERE id = ? LIMIT 1`, id).Scan(&n).Error
	if err != nil {
		return nil, err
	}
	if n.ID == 0 {
		return nil, nil
	}
	return &n, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL`,
		at,
		id,
	).Error
}
