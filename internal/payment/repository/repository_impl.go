package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referralhub/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, referral_id, lead_id, amount, commission_rate, commission_calculated,
			payment_date, payment_method, transaction_reference, notes, status,
			accrued_at, recorded_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.ReferralID,
		payment.LeadID,
		payment.Amount,
		payment.CommissionRate,
		payment.CommissionCalculated,
		payment.PaymentDate,
		payment.PaymentMethod,
		payment.TransactionReference,
		payment.Notes,
		payment.Status,
		payment.AccruedAt,
		payment.RecordedBy,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(`SELECT * FROM payments WHERE id = ? LIMIT 1`, id).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) MarkConfirmed(ctx context.Context, db *gorm.DB, id snowflake.ID, accruedAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		SET status = ?, accrued_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND accrued_at IS NULL`,
		domain.StatusConfirmed,
		accruedAt,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ApplyPatch(ctx context.Context, db *gorm.DB, id snowflake.ID, patch domain.Patch, now time.Time) error {
	updates := map[string]any{"updated_at": now}
	if patch.PaymentDate != nil {
		updates["payment_date"] = patch.PaymentDate.UTC()
	}
	if patch.PaymentMethod != nil {
		updates["payment_method"] = *patch.PaymentMethod
	}
	if patch.TransactionReference != nil {
		updates["transaction_reference"] = *patch.TransactionReference
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	return db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
