package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, partner_id, referral_id, amount, amount_paid, status,
			bank_code, bank_name, account_number, account_name,
			requested_at, processed_at, processed_by, payment_reference,
			proof_of_payment_url, notes, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.PartnerID,
		payout.ReferralID,
		payout.Amount,
		payout.AmountPaid,
		payout.Status,
		payout.BankCode,
		payout.BankName,
		payout.AccountNumber,
		payout.AccountName,
		payout.RequestedAt,
		payout.ProcessedAt,
		payout.ProcessedBy,
		payout.PaymentReference,
		payout.ProofOfPaymentURL,
		payout.Notes,
		payout.Version,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payouts WHERE id = ? LIMIT 1`,
		id,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) FindActiveByReferral(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payouts
		WHERE referral_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC
		LIMIT 1`,
		referralID,
		domain.StatusPending,
		domain.StatusProcessing,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) ListByPartner(ctx context.Context, db *gorm.DB, partnerID string, limit int) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	err := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("partner_id = ?", partnerID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status *domain.Status, page pagination.Pagination) ([]*domain.Payout, error) {
	stmt := db.WithContext(ctx).Model(&domain.Payout{})
	if status != nil {
		stmt = stmt.Where("status = ?", *status)
	}

	stmt, err := pagination.Apply(stmt, page)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	var payouts []*domain.Payout
	if err := stmt.Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) ApplySettlement(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, s domain.Settlement, now time.Time) error {
	return checkSwapped(db.WithContext(ctx).Exec(
		`UPDATE payouts
		SET status = ?, amount_paid = ?, payment_reference = ?, proof_of_payment_url = ?,
			notes = ?, processed_at = ?, processed_by = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		s.Status,
		s.AmountPaid,
		s.PaymentReference,
		s.ProofOfPaymentURL,
		s.Notes,
		s.ProcessedAt,
		s.ProcessedBy,
		now,
		id,
		version,
	))
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, now time.Time) error {
	return checkSwapped(db.WithContext(ctx).Exec(
		`UPDATE payouts
		SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND status = ?`,
		domain.StatusCancelled,
		now,
		id,
		version,
		domain.StatusPending,
	))
}

func checkSwapped(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}
