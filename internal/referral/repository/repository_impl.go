package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/referralhub/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, referral *domain.Referral) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referrals (
			id, code, partner_id, company_name, contact_name, contact_email, contact_phone,
			industry, notes, status, estimated_deal_value, total_deal_value,
			total_commission_earned, commission_eligible, payout_requested, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		referral.ID,
		referral.Code,
		referral.PartnerID,
		referral.CompanyName,
		referral.ContactName,
		referral.ContactEmail,
		referral.ContactPhone,
		referral.Industry,
		referral.Notes,
		referral.Status,
		referral.EstimatedDealValue,
		referral.TotalDealValue,
		referral.TotalCommissionEarned,
		referral.CommissionEligible,
		referral.PayoutRequested,
		referral.Version,
		referral.CreatedAt,
		referral.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Referral, error) {
	var referral domain.Referral
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM referrals WHERE id = ? LIMIT 1`,
		id,
	).Scan(&referral).Error
	if err != nil {
		return nil, err
	}
	if referral.ID == 0 {
		return nil, nil
	}
	return &referral, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Referral, error) {
	var referral domain.Referral
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM referrals WHERE code = ? LIMIT 1`,
		code,
	).Scan(&referral).Error
	if err != nil {
		return nil, err
	}
	if referral.ID == 0 {
		return nil, nil
	}
	return &referral, nil
}

func (r *repo) ListByPartner(ctx context.Context, db *gorm.DB, partnerID string, limit int) ([]*domain.Referral, error) {
	var referrals []*domain.Referral
	err := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("partner_id = ?", partnerID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&referrals).Error
	if err != nil {
		return nil, err
	}
	return referrals, nil
}

func (r *repo) ListFullyPaidByPartner(ctx context.Context, db *gorm.DB, partnerID string) ([]*domain.Referral, error) {
	var referrals []*domain.Referral
	err := db.WithContext(ctx).
		Model(&domain.Referral{}).
		Where("partner_id = ? AND status = ?", partnerID, domain.StatusFullyPaid).
		Order("created_at asc, id asc").
		Find(&referrals).Error
	if err != nil {
		return nil, err
	}
	return referrals, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, status domain.Status, commissionEligible bool, now time.Time) error {
	return checkSwapped(db.WithContext(ctx).Exec(
		`UPDATE referrals
		SET status = ?, commission_eligible = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		status,
		commissionEligible,
		now,
		id,
		version,
	))
}

func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, totalDeal, totalCommission decimal.Decimal, now time.Time) error {
	return checkSwapped(db.WithContext(ctx).Exec(
		`UPDATE referrals
		SET total_deal_value = ?, total_commission_earned = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		totalDeal,
		totalCommission,
		now,
		id,
		version,
	))
}

func (r *repo) SetPayoutRequested(ctx context.Context, db *gorm.DB, id snowflake.ID, version int64, requested bool, now time.Time) error {
	return checkSwapped(db.WithContext(ctx).Exec(
		`UPDATE referrals
		SET payout_requested = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		requested,
		now,
		id,
		version,
	))
}

func (r *repo) InsertLead(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO leads (
			id, referral_id, company_name, contact_email, assigned_to, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID,
		lead.ReferralID,
		lead.CompanyName,
		lead.ContactEmail,
		lead.AssignedTo,
		lead.Status,
		lead.CreatedAt,
		lead.UpdatedAt,
	).Error
}

func (r *repo) FindLeadByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Raw(`SELECT * FROM leads WHERE id = ? LIMIT 1`, id).Scan(&lead).Error
	if err != nil {
		return nil, err
	}
	if lead.ID == 0 {
		return nil, nil
	}
	return &lead, nil
}

func (r *repo) FindLeadByReferralID(ctx context.Context, db *gorm.DB, referralID snowflake.ID) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Raw(`SELECT * FROM leads WHERE referral_id = ? LIMIT 1`, referralID).Scan(&lead).Error
	if err != nil {
		return nil, err
	}
	if lead.ID == 0 {
		return nil, nil
	}
	return &lead, nil
}

func (r *repo) UpdateLeadStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.LeadStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		id,
	).Error
}

func (r *repo) InsertLeadActivity(ctx context.Context, db *gorm.DB, activity *domain.LeadActivity) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO lead_activities (
			id, lead_id, activity_type, description, actor_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		activity.ID,
		activity.LeadID,
		activity.ActivityType,
		activity.Description,
		activity.ActorID,
		activity.CreatedAt,
	).Error
}

func checkSwapped(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}
