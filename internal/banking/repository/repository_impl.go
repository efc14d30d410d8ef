package repository

import (
	"context"

	"github.com/smallbiznis/referralhub/internal/banking/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, account *domain.PartnerBankAccount) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "partner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"bank_code", "bank_name", "account_number", "account_name", "verified_at", "updated_at",
			}),
		}).
		Create(account).Error
}

func (r *repo) FindByPartner(ctx context.Context, db *gorm.DB, partnerID string) (*domain.PartnerBankAccount, error) {
	var account domain.PartnerBankAccount
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM partner_bank_accounts WHERE partner_id = ? LIMIT 1`,
		partnerID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.PartnerID == "" {
		return nil, nil
	}
	return &account, nil
}
