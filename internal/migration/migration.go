package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/referralhub/internal/audit/domain"
	bankingdomain "github.com/smallbiznis/referralhub/internal/banking/domain"
	notificationdomain "github.com/smallbiznis/referralhub/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/referralhub/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/referralhub/internal/payout/domain"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table owned by the service, in dependency order. It
// backs AutoMigrate on databases the SQL migrations do not target.
func Models() []any {
	return []any{
		&referraldomain.Referral{},
		&referraldomain.Lead{},
		&referraldomain.LeadActivity{},
		&paymentdomain.Payment{},
		&payoutdomain.Payout{},
		&bankingdomain.PartnerBankAccount{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
