package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/bizbooks/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	organizationdomain "github.com/smallbiznis/bizbooks/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/bizbooks/internal/payment/domain"
	taxdomain "github.com/smallbiznis/bizbooks/internal/tax/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema. Organizations, tax
// configuration, the ledger, invoices and payments are created on startup.
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

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&organizationdomain.Organization{},
		&organizationdomain.Party{},
		&auditdomain.AuditLog{},
		&taxdomain.TaxConfigurationRecord{},
		&taxdomain.GSTSlabRecord{},
		&taxdomain.TDSRuleRecord{},
		&ledgerdomain.LedgerAccount{},
		&ledgerdomain.PostingTransaction{},
		&ledgerdomain.LedgerEntry{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceTaxLine{},
		&invoicedomain.InvoiceSequence{},
		&paymentdomain.Payment{},
	}
}

// AutoMigrate builds the schema from the gorm models. Used for sqlite and
// mysql, which the embedded migrations do not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
