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
	auditdomain "github.com/smallbiznis/pharmasettle/internal/audit/domain"
	customerdomain "github.com/smallbiznis/pharmasettle/internal/customer/domain"
	depositdomain "github.com/smallbiznis/pharmasettle/internal/deposit/domain"
	inventorydomain "github.com/smallbiznis/pharmasettle/internal/inventory/domain"
	invoicedomain "github.com/smallbiznis/pharmasettle/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/pharmasettle/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	salesorderdomain "github.com/smallbiznis/pharmasettle/internal/salesorder/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
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

// Models lists every table owned by the settlement engine.
func Models() []any {
	return []any{
		&customerdomain.Customer{},
		&inventorydomain.Lot{},
		&inventorydomain.GoodsIssueNote{},
		&inventorydomain.GoodsIssueNoteLine{},
		&salesorderdomain.SalesOrder{},
		&salesorderdomain.SalesOrderDetail{},
		&ledgerdomain.CustomerDebt{},
		&ledgerdomain.DebtEntry{},
		&paymentdomain.PaymentRemain{},
		&paymentdomain.GatewayCallback{},
		&depositdomain.DepositCheck{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceDetail{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models for dialects without
// embedded migrations. The partial index that keeps one pending deposit
// check per order is created where the dialect supports it.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if conn.Dialector.Name() == "mysql" {
		return nil
	}
	return conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_deposit_checks_pending
		 ON sales_order_deposit_checks (sales_order_id) WHERE status = 'PENDING'`,
	).Error
}
