package migrations

import (
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres
var postgresFS embed.FS

// Schema names one service's migration set under postgres/.
type Schema string

const (
	SchemaProductValidation Schema = "productvalidation"
	SchemaPayment           Schema = "payment"
	SchemaInventory         Schema = "inventory"
)

// MigratePostgres applies every pending up migration of schema. Each schema
// keeps its own version table, so services can share one database.
func MigratePostgres(db *sql.DB, schema Schema) error {
	source, err := iofs.New(postgresFS, "postgres/"+string(schema))
	if err != nil {
		return fmt.Errorf("failed to open migrations for %s: %w", schema, err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations_" + string(schema),
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations for %s: %w", schema, err)
	}
	return nil
}
