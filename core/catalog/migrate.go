package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationsTable keeps the applied catalog migration version
const MigrationsTable = "_catalog_migrations_"

// Migrate creates or upgrades the catalog tables inside the schema of db
func Migrate(ctx context.Context, db *csql.DB) error {
	rlog := logger.FromContext(ctx)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(db.Schema)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to select schema %s: %w", db.Schema, err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		SchemaName:      db.Schema,
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to open catalog migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		// the connection goes back to the pool, it must not keep the search path
		if _, err := conn.ExecContext(context.Background(), "RESET search_path"); err != nil {
			rlog.WithError(err).Warnln("could not reset search path")
		}
		m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run catalog migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	rlog.Infof("catalog migrations applied (version: %d, dirty: %v)", version, dirty)
	return nil
}

// Version returns the applied catalog migration version and whether the last
// migration failed halfway
func Version(ctx context.Context, db *csql.DB) (int64, bool, error) {
	var (
		version int64
		dirty   bool
	)
	err := db.QueryRowContext(ctx, "SELECT version, dirty FROM "+db.Table(MigrationsTable)+" LIMIT 1;").Scan(&version, &dirty)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read catalog version: %w", err)
	}
	return version, dirty, nil
}
