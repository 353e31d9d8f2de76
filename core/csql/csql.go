// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package csql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// Querier is implemented by *sql.DB, *sql.Tx and *DB. Catalog and record operations
// take a Querier so they can run inside a schema transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres error codes the engine reacts on
const (
	CodeUniqueViolation = "23505"
	CodeForeignKey      = "23503"
	CodeDuplicateTable  = "42P07"
	CodeInvalidText     = "22P02"
	CodeUndefinedTable  = "42P01"
)

// OpenWithSchema opens a postgres database with a schema.
// The schema gets created if it does not exist yet.
// The returned database also has the uuid-ossp extension loaded.
func OpenWithSchema(dataSourceName, password, schema string) *DB {
	logger.Default().Infoln("connecting to postgres database: ", dataSourceName)
	if password != "" {
		dataSourceName += " password=" + password
	}
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	if err = db.Ping(); err != nil {
		panic(err)
	}
	if len(schema) == 0 {
		schema = "public"
	} else {
		logger.Default().Infoln("selected database schema:", schema)
		_, err = db.Exec(`CREATE extension IF NOT EXISTS "uuid-ossp";
CREATE schema IF NOT EXISTS ` + pq.QuoteIdentifier(schema) + `;
`)
		if err != nil {
			panic(err)
		}
	}
	return &DB{DB: db, Schema: schema}
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA ` + pq.QuoteIdentifier(db.Schema) + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + pq.QuoteIdentifier(db.Schema) + `;`)
	if err != nil {
		logger.Default().WithError(err).Errorln("clear schema error:", db.Schema)
	}
}

// Table returns the schema qualified, quoted name of table
func (db *DB) Table(table string) string {
	return pq.QuoteIdentifier(db.Schema) + "." + pq.QuoteIdentifier(table)
}

// WithTx runs fn inside a transaction. The transaction is committed if fn returns nil
// and rolled back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				logger.FromContext(ctx).WithError(rerr).Errorln("rollback failed")
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// HasTable returns true if table exists in schema
func HasTable(ctx context.Context, q Querier, schema, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2);`,
		schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return exists, nil
}

// Column describes a live table column
type Column struct {
	Name     string  `json:"name"`
	DataType string  `json:"data_type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

// Columns returns the live columns of table in ordinal order
func Columns(ctx context.Context, q Querier, schema, table string) ([]Column, error) {
	rows, err := q.QueryContext(ctx, `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position;`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			c        Column
			nullable string
			def      sql.NullString
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &def); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		c.Nullable = nullable == "YES"
		if def.Valid {
			c.Default = &def.String
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// HasCode returns true if err is a postgres error with the given code
func HasCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// IsDataException returns true for postgres errors of class 22, raised when a
// parameter cannot be converted to the column type
func IsDataException(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "22"
	}
	return false
}
