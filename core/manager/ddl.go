package manager

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
)

// DefaultLocale is the locale of records which do not name one
const DefaultLocale = "en"

// system columns every content table carries
var systemColumns = []string{"id", "user_id", "locale", "published_at", "created_at", "updated_at", "deleted_at"}

// IsSystemColumn returns true if name is reserved for the engine
func IsSystemColumn(name string) bool {
	for _, c := range systemColumns {
		if c == name {
			return true
		}
	}
	return name == "status"
}

func qualified(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

func indexName(table, column string) string {
	return pq.QuoteIdentifier(table + "_" + column + "_idx")
}

// columnType maps a field to its physical column type
func columnType(f *catalog.ContentField) (string, error) {
	switch f.Type {
	case catalog.FieldText, catalog.FieldEmail, catalog.FieldEnum:
		return "varchar(255)", nil
	case catalog.FieldLongText:
		return "text", nil
	case catalog.FieldInteger:
		return "integer", nil
	case catalog.FieldBoolean:
		return "boolean", nil
	case catalog.FieldDatetime:
		return "timestamptz", nil
	case catalog.FieldJSON, catalog.FieldComponent, catalog.FieldDynamicZone:
		return "jsonb", nil
	case catalog.FieldMedia, catalog.FieldRelation:
		return "uuid", nil
	}
	return "", fmt.Errorf("field %s of type %q: %w", f.Name, f.Type, core.ErrUnsupportedFieldType)
}

// defaultLiteral renders settings.default as an SQL literal
func defaultLiteral(f *catalog.ContentField) (string, error) {
	switch v := f.Settings.Default.(type) {
	case nil:
		return "", nil
	case bool:
		if f.Type != catalog.FieldBoolean {
			break
		}
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		if f.Type == catalog.FieldInteger {
			if v != math.Trunc(v) {
				break
			}
			return strconv.FormatInt(int64(v), 10), nil
		}
	case int:
		if f.Type == catalog.FieldInteger {
			return strconv.Itoa(v), nil
		}
	case string:
		switch f.Type {
		case catalog.FieldText, catalog.FieldLongText, catalog.FieldEmail, catalog.FieldEnum:
			return pq.QuoteLiteral(v), nil
		case catalog.FieldDatetime:
			return pq.QuoteLiteral(v) + "::timestamptz", nil
		}
	}
	if f.Type.Structured() {
		b, err := json.Marshal(f.Settings.Default)
		if err != nil {
			return "", fmt.Errorf("default of field %s: %w", f.Name, core.ErrInvalidDefinition)
		}
		return pq.QuoteLiteral(string(b)) + "::jsonb", nil
	}
	return "", fmt.Errorf("default %v does not fit field %s of type %s: %w", f.Settings.Default, f.Name, f.Type, core.ErrInvalidDefinition)
}

// columnDefinition returns the column clause of f. additive is true when the column
// is added to an existing table: required fields without a default stay nullable then,
// existing rows could not satisfy NOT NULL.
func columnDefinition(f *catalog.ContentField, additive bool) (string, error) {
	if f.IsMultiRelation() {
		return "", nil
	}
	typ, err := columnType(f)
	if err != nil {
		return "", err
	}
	clause := pq.QuoteIdentifier(f.Column()) + " " + typ
	if f.IsForeign() {
		return clause + " NULL", nil
	}
	def, err := defaultLiteral(f)
	if err != nil {
		return "", err
	}
	if def != "" {
		clause += " DEFAULT " + def
	}
	if f.Settings.Required && (!additive || def != "") {
		clause += " NOT NULL"
	} else {
		clause += " NULL"
	}
	return clause, nil
}

// CreateTableStatements returns the DDL creating the table of ct and its indexes.
// Multi-valued relations are not part of it, see PivotStatements.
func CreateTableStatements(schema string, ct *catalog.ContentType) ([]string, error) {
	if !ct.HasTable() {
		return nil, nil
	}
	table := qualified(schema, ct.Table)
	columns := []string{"id uuid PRIMARY KEY"}
	indexes := []string{}
	if ct.HasOwnership {
		columns = append(columns, "user_id uuid NULL")
		indexes = append(indexes, createIndex(schema, ct.Table, "user_id"))
	}
	for _, f := range ct.Fields {
		clause, err := columnDefinition(f, false)
		if err != nil {
			return nil, err
		}
		if clause == "" {
			continue
		}
		columns = append(columns, clause)
		if f.IsForeign() {
			indexes = append(indexes, createIndex(schema, ct.Table, f.Column()))
		}
	}
	if ct.IsLocalized {
		columns = append(columns, localeColumn)
		indexes = append(indexes, createIndex(schema, ct.Table, "locale"))
	}
	columns = append(columns,
		"published_at timestamptz NULL",
		"created_at timestamptz NOT NULL DEFAULT now()",
		"updated_at timestamptz NOT NULL DEFAULT now()",
		"deleted_at timestamptz NULL",
	)
	indexes = append(indexes, createIndex(schema, ct.Table, "published_at"))

	statements := []string{
		"CREATE TABLE " + table + " (\n  " + strings.Join(columns, ",\n  ") + "\n);",
	}
	return append(statements, indexes...), nil
}

const localeColumn = "locale varchar(12) NOT NULL DEFAULT '" + DefaultLocale + "'"

func createIndex(schema, table, column string) string {
	return "CREATE INDEX IF NOT EXISTS " + indexName(table, column) +
		" ON " + qualified(schema, table) + " (" + pq.QuoteIdentifier(column) + ");"
}

func addColumn(schema, table, clause string) string {
	return "ALTER TABLE " + qualified(schema, table) + " ADD COLUMN IF NOT EXISTS " + clause + ";"
}

// AddFieldStatements returns the DDL adding the column of f to the existing table of ct
func AddFieldStatements(schema string, ct *catalog.ContentType, f *catalog.ContentField) ([]string, error) {
	clause, err := columnDefinition(f, true)
	if err != nil || clause == "" {
		return nil, err
	}
	statements := []string{addColumn(schema, ct.Table, clause)}
	if f.IsForeign() {
		statements = append(statements, createIndex(schema, ct.Table, f.Column()))
	}
	return statements, nil
}

// OwnershipStatements returns the DDL adding the owner reference column
func OwnershipStatements(schema string, ct *catalog.ContentType) []string {
	return []string{
		addColumn(schema, ct.Table, "user_id uuid NULL"),
		createIndex(schema, ct.Table, "user_id"),
	}
}

// LocalizationStatements returns the DDL adding the locale column
func LocalizationStatements(schema string, ct *catalog.ContentType) []string {
	return []string{
		addColumn(schema, ct.Table, localeColumn),
		createIndex(schema, ct.Table, "locale"),
	}
}

// PivotStatements returns the DDL creating the pivot table between local and related.
// The statement is the same regardless of which side declares the relation.
func PivotStatements(schema string, local, related *catalog.ContentType) []string {
	p := core.Pivot(local.Slug, related.Slug)
	refs := map[string]string{
		p.LocalColumn:   local.Table,
		p.RelatedColumn: related.Table,
	}
	columns := []string{p.LocalColumn, p.RelatedColumn}
	sort.Strings(columns)

	clauses := []string{}
	for _, c := range columns {
		clauses = append(clauses, pq.QuoteIdentifier(c)+" uuid NOT NULL REFERENCES "+
			qualified(schema, refs[c])+" (id) ON DELETE CASCADE")
	}
	clauses = append(clauses,
		"created_at timestamptz NOT NULL DEFAULT now()",
		"updated_at timestamptz NOT NULL DEFAULT now()",
		"UNIQUE ("+pq.QuoteIdentifier(columns[0])+", "+pq.QuoteIdentifier(columns[1])+")",
	)
	return []string{
		"CREATE TABLE IF NOT EXISTS " + qualified(schema, p.Table) + " (\n  " + strings.Join(clauses, ",\n  ") + "\n);",
		createIndex(schema, p.Table, columns[1]),
	}
}

// DropTableStatement returns the DDL dropping the table of ct
func DropTableStatement(schema string, ct *catalog.ContentType) string {
	return "DROP TABLE IF EXISTS " + qualified(schema, ct.Table) + " CASCADE;"
}
