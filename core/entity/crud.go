package entity

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// attributes managed by the engine, ignored on write
var readOnly = map[string]bool{"id": true, "created_at": true, "updated_at": true, "deleted_at": true}

func (e *Entity) scan(rows *sql.Rows, columns []string) (*Record, error) {
	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", e.Slug(), err)
	}
	r := newRecord(e)
	for i, c := range columns {
		v, err := e.casts[c].decode(raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %s of %s: %w", c, e.Slug(), err)
		}
		r.Set(c, v)
	}
	return r, nil
}

// write is the column part of a create or update
type write struct {
	columns []string
	values  []any
	pivots  map[string][]string
}

// prepare splits attributes into column values and pivot ids. Every problem is collected
// into a validation error.
func (e *Entity) prepare(attributes map[string]any) (*write, error) {
	w := &write{pivots: map[string][]string{}}
	verr := core.NewValidationError()

	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := attributes[k]
		if readOnly[k] {
			continue
		}
		if f, ok := e.Type.Field(k); ok && f.IsMultiRelation() {
			ids, err := identifiers(v)
			if err != nil {
				verr.Add(k, err.Error())
				continue
			}
			w.pivots[k] = ids
			continue
		}
		cast, ok := e.casts[k]
		if !ok {
			verr.Add(k, "is not an attribute of "+e.Slug())
			continue
		}
		param, err := cast.encode(v)
		if err != nil {
			verr.Add(k, err.Error())
			continue
		}
		if k == "locale" && param == nil {
			// the column is NOT NULL
			param = DefaultLocale
		}
		w.columns = append(w.columns, k)
		w.values = append(w.values, param)
	}
	return w, verr.ErrorOrNil()
}

func identifiers(v any) ([]string, error) {
	if v == nil {
		return []string{}, nil
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("must be an array of identifiers")
	}
	ids := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("must be an array of identifiers")
		}
		if _, err := uuid.Parse(s); err != nil {
			return nil, fmt.Errorf("contains an invalid identifier")
		}
		if !seen[s] {
			seen[s] = true
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (e *Entity) returning() string {
	quoted := make([]string, len(e.columns))
	for i, c := range e.columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func (e *Entity) scanOne(rows *sql.Rows) (*Record, error) {
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return e.scan(rows, e.columns)
}

// Create inserts a record. Single types accept one live record (per locale for localized types)
// and fail with core.ErrAlreadyExists on a second create.
func (e *Entity) Create(ctx context.Context, attributes map[string]any) (*Record, error) {
	w, err := e.prepare(attributes)
	if err != nil {
		return nil, err
	}
	now := e.repo.now()
	locale := DefaultLocale
	if e.Type.IsLocalized {
		if i := indexOf(w.columns, "locale"); i >= 0 {
			locale, _ = w.values[i].(string)
		} else {
			w.columns = append(w.columns, "locale")
			w.values = append(w.values, locale)
		}
	}
	w.columns = append([]string{"id", "created_at", "updated_at"}, w.columns...)
	w.values = append([]any{uuid.NewString(), now, now}, w.values...)

	var record *Record
	err = e.repo.db.WithTx(ctx, func(tx *sql.Tx) error {
		if e.Type.IsSingle {
			if err := e.ensureSingle(ctx, tx, locale); err != nil {
				return err
			}
		}
		quoted := make([]string, len(w.columns))
		params := make([]string, len(w.columns))
		for i, c := range w.columns {
			quoted[i] = pq.QuoteIdentifier(c)
			params[i] = "$" + strconv.Itoa(i+1)
		}
		rows, err := tx.QueryContext(ctx, "INSERT INTO "+e.table()+" ("+strings.Join(quoted, ", ")+") VALUES ("+
			strings.Join(params, ", ")+") RETURNING "+e.returning()+";", w.values...)
		if err != nil {
			return e.writeError(err)
		}
		if record, err = e.scanOne(rows); err != nil {
			return err
		}
		return e.syncPivots(ctx, tx, record.ID(), w.pivots, false)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", e.Slug(), err)
	}
	logger.FromContext(ctx).WithField("type", e.Slug()).Debugf("created record %s", record.ID())
	return record, nil
}

func indexOf(s []string, v string) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}

func (e *Entity) ensureSingle(ctx context.Context, tx *sql.Tx, locale string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, "cms:single:"+e.Table); err != nil {
		return fmt.Errorf("failed to lock %s: %w", e.Table, err)
	}
	args := []any{}
	query := "SELECT EXISTS (SELECT 1 FROM " + e.table() + " WHERE deleted_at IS NULL"
	if e.Type.IsLocalized {
		query += " AND locale = $1"
		args = append(args, locale)
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, query+");", args...).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check single record: %w", err)
	}
	if exists {
		return fmt.Errorf("single type %s already has a record: %w", e.Slug(), core.ErrAlreadyExists)
	}
	return nil
}

// Find returns the record with id, or nil if there is none
func (e *Entity) Find(ctx context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return e.Query().Where("id", "=", id).First(ctx)
}

// FindOrFail returns the record with id and fails with core.ErrNotFound if there is none
func (e *Entity) FindOrFail(ctx context.Context, id string) (*Record, error) {
	r, err := e.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound)
	}
	return r, nil
}

// Update writes attributes to the record with id. Multi-valued relations present in
// attributes replace the stored links.
func (e *Entity) Update(ctx context.Context, id string, attributes map[string]any) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound)
	}
	w, err := e.prepare(attributes)
	if err != nil {
		return nil, err
	}
	w.columns = append(w.columns, "updated_at")
	w.values = append(w.values, e.repo.now())

	var record *Record
	err = e.repo.db.WithTx(ctx, func(tx *sql.Tx) error {
		sets := make([]string, len(w.columns))
		for i, c := range w.columns {
			sets[i] = pq.QuoteIdentifier(c) + " = $" + strconv.Itoa(i+2)
		}
		args := append([]any{id}, w.values...)
		rows, err := tx.QueryContext(ctx, "UPDATE "+e.table()+" SET "+strings.Join(sets, ", ")+
			" WHERE id = $1 AND deleted_at IS NULL RETURNING "+e.returning()+";", args...)
		if err != nil {
			return e.writeError(err)
		}
		record, err = e.scanOne(rows)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return e.syncPivots(ctx, tx, id, w.pivots, true)
	})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", e.Slug(), err)
	}
	return record, nil
}

// Delete soft deletes the record with id. It is invisible to every read afterwards.
func (e *Entity) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound)
	}
	res, err := e.repo.db.ExecContext(ctx, "UPDATE "+e.table()+
		" SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL;", id, e.repo.now())
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", e.Slug(), id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound)
	}
	return nil
}

func (e *Entity) writeError(err error) error {
	if csql.HasCode(err, csql.CodeUniqueViolation) {
		return fmt.Errorf("%v: %w", err, core.ErrAlreadyExists)
	}
	if csql.IsDataException(err) {
		verr := core.NewValidationError()
		verr.Add("record", err.Error())
		return verr
	}
	return err
}

// syncPivots links record id to the given related ids. With replace, existing links of
// the listed fields are removed first.
func (e *Entity) syncPivots(ctx context.Context, tx *sql.Tx, id string, pivots map[string][]string, replace bool) error {
	fields := make([]string, 0, len(pivots))
	for name := range pivots {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		rel, err := e.ResolveRelation(ctx, name)
		if err != nil {
			return err
		}
		table := e.repo.db.Table(rel.PivotTable)
		local := pq.QuoteIdentifier(rel.LocalColumn)
		related := pq.QuoteIdentifier(rel.RelatedColumn)
		if replace {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE "+local+" = $1;", id); err != nil {
				return fmt.Errorf("failed to unlink %s: %w", name, err)
			}
		}
		for _, relatedID := range pivots[name] {
			_, err := tx.ExecContext(ctx, "INSERT INTO "+table+" ("+local+", "+related+") VALUES ($1, $2) ON CONFLICT DO NOTHING;", id, relatedID)
			if csql.HasCode(err, csql.CodeForeignKey) {
				verr := core.NewValidationError()
				verr.Add(name, "references unknown record "+relatedID)
				return verr
			}
			if err != nil {
				return fmt.Errorf("failed to link %s: %w", name, err)
			}
		}
	}
	return nil
}

// Exists reports whether a live record of table has value in column, ignoring the record exceptID.
// It backs uniqueness validation.
func (r *Repository) Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM " + r.db.Table(table) + " WHERE " + pq.QuoteIdentifier(column) + " = $1 AND deleted_at IS NULL"
	args := []any{value}
	if _, err := uuid.Parse(exceptID); err == nil {
		query += " AND id <> $2"
		args = append(args, exceptID)
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, query+");", args...).Scan(&exists)
	if csql.IsDataException(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check uniqueness of %s.%s: %w", table, column, err)
	}
	return exists, nil
}
