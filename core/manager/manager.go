// Package manager turns content type definitions into physical storage.
//
// Every operation runs in one transaction: catalog rows and DDL commit together
// or not at all. Postgres DDL is transactional, so a failed statement leaves
// neither catalog rows nor tables behind.
//
// Schema evolution is additive. Columns are never renamed or dropped on update.
package manager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// FieldDefinition describes one field of a type definition
type FieldDefinition struct {
	Name     string            `json:"name"`
	Type     catalog.FieldType `json:"type"`
	Settings catalog.Settings  `json:"settings"`
}

// TypeDefinition is the input of CreateType and UpdateType
type TypeDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	catalog.Flags
	Fields []FieldDefinition `json:"fields"`
}

// Manager is the schema manager
type Manager struct {
	db      *csql.DB
	catalog *catalog.Store
}

// New returns a schema manager writing to db and the catalog store
func New(db *csql.DB, store *catalog.Store) *Manager {
	return &Manager{db: db, catalog: store}
}

// CreateType catalogs a new content type and creates its table and pivot tables.
func (m *Manager) CreateType(ctx context.Context, def TypeDefinition) (*catalog.ContentType, error) {
	if err := m.validate(def.Name, def.Fields, nil); err != nil {
		return nil, err
	}
	ct := &catalog.ContentType{
		Name:        def.Name,
		Slug:        core.Slug(def.Name),
		Table:       core.TableName(def.Name),
		Description: def.Description,
		Fields:      []*catalog.ContentField{},
	}
	ct.SetFlags(def.Flags)
	rlog := logger.FromContext(ctx).WithField("type", ct.Slug)

	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		store := m.catalog.With(tx)
		if err := lock(ctx, tx, ct.Table); err != nil {
			return err
		}
		if ct.HasTable() {
			exists, err := csql.HasTable(ctx, tx, m.db.Schema, ct.Table)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("table %s: %w", ct.Table, core.ErrAlreadyExists)
			}
		}
		if err := store.InsertType(ctx, ct); err != nil {
			return err
		}
		fields, err := m.resolveFields(ctx, store, ct, def.Fields, 0)
		if err != nil {
			return err
		}
		ct.Fields = fields
		for _, rf := range fields {
			if err := store.InsertField(ctx, ct.ID, rf); err != nil {
				return err
			}
		}
		if !ct.HasTable() {
			rlog.Infoln("component cataloged, no table")
			return nil
		}
		statements, err := CreateTableStatements(m.db.Schema, ct)
		if err != nil {
			return err
		}
		if err := m.exec(ctx, tx, rlog, statements); err != nil {
			return err
		}
		return m.ensurePivots(ctx, tx, store, rlog, ct, fields)
	})
	if err != nil {
		return nil, fmt.Errorf("create type %s: %w", def.Name, err)
	}
	rlog.Infoln("content type created")
	return ct, nil
}

// UpdateType applies flag changes and appends new fields. Fields which already exist
// are kept as they are; changing the type of an existing field is rejected.
func (m *Manager) UpdateType(ctx context.Context, slug string, def TypeDefinition) (*catalog.ContentType, error) {
	rlog := logger.FromContext(ctx).WithField("type", slug)
	var ct *catalog.ContentType
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		store := m.catalog.With(tx)
		var err error
		if ct, err = store.TypeBySlug(ctx, slug); err != nil {
			return err
		}
		if err := lock(ctx, tx, ct.Table); err != nil {
			return err
		}
		if def.IsComponent != ct.IsComponent {
			return fmt.Errorf("is_component cannot be changed: %w", core.ErrInvalidDefinition)
		}

		var added []FieldDefinition
		for _, fd := range def.Fields {
			existing, ok := ct.Field(fd.Name)
			if !ok {
				added = append(added, fd)
				continue
			}
			if existing.Type != fd.Type || existing.IsMultiRelation() != (fd.Type == catalog.FieldRelation && fd.Settings.Multiple) {
				return fmt.Errorf("field %s cannot change its type: %w", fd.Name, core.ErrInvalidDefinition)
			}
		}
		if err := m.validate(ct.Name, added, ct); err != nil {
			return err
		}

		var statements []string
		if ct.HasTable() && def.HasOwnership && !ct.HasOwnership {
			statements = append(statements, OwnershipStatements(m.db.Schema, ct)...)
		}
		if ct.HasTable() && def.IsLocalized && !ct.IsLocalized {
			statements = append(statements, LocalizationStatements(m.db.Schema, ct)...)
		}
		ct.SetFlags(def.Flags)
		if def.Description != "" {
			ct.Description = def.Description
		}
		if err := store.UpdateType(ctx, ct); err != nil {
			return err
		}

		fields, err := m.resolveFields(ctx, store, ct, added, len(ct.Fields))
		if err != nil {
			return err
		}
		for _, f := range fields {
			if err := store.InsertField(ctx, ct.ID, f); err != nil {
				return err
			}
			ct.Fields = append(ct.Fields, f)
			if !ct.HasTable() {
				continue
			}
			s, err := AddFieldStatements(m.db.Schema, ct, f)
			if err != nil {
				return err
			}
			statements = append(statements, s...)
		}
		if !ct.HasTable() {
			return nil
		}
		if err := m.exec(ctx, tx, rlog, statements); err != nil {
			return err
		}
		return m.ensurePivots(ctx, tx, store, rlog, ct, fields)
	})
	if err != nil {
		return nil, fmt.Errorf("update type %s: %w", slug, err)
	}
	rlog.Infoln("content type updated")
	return ct, nil
}

// DeleteType removes the type from the catalog and drops its table. Pivot tables are
// kept: the related side may still declare the relation.
func (m *Manager) DeleteType(ctx context.Context, slug string) error {
	rlog := logger.FromContext(ctx).WithField("type", slug)
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		store := m.catalog.With(tx)
		ct, err := store.TypeBySlug(ctx, slug)
		if err != nil {
			return err
		}
		if err := lock(ctx, tx, ct.Table); err != nil {
			return err
		}
		if err := store.DeleteType(ctx, ct); err != nil {
			return err
		}
		if !ct.HasTable() {
			return nil
		}
		return m.exec(ctx, tx, rlog, []string{DropTableStatement(m.db.Schema, ct)})
	})
	if err != nil {
		return fmt.Errorf("delete type %s: %w", slug, err)
	}
	rlog.Infoln("content type deleted")
	return nil
}

// lock serializes schema changes on the same table name for the rest of the transaction
func lock(ctx context.Context, tx *sql.Tx, table string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1));`, "cms:"+table)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", table, err)
	}
	return nil
}

func (m *Manager) exec(ctx context.Context, tx *sql.Tx, rlog *logrus.Entry, statements []string) error {
	for _, statement := range statements {
		rlog.Debugln(statement)
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			if csql.HasCode(err, csql.CodeDuplicateTable) {
				return fmt.Errorf("%v: %w", err, core.ErrAlreadyExists)
			}
			return fmt.Errorf("failed to execute %q: %w", firstLine(statement), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ensurePivots creates the pivot table of every multi-valued relation in fields,
// reusing tables which already exist.
func (m *Manager) ensurePivots(ctx context.Context, tx *sql.Tx, store *catalog.Store, rlog *logrus.Entry, ct *catalog.ContentType, fields []*catalog.ContentField) error {
	for _, f := range fields {
		if !f.IsMultiRelation() {
			continue
		}
		related := ct
		if f.Settings.RelatedContentTypeID != ct.ID {
			var err error
			if related, err = store.TypeByID(ctx, f.Settings.RelatedContentTypeID); err != nil {
				return err
			}
		}
		p := core.Pivot(ct.Slug, related.Slug)
		exists, err := csql.HasTable(ctx, tx, m.db.Schema, p.Table)
		if err != nil {
			return err
		}
		if exists {
			rlog.Infof("reusing pivot table %s for field %s", p.Table, f.Name)
			continue
		}
		if err := m.exec(ctx, tx, rlog, PivotStatements(m.db.Schema, ct, related)); err != nil {
			return err
		}
	}
	return nil
}
