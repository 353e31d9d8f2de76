package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/cache"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

// VisibilityTTL is how long a type's public flag is cached on the read path
const VisibilityTTL = 60 * time.Second

// Store reads and writes catalog rows. A Store bound to a transaction with With
// joins that transaction.
type Store struct {
	db         *csql.DB
	q          csql.Querier
	visibility *cache.Cache[bool]
}

// New returns a catalog store on db
func New(db *csql.DB) *Store {
	return &Store{
		db:         db,
		q:          db,
		visibility: cache.New[bool](VisibilityTTL),
	}
}

// With returns a store executing on q, typically a *sql.Tx
func (s *Store) With(q csql.Querier) *Store {
	c := *s
	c.q = q
	return &c
}

// DB returns the database of the store
func (s *Store) DB() *csql.DB {
	return s.db
}

const typeColumns = `id, name, slug, table_name, description, is_public, has_ownership, is_component, is_single, is_localized, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanType(row scanner) (*ContentType, error) {
	ct := &ContentType{}
	err := row.Scan(&ct.ID, &ct.Name, &ct.Slug, &ct.Table, &ct.Description,
		&ct.IsPublic, &ct.HasOwnership, &ct.IsComponent, &ct.IsSingle, &ct.IsLocalized,
		&ct.CreatedAt, &ct.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ct, nil
}

// TypeBySlug returns the content type with slug including its fields
func (s *Store) TypeBySlug(ctx context.Context, slug string) (*ContentType, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+typeColumns+` FROM `+s.db.Table("_content_type_")+` WHERE slug = $1;`, slug)
	ct, err := scanType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content type %q: %w", slug, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content type %q: %w", slug, err)
	}
	if ct.Fields, err = s.fields(ctx, ct.ID); err != nil {
		return nil, err
	}
	return ct, nil
}

// TypeByID returns the content type with id including its fields
func (s *Store) TypeByID(ctx context.Context, id string) (*ContentType, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("content type id %q: %w", id, core.ErrNotFound)
	}
	row := s.q.QueryRowContext(ctx,
		`SELECT `+typeColumns+` FROM `+s.db.Table("_content_type_")+` WHERE id = $1;`, id)
	ct, err := scanType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content type id %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content type %q: %w", id, err)
	}
	if ct.Fields, err = s.fields(ctx, ct.ID); err != nil {
		return nil, err
	}
	return ct, nil
}

// Types returns all content types ordered by name
func (s *Store) Types(ctx context.Context) ([]*ContentType, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+typeColumns+` FROM `+s.db.Table("_content_type_")+` ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list content types: %w", err)
	}
	var types []*ContentType
	for rows.Next() {
		ct, err := scanType(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan content type: %w", err)
		}
		types = append(types, ct)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, ct := range types {
		if ct.Fields, err = s.fields(ctx, ct.ID); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func (s *Store) fields(ctx context.Context, typeID string) ([]*ContentField, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, content_type_id, name, type, settings, position FROM `+s.db.Table("_content_field_")+
			` WHERE content_type_id = $1 ORDER BY position, name;`, typeID)
	if err != nil {
		return nil, fmt.Errorf("failed to read fields: %w", err)
	}
	defer rows.Close()

	fields := []*ContentField{}
	for rows.Next() {
		var (
			f        ContentField
			settings []byte
		)
		if err := rows.Scan(&f.ID, &f.ContentTypeID, &f.Name, &f.Type, &settings, &f.Position); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		if err := json.Unmarshal(settings, &f.Settings); err != nil {
			return nil, fmt.Errorf("invalid settings of field %s: %w", f.Name, err)
		}
		fields = append(fields, &f)
	}
	return fields, rows.Err()
}

// InsertType writes the type row of ct. Fields are inserted separately with InsertField.
func (s *Store) InsertType(ctx context.Context, ct *ContentType) error {
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ct.CreatedAt, ct.UpdatedAt = now, now
	_, err := s.q.ExecContext(ctx, `INSERT INTO `+s.db.Table("_content_type_")+` (`+typeColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`,
		ct.ID, ct.Name, ct.Slug, ct.Table, ct.Description,
		ct.IsPublic, ct.HasOwnership, ct.IsComponent, ct.IsSingle, ct.IsLocalized,
		ct.CreatedAt, ct.UpdatedAt)
	if csql.HasCode(err, csql.CodeUniqueViolation) {
		return fmt.Errorf("content type %q: %w", ct.Slug, core.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert content type %q: %w", ct.Slug, err)
	}
	s.visibility.Delete(ct.Slug)
	return nil
}

// UpdateType writes description and flags of ct
func (s *Store) UpdateType(ctx context.Context, ct *ContentType) error {
	ct.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `UPDATE `+s.db.Table("_content_type_")+`
SET description = $2, is_public = $3, has_ownership = $4, is_component = $5, is_single = $6, is_localized = $7, updated_at = $8
WHERE id = $1;`,
		ct.ID, ct.Description, ct.IsPublic, ct.HasOwnership, ct.IsComponent, ct.IsSingle, ct.IsLocalized, ct.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update content type %q: %w", ct.Slug, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("content type %q: %w", ct.Slug, core.ErrNotFound)
	}
	s.visibility.Delete(ct.Slug)
	return nil
}

// InsertField writes f as a field of the type with typeID
func (s *Store) InsertField(ctx context.Context, typeID string, f *ContentField) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.ContentTypeID = typeID
	settings, err := json.Marshal(f.Settings)
	if err != nil {
		return fmt.Errorf("invalid settings of field %s: %w", f.Name, err)
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO `+s.db.Table("_content_field_")+`
(id, content_type_id, name, type, settings, position) VALUES ($1, $2, $3, $4, $5, $6);`,
		f.ID, typeID, f.Name, string(f.Type), string(settings), f.Position)
	if csql.HasCode(err, csql.CodeUniqueViolation) {
		return fmt.Errorf("field %q: %w", f.Name, core.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert field %q: %w", f.Name, err)
	}
	return nil
}

// DeleteType removes the type row of ct; its fields go with it
func (s *Store) DeleteType(ctx context.Context, ct *ContentType) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM `+s.db.Table("_content_type_")+` WHERE id = $1;`, ct.ID)
	if err != nil {
		return fmt.Errorf("failed to delete content type %q: %w", ct.Slug, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("content type %q: %w", ct.Slug, core.ErrNotFound)
	}
	s.visibility.Delete(ct.Slug)
	return nil
}

// IsPublic reports whether the type with slug is readable without an actor.
// The answer is cached for VisibilityTTL.
func (s *Store) IsPublic(ctx context.Context, slug string) (bool, error) {
	return s.visibility.GetOrLoad(ctx, slug, func(ctx context.Context) (bool, error) {
		var public bool
		err := s.q.QueryRowContext(ctx,
			`SELECT is_public FROM `+s.db.Table("_content_type_")+` WHERE slug = $1;`, slug).Scan(&public)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("content type %q: %w", slug, core.ErrNotFound)
		}
		return public, err
	})
}
