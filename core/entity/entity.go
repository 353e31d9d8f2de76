// Package entity provides generic record access for runtime defined content types.
//
// A content type is bound once per request with Repository.Bind. The bound Entity knows
// its table, its columns and how to cast stored values, so create, read, update, delete
// and queries work for every type without per-type code.
package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// DefaultLocale is stored for localized records which do not name a locale
const DefaultLocale = "en"

// MediaLookup resolves media ids to their descriptions when media fields are populated
type MediaLookup interface {
	Media(ctx context.Context, ids []string) (map[string]any, error)
}

// Repository binds content types to entities
type Repository struct {
	db      *csql.DB
	catalog *catalog.Store
	media   MediaLookup
	now     func() time.Time
}

// New returns a repository on db, resolving types through store
func New(db *csql.DB, store *catalog.Store) *Repository {
	return &Repository{
		db:      db,
		catalog: store,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithMedia sets the lookup used to populate media fields. Without one, a populated
// media field only carries its id.
func (r *Repository) WithMedia(media MediaLookup) *Repository {
	r.media = media
	return r
}

// Catalog returns the catalog store of the repository
func (r *Repository) Catalog() *catalog.Store {
	return r.catalog
}

// Bind resolves slug to a bound entity. Unknown slugs and components fail with core.ErrNotFound.
func (r *Repository) Bind(ctx context.Context, slug string) (*Entity, error) {
	ct, err := r.catalog.TypeBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return r.BindType(ctx, ct)
}

// BindType binds an already loaded content type
func (r *Repository) BindType(ctx context.Context, ct *catalog.ContentType) (*Entity, error) {
	if !ct.HasTable() {
		return nil, fmt.Errorf("content type %s is a component without records: %w", ct.Slug, core.ErrNotFound)
	}
	e := &Entity{
		repo:  r,
		Type:  ct,
		Table: core.TableName(ct.Name),
		casts: map[string]Cast{},
	}
	if e.Table != ct.Table {
		logger.FromContext(ctx).Warnf("catalog table %s of type %s differs from derived name %s", ct.Table, ct.Slug, e.Table)
	}
	e.addColumn("id", CastID)
	if ct.HasOwnership {
		e.addColumn("user_id", CastID)
	}
	for _, f := range ct.Fields {
		if c := f.Column(); c != "" {
			e.addColumn(c, castOf(f))
		}
	}
	if ct.IsLocalized {
		e.addColumn("locale", CastString)
	}
	e.addColumn("published_at", CastDatetime)
	e.addColumn("created_at", CastDatetime)
	e.addColumn("updated_at", CastDatetime)
	return e, nil
}

// Entity is a content type bound to its table
type Entity struct {
	repo    *Repository
	Type    *catalog.ContentType
	Table   string
	columns []string
	casts   map[string]Cast
}

func (e *Entity) addColumn(column string, cast Cast) {
	e.columns = append(e.columns, column)
	e.casts[column] = cast
}

// Columns returns the readable columns in table order
func (e *Entity) Columns() []string {
	return append([]string(nil), e.columns...)
}

// HasColumn returns true if column is a readable column of the entity
func (e *Entity) HasColumn(column string) bool {
	_, ok := e.casts[column]
	return ok
}

// Casts returns the cast of every column
func (e *Entity) Casts() map[string]Cast {
	casts := make(map[string]Cast, len(e.casts))
	for k, v := range e.casts {
		casts[k] = v
	}
	return casts
}

// Slug returns the slug of the bound type
func (e *Entity) Slug() string {
	return e.Type.Slug
}

func (e *Entity) table() string {
	return e.repo.db.Table(e.Table)
}

// NewRecord returns an unsaved record bound to the same table and casts as e.
// Values are cast as if they had been stored and read back; attributes which are
// not columns are ignored.
func (e *Entity) NewRecord(attributes map[string]any) (*Record, error) {
	r := newRecord(e)
	verr := core.NewValidationError()
	for _, c := range e.columns {
		v, ok := attributes[c]
		if !ok {
			continue
		}
		param, err := e.casts[c].encode(v)
		if err == nil {
			v, err = e.casts[c].decode(param)
		}
		if err != nil {
			verr.Add(c, err.Error())
			continue
		}
		r.Set(c, v)
	}
	if err := verr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}
