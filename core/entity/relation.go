package entity

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

// RelationKind tells how a relation is stored
type RelationKind int

// all relation kinds
const (
	// RelationNone is a field which is not a relation
	RelationNone RelationKind = iota
	// RelationToOne is stored in the foreign column <field>_id
	RelationToOne
	// RelationToMany is stored in a pivot table
	RelationToMany
)

// Relation is the resolved storage of a relation field
type Relation struct {
	Kind  RelationKind
	Field *catalog.ContentField
	// Column is the foreign column of a to-one relation
	Column string
	// Media is true for media fields, which have no related content type
	Media bool
	// PivotTable, LocalColumn and RelatedColumn describe a to-many relation
	PivotTable    string
	LocalColumn   string
	RelatedColumn string
	// Related is the related content type, nil for media
	Related *catalog.ContentType
}

// ResolveRelation resolves name against the fields of the bound type. A field which is not
// a relation resolves to RelationNone; a name which is no field fails with core.ErrMethodNotFound.
func (e *Entity) ResolveRelation(ctx context.Context, name string) (Relation, error) {
	f, ok := e.Type.Field(name)
	if !ok {
		return Relation{}, fmt.Errorf("%s has no relation %q: %w", e.Slug(), name, core.ErrMethodNotFound)
	}
	rel := Relation{Field: f}
	switch {
	case f.Type == catalog.FieldMedia:
		rel.Kind = RelationToOne
		rel.Column = f.Column()
		rel.Media = true
		return rel, nil
	case f.Type != catalog.FieldRelation:
		return rel, nil
	}

	related := e.Type
	if f.Settings.RelatedContentTypeID != e.Type.ID {
		var err error
		if related, err = e.repo.catalog.TypeByID(ctx, f.Settings.RelatedContentTypeID); err != nil {
			return Relation{}, fmt.Errorf("relation %s of %s: %w", name, e.Slug(), err)
		}
	}
	rel.Related = related
	if f.IsForeign() {
		rel.Kind = RelationToOne
		rel.Column = f.Column()
		return rel, nil
	}
	p := core.Pivot(e.Type.Slug, related.Slug)
	rel.Kind = RelationToMany
	rel.PivotTable = p.Table
	rel.LocalColumn = p.LocalColumn
	rel.RelatedColumn = p.RelatedColumn
	return rel, nil
}

// Related binds the related type of rel, so the same machinery applies to it
func (e *Entity) Related(ctx context.Context, rel Relation) (*Entity, error) {
	if rel.Related == nil {
		return nil, fmt.Errorf("relation %s has no related type: %w", rel.Field.Name, core.ErrMethodNotFound)
	}
	if rel.Related.ID == e.Type.ID {
		return e, nil
	}
	return e.repo.BindType(ctx, rel.Related)
}

// populate loads the named relations into records
func (e *Entity) populate(ctx context.Context, q csql.Querier, records []*Record, relations []string) error {
	for _, name := range relations {
		rel, err := e.ResolveRelation(ctx, name)
		if err != nil {
			return err
		}
		switch rel.Kind {
		case RelationToOne:
			err = e.populateToOne(ctx, q, records, rel)
		case RelationToMany:
			err = e.populateToMany(ctx, q, records, rel)
		default:
			err = fmt.Errorf("field %s of %s is not a relation: %w", name, e.Slug(), core.ErrMethodNotFound)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Entity) populateToOne(ctx context.Context, q csql.Querier, records []*Record, rel Relation) error {
	ids := []any{}
	seen := map[string]bool{}
	for _, r := range records {
		if id, ok := r.values[rel.Column].(string); ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	loaded := map[string]any{}
	if len(ids) > 0 {
		if rel.Media {
			if e.repo.media != nil {
				strs := make([]string, len(ids))
				for i, id := range ids {
					strs[i] = id.(string)
				}
				media, err := e.repo.media.Media(ctx, strs)
				if err != nil {
					return fmt.Errorf("failed to load media of %s: %w", rel.Field.Name, err)
				}
				loaded = media
			} else {
				for _, id := range ids {
					loaded[id.(string)] = map[string]any{"id": id}
				}
			}
		} else {
			related, err := e.Related(ctx, rel)
			if err != nil {
				return err
			}
			rows, err := related.Query().using(q).WhereIn("id", ids).Get(ctx)
			if err != nil {
				return err
			}
			for _, r := range rows {
				loaded[r.ID()] = r
			}
		}
	}
	for _, r := range records {
		var value any
		if id, ok := r.values[rel.Column].(string); ok {
			value = loaded[id]
		}
		r.Replace(rel.Column, rel.Field.Name, value)
	}
	return nil
}

func (e *Entity) populateToMany(ctx context.Context, q csql.Querier, records []*Record, rel Relation) error {
	related, err := e.Related(ctx, rel)
	if err != nil {
		return err
	}
	ids := make([]any, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID())
	}
	params := make([]string, len(ids))
	for i := range ids {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	local := pq.QuoteIdentifier(rel.LocalColumn)
	far := pq.QuoteIdentifier(rel.RelatedColumn)
	rows, err := q.QueryContext(ctx, "SELECT "+local+", "+far+" FROM "+e.repo.db.Table(rel.PivotTable)+
		" WHERE "+local+" IN ("+strings.Join(params, ", ")+") ORDER BY created_at, "+far+";", ids...)
	if err != nil {
		return fmt.Errorf("failed to read pivot %s: %w", rel.PivotTable, err)
	}
	links := map[string][]string{}
	relatedIDs := []any{}
	seen := map[string]bool{}
	for rows.Next() {
		var localID, relatedID string
		if err := rows.Scan(&localID, &relatedID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan pivot %s: %w", rel.PivotTable, err)
		}
		links[localID] = append(links[localID], relatedID)
		if !seen[relatedID] {
			seen[relatedID] = true
			relatedIDs = append(relatedIDs, relatedID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	loaded := map[string]*Record{}
	if len(relatedIDs) > 0 {
		relatedRecords, err := related.Query().using(q).WhereIn("id", relatedIDs).Get(ctx)
		if err != nil {
			return err
		}
		for _, r := range relatedRecords {
			loaded[r.ID()] = r
		}
	}
	for _, r := range records {
		list := []*Record{}
		for _, id := range links[r.ID()] {
			if rr, ok := loaded[id]; ok {
				list = append(list, rr)
			}
		}
		r.Set(rel.Field.Name, list)
	}
	return nil
}
