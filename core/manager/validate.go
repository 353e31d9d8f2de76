package manager

import (
	"context"
	"fmt"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/schema"
)

// validate checks a definition before anything touches the database.
// existing is the type being updated, nil on create.
func (m *Manager) validate(name string, fields []FieldDefinition, existing *catalog.ContentType) error {
	if fields == nil {
		fields = []FieldDefinition{}
	}
	document := struct {
		Name   string            `json:"name"`
		Fields []FieldDefinition `json:"fields"`
	}{name, fields}
	if err := schema.ValidateDefinition(document); err != nil {
		return err
	}
	return validateFields(fields, existing)
}

func validateFields(fields []FieldDefinition, existing *catalog.ContentType) error {
	columns := map[string]string{}
	if existing != nil {
		for _, f := range existing.Fields {
			columns[f.Name] = f.Name
			if c := f.Column(); c != "" {
				columns[c] = f.Name
			}
		}
	}
	for _, fd := range fields {
		f := &catalog.ContentField{Name: fd.Name, Type: fd.Type, Settings: fd.Settings}
		if !fd.Type.Valid() {
			return fmt.Errorf("field %s of type %q: %w", fd.Name, fd.Type, core.ErrUnsupportedFieldType)
		}
		if IsSystemColumn(fd.Name) {
			return fmt.Errorf("field name %s is reserved: %w", fd.Name, core.ErrInvalidDefinition)
		}
		names := []string{f.Name}
		if c := f.Column(); c != "" && c != f.Name {
			names = append(names, c)
		}
		for _, n := range names {
			if IsSystemColumn(n) {
				return fmt.Errorf("field %s maps to reserved column %s: %w", fd.Name, n, core.ErrInvalidDefinition)
			}
			if other, ok := columns[n]; ok {
				return fmt.Errorf("field %s collides with field %s: %w", fd.Name, other, core.ErrInvalidDefinition)
			}
			columns[n] = fd.Name
		}

		switch fd.Type {
		case catalog.FieldRelation, catalog.FieldComponent:
			if fd.Settings.RelatedContentTypeID == "" {
				return fmt.Errorf("field %s needs related_content_type_id: %w", fd.Name, core.ErrInvalidDefinition)
			}
		case catalog.FieldDynamicZone:
			if len(fd.Settings.AllowedComponentIDs) == 0 {
				return fmt.Errorf("field %s needs allowed_component_ids: %w", fd.Name, core.ErrInvalidDefinition)
			}
		case catalog.FieldEnum:
			if len(fd.Settings.Options) == 0 {
				return fmt.Errorf("field %s needs options: %w", fd.Name, core.ErrInvalidDefinition)
			}
		}
		if fd.Settings.Multiple && fd.Type != catalog.FieldRelation {
			return fmt.Errorf("field %s: only relations can be multiple: %w", fd.Name, core.ErrInvalidDefinition)
		}
		if fd.Settings.Unique && (fd.Type.Structured() || f.IsMultiRelation()) {
			return fmt.Errorf("field %s of type %s cannot be unique: %w", fd.Name, fd.Type, core.ErrInvalidDefinition)
		}
		if _, err := columnDefinition(f, false); err != nil {
			return err
		}
	}
	return nil
}

// resolveFields turns definitions into catalog fields and checks that every
// referenced type exists and has the right kind.
func (m *Manager) resolveFields(ctx context.Context, store *catalog.Store, ct *catalog.ContentType, defs []FieldDefinition, offset int) ([]*catalog.ContentField, error) {
	fields := make([]*catalog.ContentField, 0, len(defs))
	for i, fd := range defs {
		f := &catalog.ContentField{
			Name:     fd.Name,
			Type:     fd.Type,
			Settings: fd.Settings,
			Position: offset + i,
		}
		switch f.Type {
		case catalog.FieldRelation:
			if f.Settings.RelatedContentTypeID == ct.ID {
				if ct.IsComponent {
					return nil, fmt.Errorf("field %s: components cannot relate to themselves: %w", f.Name, core.ErrInvalidDefinition)
				}
				break
			}
			related, err := store.TypeByID(ctx, f.Settings.RelatedContentTypeID)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			if related.IsComponent {
				return nil, fmt.Errorf("field %s relates to component %s: %w", f.Name, related.Slug, core.ErrInvalidDefinition)
			}
			if f.IsMultiRelation() && ct.IsComponent {
				return nil, fmt.Errorf("field %s: components cannot hold multiple relations: %w", f.Name, core.ErrInvalidDefinition)
			}
		case catalog.FieldComponent:
			if err := requireComponent(ctx, store, f.Name, f.Settings.RelatedContentTypeID); err != nil {
				return nil, err
			}
		case catalog.FieldDynamicZone:
			for _, id := range f.Settings.AllowedComponentIDs {
				if err := requireComponent(ctx, store, f.Name, id); err != nil {
					return nil, err
				}
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func requireComponent(ctx context.Context, store *catalog.Store, field, id string) error {
	related, err := store.TypeByID(ctx, id)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	if !related.IsComponent {
		return fmt.Errorf("field %s references %s which is not a component: %w", field, related.Slug, core.ErrInvalidDefinition)
	}
	return nil
}
