package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/manager"
)

// fileField is a field as written in a definition file. Relations and
// components may name their targets by slug instead of by id.
type fileField struct {
	manager.FieldDefinition
	Related    string   `json:"related,omitempty"`
	Components []string `json:"components,omitempty"`
}

// fileType is a content type as written in a definition file
type fileType struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	catalog.Flags
	Fields []fileField `json:"fields"`
}

// parseDefinitions reads a single definition object or an array of them
func parseDefinitions(data []byte) ([]fileType, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("definition file is empty")
	}
	var types []fileType
	if data[0] == '[' {
		if err := json.Unmarshal(data, &types); err != nil {
			return nil, fmt.Errorf("failed to parse definitions: %w", err)
		}
	} else {
		var t fileType
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse definition: %w", err)
		}
		types = append(types, t)
	}
	for i, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("definition %d has no name", i)
		}
	}
	return types, nil
}

// slugResolver returns the id of the content type with a slug
type slugResolver func(ctx context.Context, slug string) (string, error)

// storeResolver resolves slugs against the catalog
func storeResolver(store *catalog.Store) slugResolver {
	return func(ctx context.Context, slug string) (string, error) {
		ct, err := store.TypeBySlug(ctx, slug)
		if err != nil {
			return "", err
		}
		return ct.ID, nil
	}
}

// toDefinition converts t into a manager definition, resolving slug references
func (t fileType) toDefinition(ctx context.Context, resolve slugResolver) (manager.TypeDefinition, error) {
	def := manager.TypeDefinition{
		Name:        t.Name,
		Description: t.Description,
		Flags:       t.Flags,
	}
	for _, f := range t.Fields {
		fd := f.FieldDefinition
		if f.Related != "" {
			id, err := resolve(ctx, f.Related)
			if err != nil {
				return def, fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
			}
			fd.Settings.RelatedContentTypeID = id
		}
		if len(f.Components) > 0 {
			fd.Settings.AllowedComponentIDs = nil
			for _, slug := range f.Components {
				id, err := resolve(ctx, slug)
				if err != nil {
					return def, fmt.Errorf("%s.%s: %w", t.Name, f.Name, err)
				}
				fd.Settings.AllowedComponentIDs = append(fd.Settings.AllowedComponentIDs, id)
			}
		}
		def.Fields = append(def.Fields, fd)
	}
	return def, nil
}
