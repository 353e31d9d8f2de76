// Package catalog holds the type catalog: the content types and their fields.
//
// The catalog is the single source of truth for interpreting a content table. It is
// written by the schema manager only; everything else reads it.
package catalog

import (
	"time"

	"github.com/relabs-tech/kurbisio-cms/core"
)

// FieldType is the abstract type of a content field
type FieldType string

// all supported field types
const (
	FieldText        FieldType = "text"
	FieldLongText    FieldType = "longtext"
	FieldInteger     FieldType = "integer"
	FieldBoolean     FieldType = "boolean"
	FieldDatetime    FieldType = "datetime"
	FieldMedia       FieldType = "media"
	FieldRelation    FieldType = "relation"
	FieldJSON        FieldType = "json"
	FieldEnum        FieldType = "enum"
	FieldEmail       FieldType = "email"
	FieldComponent   FieldType = "component"
	FieldDynamicZone FieldType = "dynamic_zone"
)

// FieldTypes lists every supported field type
var FieldTypes = []FieldType{
	FieldText, FieldLongText, FieldInteger, FieldBoolean, FieldDatetime, FieldMedia,
	FieldRelation, FieldJSON, FieldEnum, FieldEmail, FieldComponent, FieldDynamicZone,
}

// Valid returns true if t is a supported field type
func (t FieldType) Valid() bool {
	for _, s := range FieldTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Structured returns true for types stored as serialized JSON
func (t FieldType) Structured() bool {
	return t == FieldJSON || t == FieldComponent || t == FieldDynamicZone
}

// Settings are the per-field options
type Settings struct {
	Required             bool     `json:"required,omitempty"`
	Unique               bool     `json:"unique,omitempty"`
	Multiple             bool     `json:"multiple,omitempty"`
	RelatedContentTypeID string   `json:"related_content_type_id,omitempty"`
	AllowedComponentIDs  []string `json:"allowed_component_ids,omitempty"`
	Options              []string `json:"options,omitempty"`
	Default              any      `json:"default,omitempty"`
}

// ContentField is one field of a content type
type ContentField struct {
	ID            string    `json:"id"`
	ContentTypeID string    `json:"content_type_id"`
	Name          string    `json:"name"`
	Type          FieldType `json:"type"`
	Settings      Settings  `json:"settings"`
	Position      int       `json:"position"`
}

// IsMultiRelation returns true for relation fields backed by a pivot table
func (f *ContentField) IsMultiRelation() bool {
	return f.Type == FieldRelation && f.Settings.Multiple
}

// IsForeign returns true for fields stored as a to-one reference column
func (f *ContentField) IsForeign() bool {
	return f.Type == FieldMedia || (f.Type == FieldRelation && !f.Settings.Multiple)
}

// Column returns the physical column of the field, or an empty string if
// the field has no column on the main table
func (f *ContentField) Column() string {
	switch {
	case f.IsMultiRelation():
		return ""
	case f.IsForeign():
		return core.ForeignColumn(f.Name)
	}
	return f.Name
}

// ContentType describes one kind of record
type ContentType struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Table        string          `json:"table_name"`
	Description  string          `json:"description"`
	IsPublic     bool            `json:"is_public"`
	HasOwnership bool            `json:"has_ownership"`
	IsComponent  bool            `json:"is_component"`
	IsSingle     bool            `json:"is_single"`
	IsLocalized  bool            `json:"is_localized"`
	Fields       []*ContentField `json:"fields"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Field returns the field called name
func (ct *ContentType) Field(name string) (*ContentField, bool) {
	for _, f := range ct.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// HasTable returns true if records of this type are stored in a table
func (ct *ContentType) HasTable() bool {
	return !ct.IsComponent
}

// Flags are the boolean switches of a content type
type Flags struct {
	IsPublic     bool `json:"is_public"`
	HasOwnership bool `json:"has_ownership"`
	IsComponent  bool `json:"is_component"`
	IsSingle     bool `json:"is_single"`
	IsLocalized  bool `json:"is_localized"`
}

// Flags returns the flags of ct
func (ct *ContentType) Flags() Flags {
	return Flags{
		IsPublic:     ct.IsPublic,
		HasOwnership: ct.HasOwnership,
		IsComponent:  ct.IsComponent,
		IsSingle:     ct.IsSingle,
		IsLocalized:  ct.IsLocalized,
	}
}

// SetFlags applies flags to ct
func (ct *ContentType) SetFlags(f Flags) {
	ct.IsPublic = f.IsPublic
	ct.HasOwnership = f.HasOwnership
	ct.IsComponent = f.IsComponent
	ct.IsSingle = f.IsSingle
	ct.IsLocalized = f.IsLocalized
}
