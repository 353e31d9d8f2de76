// Package validation derives validation rules from content type fields and applies them
// to incoming attributes.
package validation

import (
	"context"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
)

// TypeResolver resolves content types referenced by component and dynamic zone fields
type TypeResolver interface {
	TypeByID(ctx context.Context, id string) (*catalog.ContentType, error)
}

// UniqueChecker looks up whether a value is already taken
type UniqueChecker interface {
	Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error)
}

// Rule is a single check
type Rule string

// all rules
const (
	RuleRequired    Rule = "required"
	RuleNullable    Rule = "nullable"
	RuleString      Rule = "string"
	RuleMax255      Rule = "max:255"
	RuleMaxLocale   Rule = "max:12"
	RuleInteger     Rule = "integer"
	RuleBoolean     Rule = "boolean"
	RuleDate        Rule = "date"
	RuleEmail       Rule = "email"
	RuleArray       Rule = "array"
	RuleObject      Rule = "object"
	RuleIdentifier  Rule = "identifier"
	RuleIdentifiers Rule = "identifiers"
	RuleIn          Rule = "in"
	RuleUnique      Rule = "unique"
	RuleComponent   Rule = "component"
	RuleDynamicZone Rule = "dynamic_zone"
)

// FieldRules are the rules of one attribute key
type FieldRules struct {
	Key   string `json:"key"`
	Rules []Rule `json:"rules"`
	// Options of an in rule
	Options []string `json:"options,omitempty"`
	// Table, Column and ExceptID of a unique rule
	Table    string `json:"table,omitempty"`
	Column   string `json:"column,omitempty"`
	ExceptID string `json:"except_id,omitempty"`
	// ComponentID of a component rule
	ComponentID string `json:"component_id,omitempty"`
	// AllowedComponentIDs of a dynamic zone rule
	AllowedComponentIDs []string `json:"allowed_component_ids,omitempty"`
}

// Has returns true if r contains rule
func (fr FieldRules) Has(rule Rule) bool {
	for _, r := range fr.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

// Status values accepted on write
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Rules generates the rule set of ct. exceptID is the record being updated, it is
// excluded from uniqueness checks; pass an empty string on create.
func Rules(ct *catalog.ContentType, exceptID string) []FieldRules {
	set := make([]FieldRules, 0, len(ct.Fields)+3)
	for _, f := range ct.Fields {
		set = append(set, fieldRules(ct, f, exceptID))
	}
	set = append(set,
		FieldRules{Key: "published_at", Rules: []Rule{RuleNullable, RuleDate}},
		FieldRules{Key: "status", Rules: []Rule{RuleNullable, RuleString, RuleIn}, Options: []string{StatusDraft, StatusPublished}},
	)
	if ct.IsLocalized {
		set = append(set, FieldRules{Key: "locale", Rules: []Rule{RuleNullable, RuleString, RuleMaxLocale}})
	}
	return set
}

func fieldRules(ct *catalog.ContentType, f *catalog.ContentField, exceptID string) FieldRules {
	fr := FieldRules{Key: f.Name}
	if f.Settings.Required {
		fr.Rules = append(fr.Rules, RuleRequired)
	} else {
		fr.Rules = append(fr.Rules, RuleNullable)
	}
	switch f.Type {
	case catalog.FieldText:
		fr.Rules = append(fr.Rules, RuleString, RuleMax255)
	case catalog.FieldLongText:
		fr.Rules = append(fr.Rules, RuleString)
	case catalog.FieldEmail:
		fr.Rules = append(fr.Rules, RuleString, RuleMax255, RuleEmail)
	case catalog.FieldEnum:
		fr.Rules = append(fr.Rules, RuleString, RuleIn)
		fr.Options = f.Settings.Options
	case catalog.FieldInteger:
		fr.Rules = append(fr.Rules, RuleInteger)
	case catalog.FieldBoolean:
		fr.Rules = append(fr.Rules, RuleBoolean)
	case catalog.FieldDatetime:
		fr.Rules = append(fr.Rules, RuleDate)
	case catalog.FieldJSON:
		fr.Rules = append(fr.Rules, RuleArray)
	case catalog.FieldComponent:
		fr.Rules = append(fr.Rules, RuleObject, RuleComponent)
		fr.ComponentID = f.Settings.RelatedContentTypeID
	case catalog.FieldDynamicZone:
		fr.Rules = append(fr.Rules, RuleArray, RuleDynamicZone)
		fr.AllowedComponentIDs = f.Settings.AllowedComponentIDs
	case catalog.FieldMedia:
		fr.Key = core.ForeignColumn(f.Name)
		fr.Rules = append(fr.Rules, RuleIdentifier)
	case catalog.FieldRelation:
		if f.Settings.Multiple {
			fr.Rules = append(fr.Rules, RuleArray, RuleIdentifiers)
		} else {
			fr.Key = core.ForeignColumn(f.Name)
			fr.Rules = append(fr.Rules, RuleIdentifier)
		}
	}
	if f.Settings.Unique && ct.HasTable() && f.Column() != "" {
		fr.Rules = append(fr.Rules, RuleUnique)
		fr.Table = ct.Table
		fr.Column = f.Column()
		fr.ExceptID = exceptID
	}
	return fr
}
