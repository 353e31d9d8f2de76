package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jinzhu/inflection"
	"github.com/stoewer/go-strcase"
)

// Operation represents a record operation, one of Create, Read, Update, Delete, List, Publish
type Operation string

// all supported record operations
const (
	OperationCreate  Operation = "create"
	OperationRead    Operation = "read"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationList    Operation = "list"
	OperationPublish Operation = "publish"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList, OperationPublish:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Event returns the event name for a content operation, e.g. "content.create"
func (o Operation) Event() string {
	return "content." + string(o)
}

// Slug returns the URL key of a content type name. Spaces are dropped before the name
// is snake cased, so "BlogPost" and "Blog Post" both become "blog_post".
//
// Slug, TableName and Pivot are the only place where names are derived. The schema
// manager and the dynamic entity both go through them, so they always agree on
// which table belongs to which type.
func Slug(name string) string {
	return strcase.SnakeCase(strings.Join(strings.Fields(name), ""))
}

// TableName returns the physical table name of a content type name. "BlogPost" becomes "blog_posts".
func TableName(name string) string {
	return Plural(Slug(name))
}

// Plural returns the plural form of the passed singular string.
func Plural(singular string) string {
	return inflection.Plural(singular)
}

// Singular returns the singular form of the passed plural string.
func Singular(plural string) string {
	return inflection.Singular(plural)
}

// ForeignColumn returns the column holding a to-one reference for field name
func ForeignColumn(field string) string {
	return field + "_id"
}

// PivotNaming describes the join table between two content types
type PivotNaming struct {
	Table         string
	LocalColumn   string
	RelatedColumn string
}

// Pivot returns the deterministic pivot naming for a many-to-many relation between the type
// with slug localSlug and the type with slug relatedSlug. The table name does not depend on
// which side declares the relation: "post" and "tag" always yield "post_tag".
func Pivot(localSlug, relatedSlug string) PivotNaming {
	local := Singular(localSlug)
	related := Singular(relatedSlug)
	pair := []string{local, related}
	sort.Strings(pair)
	p := PivotNaming{
		Table:         strings.Join(pair, "_"),
		LocalColumn:   ForeignColumn(local),
		RelatedColumn: ForeignColumn(related),
	}
	if local == related {
		p.RelatedColumn = ForeignColumn("related_" + related)
	}
	return p
}
