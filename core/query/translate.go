package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/entity"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// Options tune the translation
type Options struct {
	// Strict rejects unrecognized filter operators with core.ErrInvalidQuery.
	// By default they are ignored.
	Strict bool
}

// Apply applies p to q in the fixed order filters, sort, field projection, population.
// Status, locale and pagination are not touched, see Scope.
func Apply(ctx context.Context, q *entity.Query, p Params, opts Options) (*entity.Query, error) {
	e := q.Entity()
	if err := applyFilters(ctx, e, q, p.Filters, opts); err != nil {
		return nil, err
	}
	if err := applySort(e, q, p.Sort); err != nil {
		return nil, err
	}
	if len(p.Fields) > 0 {
		columns := []string{"id"}
		for _, f := range p.Fields {
			c, err := column(e, f)
			if err != nil {
				return nil, err
			}
			columns = append(columns, c)
		}
		q.Select(columns...)
	}
	if !p.Populate.All && len(p.Populate.Relations) > 0 {
		q.With(p.Populate.Relations...)
	}
	return q, q.Err()
}

// Scope restricts q to the visibility selected by p: published records only unless the
// draft status is requested, and the requested locale for localized types.
func Scope(q *entity.Query, p Params, now time.Time) *entity.Query {
	if p.Status != StatusDraft {
		q.Published(now)
	}
	if q.Entity().Type.IsLocalized {
		locale := p.Locale
		if locale == "" {
			locale = DefaultLocale
		}
		q.Where("locale", "=", locale)
	}
	return q
}

// column maps a field name to its column. To-one relations are filtered by their foreign column.
func column(e *entity.Entity, field string) (string, error) {
	if f, ok := e.Type.Field(field); ok {
		if c := f.Column(); c != "" {
			return c, nil
		}
		return "", fmt.Errorf("field %s has no column: %w", field, core.ErrInvalidQuery)
	}
	if e.HasColumn(field) {
		return field, nil
	}
	return "", fmt.Errorf("unknown field %q: %w", field, core.ErrInvalidQuery)
}

var comparisons = map[Operator]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

func applyFilters(ctx context.Context, e *entity.Entity, q *entity.Query, filters []Filter, opts Options) error {
	for _, f := range filters {
		col, err := column(e, f.Field)
		if err != nil {
			return err
		}
		for _, c := range f.Conditions {
			if !c.Operator.Recognized() {
				if opts.Strict {
					return fmt.Errorf("unknown operator %s on %s: %w", c.Operator, f.Field, core.ErrInvalidQuery)
				}
				logger.FromContext(ctx).Debugf("ignoring unknown operator %s on %s", c.Operator, f.Field)
				continue
			}
			switch c.Operator {
			case OpContains:
				q.Where(col, "like", "%"+escapeLike(c.Value())+"%")
			case OpNotContains:
				q.Where(col, "not like", "%"+escapeLike(c.Value())+"%")
			case OpIn:
				q.WhereIn(col, anys(c.Values))
			case OpNotIn:
				q.WhereNotIn(col, anys(c.Values))
			case OpNull, OpNotNull:
				wantNull := truthy(c.Value())
				if c.Operator == OpNotNull {
					wantNull = !wantNull
				}
				if wantNull {
					q.WhereNull(col)
				} else {
					q.WhereNotNull(col)
				}
			default:
				for _, v := range c.Values {
					q.Where(col, comparisons[c.Operator], v)
				}
			}
		}
	}
	return q.Err()
}

func applySort(e *entity.Entity, q *entity.Query, tokens []string) error {
	for _, token := range tokens {
		field, direction, _ := strings.Cut(token, ":")
		col, err := column(e, strings.TrimSpace(field))
		if err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(direction)) {
		case "", "asc":
			q.OrderBy(col, false)
		case "desc":
			q.OrderBy(col, true)
		default:
			return fmt.Errorf("invalid sort direction %q: %w", direction, core.ErrInvalidQuery)
		}
	}
	return q.Err()
}

// truthy follows the usual form conventions: 1, true, on and yes are true, anything else false
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func anys(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
