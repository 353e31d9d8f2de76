// Package query translates declarative query parameters into entity queries.
//
// The wire format is
//
//	filters[<field>]=<value>                 implicit $eq
//	filters[<field>][<operator>]=<value>
//	filters[<field>][$in][]=<value>          repeatable, also comma separated
//	sort=<field>:<asc|desc> or sort[]=...    repeatable, also comma separated
//	fields[]=<field>                         repeatable
//	populate=* or populate[]=<relation>      repeatable
//	status=draft|published
//	locale=<code>                            default "en"
//	page, per_page                           per_page defaults to 10, capped at 100
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/relabs-tech/kurbisio-cms/core"
)

// Operator is a filter operator
type Operator string

// all recognized operators
const (
	OpEq          Operator = "$eq"
	OpNe          Operator = "$ne"
	OpLt          Operator = "$lt"
	OpLte         Operator = "$lte"
	OpGt          Operator = "$gt"
	OpGte         Operator = "$gte"
	OpContains    Operator = "$contains"
	OpNotContains Operator = "$notContains"
	OpIn          Operator = "$in"
	OpNotIn       Operator = "$notIn"
	OpNull        Operator = "$null"
	OpNotNull     Operator = "$notNull"
)

// Recognized returns true for operators the translator knows
func (o Operator) Recognized() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpContains, OpNotContains, OpIn, OpNotIn, OpNull, OpNotNull:
		return true
	}
	return false
}

// Condition is one operator applied to a field
type Condition struct {
	Operator Operator
	Values   []string
}

// Value returns the first value of the condition
func (c Condition) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

// Filter is the set of conditions on one field
type Filter struct {
	Field      string
	Conditions []Condition
}

// Populate selects the relations to load. All means "*", which leaves population
// to the default behavior.
type Populate struct {
	All       bool
	Relations []string
}

// Status values
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Pagination defaults
const (
	DefaultPerPage = 10
	MaxPerPage     = 100
	DefaultLocale  = "en"
)

// Params is the declarative query
type Params struct {
	Filters  []Filter
	Sort     []string
	Fields   []string
	Populate Populate
	Status   string
	Locale   string
	Page     int
	PerPage  int
}

// ParseValues reads Params from url query values
func ParseValues(values url.Values) (Params, error) {
	p := Params{
		Locale:  DefaultLocale,
		Page:    1,
		PerPage: DefaultPerPage,
	}

	// bracketed keys like sort[0] and sort[1] are separate map entries; visit keys in order
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	filters := map[string]map[Operator][]string{}
	for _, key := range keys {
		vals := values[key]
		name, path, ok := splitKey(key)
		if !ok {
			return p, fmt.Errorf("malformed parameter %q: %w", key, core.ErrInvalidQuery)
		}
		switch name {
		case "filters":
			if len(path) == 0 || path[0] == "" {
				return p, fmt.Errorf("filter without field in %q: %w", key, core.ErrInvalidQuery)
			}
			field := path[0]
			op := OpEq
			if len(path) > 1 {
				op = Operator(path[1])
			}
			if filters[field] == nil {
				filters[field] = map[Operator][]string{}
			}
			for _, v := range vals {
				if op == OpIn || op == OpNotIn {
					filters[field][op] = append(filters[field][op], splitList(v)...)
				} else {
					filters[field][op] = append(filters[field][op], v)
				}
			}
		case "sort":
			for _, v := range vals {
				p.Sort = append(p.Sort, splitList(v)...)
			}
		case "fields":
			for _, v := range vals {
				p.Fields = append(p.Fields, splitList(v)...)
			}
		case "populate":
			for _, v := range vals {
				for _, r := range splitList(v) {
					if r == "*" {
						p.Populate.All = true
						continue
					}
					p.Populate.Relations = append(p.Populate.Relations, r)
				}
			}
		case "status":
			p.Status = values.Get(key)
			if p.Status != "" && p.Status != StatusDraft && p.Status != StatusPublished {
				return p, fmt.Errorf("status must be draft or published: %w", core.ErrInvalidQuery)
			}
		case "locale":
			if l := strings.TrimSpace(values.Get(key)); l != "" {
				p.Locale = l
			}
		case "page":
			n, err := strconv.Atoi(values.Get(key))
			if err != nil {
				return p, fmt.Errorf("page must be an integer: %w", core.ErrInvalidQuery)
			}
			if n > 1 {
				p.Page = n
			}
		case "per_page":
			n, err := strconv.Atoi(values.Get(key))
			if err != nil {
				return p, fmt.Errorf("per_page must be an integer: %w", core.ErrInvalidQuery)
			}
			p.PerPage = clamp(n, 1, MaxPerPage)
		}
	}

	fields := make([]string, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		filter := Filter{Field: f}
		ops := make([]string, 0, len(filters[f]))
		for op := range filters[f] {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		for _, op := range ops {
			filter.Conditions = append(filter.Conditions, Condition{Operator: Operator(op), Values: filters[f][Operator(op)]})
		}
		p.Filters = append(p.Filters, filter)
	}
	return p, nil
}

// splitKey splits "filters[views][$gt]" into "filters" and ["views", "$gt"].
// Empty brackets as in "sort[]" are dropped, indexed brackets as in "sort[0]" too.
// keyLess orders keys segment by segment. Numeric segments compare as numbers, so
// sort[2] comes before sort[10].
func keyLess(a, b string) bool {
	sa, sb := keySegments(a), keySegments(b)
	for i := 0; i < len(sa) && i < len(sb); i++ {
		if sa[i] == sb[i] {
			continue
		}
		na, errA := strconv.Atoi(sa[i])
		nb, errB := strconv.Atoi(sb[i])
		if errA == nil && errB == nil {
			return na < nb
		}
		return sa[i] < sb[i]
	}
	if len(sa) != len(sb) {
		return len(sa) < len(sb)
	}
	return a < b
}

func keySegments(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool { return r == '[' || r == ']' })
}

func splitKey(key string) (string, []string, bool) {
	i := strings.IndexByte(key, '[')
	if i < 0 {
		return key, nil, true
	}
	name := key[:i]
	rest := key[i:]
	var path []string
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, false
		}
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			return "", nil, false
		}
		segment := rest[1:j]
		rest = rest[j+1:]
		if segment == "" {
			continue
		}
		if _, err := strconv.Atoi(segment); err == nil && name != "filters" {
			continue
		}
		if _, err := strconv.Atoi(segment); err == nil && len(path) >= 2 {
			continue
		}
		path = append(path, segment)
	}
	return name, path, true
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
