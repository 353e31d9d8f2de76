package entity

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

// comparison operators accepted by Where
var comparisons = map[string]bool{
	"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"like": true, "not like": true,
}

type predicate struct {
	column string
	op     string
	values []any
}

type order struct {
	column string
	desc   bool
}

// Query builds a select over the table of an entity. Deleted records are never returned.
// The first invalid call records an error which every terminal method returns.
type Query struct {
	entity  *Entity
	q       csql.Querier
	wheres  []predicate
	orders  []order
	selects []string
	with    []string
	limit   int
	offset  int
	err     error
}

// Query starts a new query on e
func (e *Entity) Query() *Query {
	return &Query{entity: e, q: e.repo.db}
}

func (q *Query) using(querier csql.Querier) *Query {
	q.q = querier
	return q
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

func (q *Query) column(column string) bool {
	if !q.entity.HasColumn(column) {
		q.fail(fmt.Errorf("unknown column %q of %s: %w", column, q.entity.Slug(), core.ErrInvalidQuery))
		return false
	}
	return true
}

// Entity returns the entity the query runs on
func (q *Query) Entity() *Entity {
	return q.entity
}

// Err returns the first error recorded while building the query
func (q *Query) Err() error {
	return q.err
}

// Where adds "column op value". op is one of =, <>, <, <=, >, >=, like, not like.
func (q *Query) Where(column, op string, value any) *Query {
	op = strings.ToLower(op)
	if !comparisons[op] {
		return q.fail(fmt.Errorf("unknown operator %q: %w", op, core.ErrInvalidQuery))
	}
	if q.column(column) {
		q.wheres = append(q.wheres, predicate{column: column, op: op, values: []any{value}})
	}
	return q
}

// WhereIn adds "column IN (values)". An empty set matches nothing.
func (q *Query) WhereIn(column string, values []any) *Query {
	if q.column(column) {
		q.wheres = append(q.wheres, predicate{column: column, op: "in", values: values})
	}
	return q
}

// WhereNotIn adds "column NOT IN (values)". An empty set excludes nothing.
func (q *Query) WhereNotIn(column string, values []any) *Query {
	if q.column(column) && len(values) > 0 {
		q.wheres = append(q.wheres, predicate{column: column, op: "not in", values: values})
	}
	return q
}

// WhereNull adds "column IS NULL"
func (q *Query) WhereNull(column string) *Query {
	if q.column(column) {
		q.wheres = append(q.wheres, predicate{column: column, op: "null"})
	}
	return q
}

// WhereNotNull adds "column IS NOT NULL"
func (q *Query) WhereNotNull(column string) *Query {
	if q.column(column) {
		q.wheres = append(q.wheres, predicate{column: column, op: "not null"})
	}
	return q
}

// Published restricts the query to records with a publish timestamp which is not after now
func (q *Query) Published(now time.Time) *Query {
	return q.WhereNotNull("published_at").Where("published_at", "<=", now)
}

// OrderBy appends a sort key
func (q *Query) OrderBy(column string, desc bool) *Query {
	if q.column(column) {
		q.orders = append(q.orders, order{column: column, desc: desc})
	}
	return q
}

// Select restricts the returned columns. The identifier is always returned.
func (q *Query) Select(columns ...string) *Query {
	if len(columns) == 0 {
		return q
	}
	q.selects = []string{"id"}
	for _, c := range columns {
		if c == "id" || !q.column(c) {
			continue
		}
		q.selects = append(q.selects, c)
	}
	return q
}

// With eagerly loads the named relations on every returned record
func (q *Query) With(relations ...string) *Query {
	q.with = append(q.with, relations...)
	return q
}

// Limit limits the number of returned records
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n records
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// selected returns the columns to read, in table order
func (q *Query) selected() []string {
	if len(q.selects) == 0 {
		return q.entity.Columns()
	}
	want := map[string]bool{}
	for _, c := range q.selects {
		want[c] = true
	}
	// a to-one relation can only be populated from its foreign column
	for _, name := range q.with {
		if f, ok := q.entity.Type.Field(name); ok && f.IsForeign() {
			want[f.Column()] = true
		}
	}
	columns := []string{}
	for _, c := range q.entity.columns {
		if want[c] {
			columns = append(columns, c)
		}
	}
	return columns
}

func (q *Query) where(args *[]any) string {
	param := func(v any) string {
		*args = append(*args, v)
		return "$" + strconv.Itoa(len(*args))
	}
	clauses := []string{"deleted_at IS NULL"}
	for _, p := range q.wheres {
		col := pq.QuoteIdentifier(p.column)
		switch p.op {
		case "null":
			clauses = append(clauses, col+" IS NULL")
		case "not null":
			clauses = append(clauses, col+" IS NOT NULL")
		case "like", "not like":
			clauses = append(clauses, "CAST("+col+" AS text) "+strings.ToUpper(p.op)+" "+param(p.values[0]))
		case "in", "not in":
			if len(p.values) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			params := make([]string, len(p.values))
			for i, v := range p.values {
				params[i] = param(v)
			}
			clauses = append(clauses, col+" "+strings.ToUpper(p.op)+" ("+strings.Join(params, ", ")+")")
		default:
			clauses = append(clauses, col+" "+p.op+" "+param(p.values[0]))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// SQL returns the select statement and its parameters
func (q *Query) SQL() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	columns := q.selected()
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	args := []any{}
	sqlQuery := "SELECT " + strings.Join(quoted, ", ") + " FROM " + q.entity.table() + q.where(&args)
	if len(q.orders) > 0 {
		keys := make([]string, len(q.orders))
		for i, o := range q.orders {
			keys[i] = pq.QuoteIdentifier(o.column) + " ASC"
			if o.desc {
				keys[i] = pq.QuoteIdentifier(o.column) + " DESC"
			}
		}
		sqlQuery += " ORDER BY " + strings.Join(keys, ", ")
	}
	if q.limit > 0 {
		sqlQuery += " LIMIT " + strconv.Itoa(q.limit)
	}
	if q.offset > 0 {
		sqlQuery += " OFFSET " + strconv.Itoa(q.offset)
	}
	return sqlQuery + ";", args, nil
}

// Get runs the query
func (q *Query) Get(ctx context.Context) ([]*Record, error) {
	sqlQuery, args, err := q.SQL()
	if err != nil {
		return nil, err
	}
	columns := q.selected()
	rows, err := q.q.QueryContext(ctx, sqlQuery, args...)
	if csql.IsDataException(err) {
		return nil, fmt.Errorf("%v: %w", err, core.ErrInvalidQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.entity.Slug(), err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		r, err := q.entity.scan(rows, columns)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		if csql.IsDataException(err) {
			return nil, fmt.Errorf("%v: %w", err, core.ErrInvalidQuery)
		}
		return nil, err
	}
	if len(q.with) > 0 && len(records) > 0 {
		if err := q.entity.populate(ctx, q.q, records, q.with); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// First returns the first record or nil if there is none
func (q *Query) First(ctx context.Context) (*Record, error) {
	records, err := q.Limit(1).Get(ctx)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Count returns the number of matching records, ignoring order, limit and offset
func (q *Query) Count(ctx context.Context) (int, error) {
	if q.err != nil {
		return 0, q.err
	}
	args := []any{}
	var count int
	err := q.q.QueryRowContext(ctx, "SELECT count(*) FROM "+q.entity.table()+q.where(&args)+";", args...).Scan(&count)
	if csql.IsDataException(err) {
		return 0, fmt.Errorf("%v: %w", err, core.ErrInvalidQuery)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.entity.Slug(), err)
	}
	return count, nil
}

// Page is one page of records
type Page struct {
	Records     []*Record
	CurrentPage int
	TotalPages  int
	TotalItems  int
	PerPage     int
}

// Paginate returns page (1-based) with perPage records per page
func (q *Query) Paginate(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	records, err := q.Limit(perPage).Offset((page - 1) * perPage).Get(ctx)
	if err != nil {
		return nil, err
	}
	pages := int(math.Ceil(float64(total) / float64(perPage)))
	if pages < 1 {
		pages = 1
	}
	return &Page{
		Records:     records,
		CurrentPage: page,
		TotalPages:  pages,
		TotalItems:  total,
		PerPage:     perPage,
	}, nil
}
