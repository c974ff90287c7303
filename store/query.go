package store

import (
	"sort"

	"github.com/uptrace/bun"
)

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEq  Op = "="
	OpNeq Op = "<>"
	OpIn  Op = "IN"
)

// Filter restricts a statement to rows where Column Op Value holds.
// For OpIn, Value holds a []any.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Filter  { return Filter{Column: column, Op: OpEq, Value: v} }
func Neq(column string, v any) Filter { return Filter{Column: column, Op: OpNeq, Value: v} }

// In matches rows whose column equals any of vs. An empty list matches nothing.
func In[T any](column string, vs ...T) Filter {
	vals := make([]any, len(vs))
	for i, v := range vs {
		vals[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vals}
}

// Order sorts results by Column.
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query describes a select.
type Query struct {
	Columns []string
	Where   []Filter
	OrderBy []Order
	Limit   int
}

// Values maps column names to values for inserts and patches.
type Values map[string]any

func (v Values) columns() []string {
	cols := make([]string, 0, len(v))
	for c := range v {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// model returns v in the shape bun accepts as a map model.
func (v Values) model() *map[string]any {
	m := map[string]any(v)
	return &m
}

// whereQuery is implemented by bun's select, update and delete queries.
type whereQuery[Q any] interface {
	Where(query string, args ...any) Q
}

// applyWhere ANDs filters onto q. bun refuses updates and deletes without
// a WHERE clause, so an empty filter list becomes an always-true condition.
func applyWhere[Q whereQuery[Q]](q Q, filters []Filter) Q {
	if len(filters) == 0 {
		return q.Where("1 = 1")
	}
	for _, f := range filters {
		switch f.Op {
		case OpIn:
			vals, _ := f.Value.([]any)
			if len(vals) == 0 {
				q = q.Where("1 = 0")
				continue
			}
			q = q.Where("? IN (?)", bun.Ident(f.Column), bun.In(vals))
		case OpNeq:
			q = q.Where("? <> ?", bun.Ident(f.Column), f.Value)
		default:
			q = q.Where("? = ?", bun.Ident(f.Column), f.Value)
		}
	}
	return q
}

func tableExpr(table Table) (string, bun.Ident) {
	return "?", bun.Ident(string(table))
}

func buildSelect(db bun.IDB, table Table, q Query) *bun.SelectQuery {
	expr, ident := tableExpr(table)
	sel := db.NewSelect().TableExpr(expr, ident)
	if len(q.Columns) > 0 {
		sel = sel.Column(q.Columns...)
	} else {
		sel = sel.ColumnExpr("*")
	}
	if len(q.Where) > 0 {
		sel = applyWhere(sel, q.Where)
	}
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		sel = sel.OrderExpr("? "+dir, bun.Ident(o.Column))
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	return sel
}

func buildInsert(db bun.IDB, table Table, v Values) *bun.InsertQuery {
	expr, ident := tableExpr(table)
	return db.NewInsert().Model(v.model()).TableExpr(expr, ident)
}

// buildUpsert extends an insert with ON CONFLICT so an existing row keeps its
// conflict columns and takes every other value from v.
func buildUpsert(db bun.IDB, table Table, v Values, conflict []string) *bun.InsertQuery {
	keys := make([]bun.Ident, len(conflict))
	isKey := make(map[string]bool, len(conflict))
	for i, c := range conflict {
		keys[i] = bun.Ident(c)
		isKey[c] = true
	}
	ins := buildInsert(db, table, v)
	var sets int
	for _, c := range v.columns() {
		if isKey[c] {
			continue
		}
		ins = ins.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
		sets++
	}
	if sets == 0 {
		return ins.On("CONFLICT (?) DO NOTHING", bun.In(keys))
	}
	return ins.On("CONFLICT (?) DO UPDATE", bun.In(keys))
}

func buildUpdate(db bun.IDB, table Table, where []Filter, patch Values) *bun.UpdateQuery {
	expr, ident := tableExpr(table)
	return applyWhere(db.NewUpdate().Model(patch.model()).TableExpr(expr, ident), where)
}

func buildDelete(db bun.IDB, table Table, where []Filter) *bun.DeleteQuery {
	expr, ident := tableExpr(table)
	return applyWhere(db.NewDelete().TableExpr(expr, ident), where)
}
