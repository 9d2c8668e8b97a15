package repository

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/models"
)

// Cond is one filter term. Implementations render themselves against the
// shared argument list, so positional placeholders never collide.
type Cond interface {
	render(q *Query) string
}

type eqCond struct {
	col string
	val any
}

func (c eqCond) render(q *Query) string { return c.col + " = " + q.arg(c.val) }

type inCond struct {
	col  string
	vals []string
}

func (c inCond) render(q *Query) string { return c.col + " = ANY(" + q.arg(c.vals) + ")" }

type rawCond struct {
	sql string
	val any
}

func (c rawCond) render(q *Query) string {
	return fmt.Sprintf(c.sql, q.arg(c.val))
}

// Eq matches col = val.
func Eq(col string, val any) Cond { return eqCond{col, val} }

// In matches col against any of vals. An empty list is skipped by Where.
func In(col string, vals []string) Cond { return inCond{col, vals} }

// Raw renders sqlFmt with the placeholder for val in place of each %s or %[1]s verb.
func Raw(sqlFmt string, val any) Cond { return rawCond{sqlFmt, val} }

// Query assembles a SELECT with optional filters and keyset pagination on id.
type Query struct {
	base  string
	conds []string
	args  []any
	order string
	limit int
}

// Select starts a query from a SELECT ... FROM ... clause without WHERE.
func Select(base string) *Query {
	return &Query{base: base}
}

func (q *Query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// Where adds conditions joined by AND. Nil conditions and empty In lists are
// ignored so callers can pass optional filters unconditionally.
func (q *Query) Where(conds ...Cond) *Query {
	for _, c := range conds {
		if c == nil {
			continue
		}
		if in, ok := c.(inCond); ok && len(in.vals) == 0 {
			continue
		}
		q.conds = append(q.conds, c.render(q))
	}
	return q
}

// WhereIf adds c only when ok is true.
func (q *Query) WhereIf(ok bool, c Cond) *Query {
	if ok {
		q.Where(c)
	}
	return q
}

// Paginate orders by id descending and fetches one extra row so the caller
// can tell whether another page exists.
func (q *Query) Paginate(idCol string, p models.Page) *Query {
	p = p.Normalize()
	if p.Cursor != nil {
		q.conds = append(q.conds, idCol+" < "+q.arg(*p.Cursor))
	}
	q.order = idCol + " DESC"
	q.limit = p.Limit + 1
	return q
}

// OrderBy sets an explicit ordering for unpaginated queries.
func (q *Query) OrderBy(order string) *Query {
	q.order = order
	return q
}

// SQL returns the statement and its arguments.
func (q *Query) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString(q.base)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	if q.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.order)
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	}
	return b.String(), q.args
}

func optionalEq(col string, id *uuid.UUID) Cond {
	if id == nil {
		return nil
	}
	return Eq(col, *id)
}
