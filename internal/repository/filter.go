package repository

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Filter accumulates WHERE predicates written with ? placeholders.
// Build expands slice arguments and rebinds to the postgres $n form.
type Filter struct {
	clauses []string
	args    []any
}

// Where appends a predicate; every ? in clause consumes one argument.
func (f *Filter) Where(clause string, args ...any) *Filter {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, args...)
	return f
}

// WhereIf appends the predicate only when cond holds.
func (f *Filter) WhereIf(cond bool, clause string, args ...any) *Filter {
	if cond {
		f.Where(clause, args...)
	}
	return f
}

func (f *Filter) Empty() bool { return len(f.clauses) == 0 }

// Build renders base followed by the predicates, the suffix (ORDER BY,
// LIMIT) and returns the postgres query with its arguments.
func (f *Filter) Build(base, suffix string, suffixArgs ...any) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(base)
	if len(f.clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(f.clauses, " AND "))
	}
	if suffix != "" {
		sb.WriteString(" ")
		sb.WriteString(suffix)
	}

	args := append(append([]any{}, f.args...), suffixArgs...)
	query, args, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand filter: %w", err)
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// escapeLike escapes LIKE metacharacters in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
