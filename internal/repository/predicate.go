package repository

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
)

var sqlOperators = map[domain.Operator]string{
	domain.OpEq:  "=",
	domain.OpNe:  "<>",
	domain.OpGte: ">=",
	domain.OpLte: "<=",
}

// whereBuilder accumulates SQL conditions and their positional arguments.
// Column names come from the closed domain.Field set; values are always
// bound as parameters.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) metadata(p *domain.MetadataPredicate) error {
	if p == nil {
		return nil
	}
	for _, c := range p.Conditions {
		if !c.Field.IsValid() {
			return domain.InvalidFilter("unknown field %q", c.Field)
		}
		op, ok := sqlOperators[c.Op]
		if !ok {
			return domain.InvalidFilter("unknown operator %q", c.Op)
		}
		param := b.bind(c.Value)
		if c.Field.IsNumeric() {
			param += "::double precision"
		}
		b.clauses = append(b.clauses, fmt.Sprintf("%s %s %s", c.Field, op, param))
	}
	return nil
}

func (b *whereBuilder) content(p *domain.ContentPredicate) {
	if p == nil || len(p.Substrings) == 0 {
		return
	}
	ors := make([]string, len(p.Substrings))
	for i, s := range p.Substrings {
		ors[i] = fmt.Sprintf("strpos(text, %s) > 0", b.bind(s))
	}
	b.clauses = append(b.clauses, "("+strings.Join(ors, " OR ")+")")
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}
