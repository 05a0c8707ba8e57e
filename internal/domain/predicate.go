package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison applied to a metadata field.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
)

// Condition is a single metadata term. Value is a string for text fields
// and a float64 for numeric fields.
type Condition struct {
	Field Field
	Op    Operator
	Value any
}

// NewCondition builds a condition, coercing value to the field's type.
func NewCondition(field Field, op Operator, value any) (Condition, error) {
	if !field.IsValid() {
		return Condition{}, InvalidFilter("unknown field %q", field)
	}
	switch op {
	case OpEq, OpNe, OpGte, OpLte:
	default:
		return Condition{}, InvalidFilter("unknown operator %q", op)
	}
	v, err := coerce(field, value)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: field, Op: op, Value: v}, nil
}

func Eq(field Field, value any) Condition  { return mustCondition(field, OpEq, value) }
func Ne(field Field, value any) Condition  { return mustCondition(field, OpNe, value) }
func Gte(field Field, value any) Condition { return mustCondition(field, OpGte, value) }
func Lte(field Field, value any) Condition { return mustCondition(field, OpLte, value) }

func mustCondition(field Field, op Operator, value any) Condition {
	c, err := NewCondition(field, op, value)
	if err != nil {
		panic(err)
	}
	return c
}

func coerce(field Field, value any) (any, error) {
	if !field.IsNumeric() {
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return nil, InvalidFilter("field %q expects a string, got %T", field, value)
		}
	}

	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, InvalidFilter("field %q expects a number, got %q", field, v)
		}
		return f, nil
	default:
		return nil, InvalidFilter("field %q expects a number, got %T", field, value)
	}
}

// Match evaluates the condition against a record.
func (c Condition) Match(r *ChunkRecord) bool {
	actual, ok := r.Value(c.Field)
	if !ok {
		return false
	}

	if c.Field.IsNumeric() {
		a, _ := actual.(float64)
		b, ok := c.Value.(float64)
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			return a == b
		case OpNe:
			return a != b
		case OpGte:
			return a >= b
		case OpLte:
			return a <= b
		}
		return false
	}

	a, _ := actual.(string)
	b, ok := c.Value.(string)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGte:
		return a >= b
	case OpLte:
		return a <= b
	}
	return false
}

// MetadataPredicate is a conjunction of conditions.
type MetadataPredicate struct {
	Conditions []Condition
}

// Where builds a predicate from conditions. It returns nil when none are given.
func Where(conds ...Condition) *MetadataPredicate {
	if len(conds) == 0 {
		return nil
	}
	return &MetadataPredicate{Conditions: conds}
}

// And returns a new predicate with the extra conditions appended. p may be nil.
func (p *MetadataPredicate) And(conds ...Condition) *MetadataPredicate {
	var all []Condition
	if p != nil {
		all = append(all, p.Conditions...)
	}
	all = append(all, conds...)
	return Where(all...)
}

// Match reports whether r satisfies every condition. A nil predicate matches everything.
func (p *MetadataPredicate) Match(r *ChunkRecord) bool {
	if p == nil {
		return true
	}
	for _, c := range p.Conditions {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// ContentPredicate matches chunk text containing any of the substrings.
type ContentPredicate struct {
	Substrings []string
}

// Match reports whether text contains at least one substring. A nil
// predicate matches everything.
func (p *ContentPredicate) Match(text string) bool {
	if p == nil || len(p.Substrings) == 0 {
		return true
	}
	for _, s := range p.Substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// ChunkQuery is a nearest-neighbour request. A nil Vector asks the store to
// embed Text itself.
type ChunkQuery struct {
	Vector   []float32
	Text     string
	N        int
	Where    *MetadataPredicate
	Contains *ContentPredicate
}

// GetRequest selects stored chunks by metadata. Limit <= 0 means no limit.
type GetRequest struct {
	Where          *MetadataPredicate
	Limit          int
	WithEmbeddings bool
}
