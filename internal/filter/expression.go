// Package filter builds the server-side filter and sort expressions understood
// by the analytics API and re-applies the same thresholds on the client.
package filter

import (
	"strconv"
	"strings"
)

// Separator joins clauses in the API's filter grammar.
const Separator = "^"

// Op is a comparison operator in the filter grammar.
type Op string

const (
	OpGTE     Op = ">="
	OpLTE     Op = "<="
	OpEq      Op = "="
	OpNotLike Op = "NOT LIKE"
)

// Clause is one predicate of a filter expression. A raw clause carries
// caller-supplied text that is passed through untouched.
type Clause struct {
	Field string
	Op    Op
	Value string
	raw   string
}

// Raw wraps text as a pass-through clause.
func Raw(text string) Clause {
	return Clause{raw: text}
}

// IsRaw reports whether c is a pass-through clause.
func (c Clause) IsRaw() bool {
	return c.raw != ""
}

// String serializes c in the API grammar. Operators are written without
// surrounding spaces: "numwords>=3", "destination_keyNOT LIKEвидео".
func (c Clause) String() string {
	if c.raw != "" {
		return c.raw
	}
	return c.Field + string(c.Op) + c.Value
}

// MinWords keeps phrases with at least n words.
func MinWords(n int) Clause {
	return Clause{Field: "numwords", Op: OpGTE, Value: strconv.Itoa(n)}
}

// MaxWSK keeps phrases whose exact frequency is at most n.
func MaxWSK(n int) Clause {
	return Clause{Field: "wsk", Op: OpLTE, Value: strconv.Itoa(n)}
}

// MaxWS keeps phrases whose broad frequency is at most n.
func MaxWS(n int) Clause {
	return Clause{Field: "ws", Op: OpLTE, Value: strconv.Itoa(n)}
}

// ExcludeWord drops phrases containing word.
func ExcludeWord(word string) Clause {
	return Clause{Field: "destination_key", Op: OpNotLike, Value: word}
}

// SafeMode drops adult content.
func SafeMode() Clause {
	return Clause{Field: "isadult", Op: OpEq, Value: "0"}
}

// Expression is an ordered conjunction of clauses.
type Expression struct {
	clauses []Clause
}

// And appends c and returns the expression for chaining.
func (e *Expression) And(c Clause) *Expression {
	e.clauses = append(e.clauses, c)
	return e
}

// Clauses returns a copy of the clauses in order.
func (e Expression) Clauses() []Clause {
	out := make([]Clause, len(e.clauses))
	copy(out, e.clauses)
	return out
}

// Len returns the number of clauses.
func (e Expression) Len() int {
	return len(e.clauses)
}

// String serializes the expression in the API grammar.
func (e Expression) String() string {
	parts := make([]string, len(e.clauses))
	for i, c := range e.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, Separator)
}

// Thresholds are the filtering parameters of a run.
type Thresholds struct {
	MinWords  int
	MaxWSK    int
	MaxWS     int // zero disables the clause
	StopWords []string
	SafeMode  bool
	Raw       string
}

// Build produces the server-side expression for t. Clause order is fixed:
// word count, exact frequency, broad frequency, one exclusion per stop
// word, adult-content exclusion, then the raw clause.
func Build(t Thresholds) Expression {
	var e Expression
	e.And(MinWords(t.MinWords)).And(MaxWSK(t.MaxWSK))
	if t.MaxWS > 0 {
		e.And(MaxWS(t.MaxWS))
	}
	for _, w := range t.StopWords {
		if w = strings.TrimSpace(w); w != "" {
			e.And(ExcludeWord(w))
		}
	}
	if t.SafeMode {
		e.And(SafeMode())
	}
	if raw := strings.TrimSpace(t.Raw); raw != "" {
		e.And(Raw(raw))
	}
	return e
}

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Sort is an ordered list of sort keys.
type Sort []SortKey

// DefaultSort ranks rare phrases first and, among equals, longer ones.
var DefaultSort = Sort{{Field: "wsk"}, {Field: "numwords", Desc: true}}

// String serializes s as "field|dir,field|dir".
func (s Sort) String() string {
	parts := make([]string, len(s))
	for i, k := range s {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		parts[i] = k.Field + "|" + dir
	}
	return strings.Join(parts, ",")
}
