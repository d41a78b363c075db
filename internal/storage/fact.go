// Package storage holds ground facts and the ephemeral indices used
// during one semi-naive iteration.
package storage

import "github.com/cortexkernel/datalogcore/internal/syntax"

// Fact is an immutable ground tuple. It is never mutated after
// construction; every place that keeps a Fact keeps a pointer to the
// same underlying value, so sharing it across join products and indices
// is just pointer copying, never cloning.
type Fact struct {
	Values []syntax.Value
}

// NewFact builds a Fact from an ordered value tuple.
func NewFact(values ...syntax.Value) *Fact {
	return &Fact{Values: values}
}

// Key returns the canonical dedup key for the fact's values.
func (f *Fact) Key() string {
	return syntax.EncodeValues(f.Values)
}

// Arity is the number of columns in the fact.
func (f *Fact) Arity() int { return len(f.Values) }
