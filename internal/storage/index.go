package storage

import (
	"fmt"
	"strings"

	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// Ephemeral is either a reference to a single base fact or a join
// product: an ordered list of fact references representing a partially
// materialized multi-way join, flattened by concatenation on projection.
type Ephemeral struct {
	Refs []*Fact
}

// FactRef wraps a single base fact as an ephemeral value.
func FactRef(f *Fact) Ephemeral { return Ephemeral{Refs: []*Fact{f}} }

// JoinProduct wraps an ordered list of fact references as one ephemeral
// join-product value.
func JoinProduct(refs ...*Fact) Ephemeral { return Ephemeral{Refs: refs} }

// Concat builds the join product formed by concatenating two ephemeral
// values' underlying fact references, preserving left-then-right order.
func Concat(left, right Ephemeral) Ephemeral {
	refs := make([]*Fact, 0, len(left.Refs)+len(right.Refs))
	refs = append(refs, left.Refs...)
	refs = append(refs, right.Refs...)
	return Ephemeral{Refs: refs}
}

// Flatten concatenates every underlying fact's values into one flat tuple,
// used by the terminal Project instruction.
func (e Ephemeral) Flatten() []syntax.Value {
	var out []syntax.Value
	for _, f := range e.Refs {
		out = append(out, f.Values...)
	}
	return out
}

// Column returns the value at a flattened column index, walking the
// underlying fact references by cumulative length.
func (e Ephemeral) Column(i int) syntax.Value {
	for _, f := range e.Refs {
		if i < len(f.Values) {
			return f.Values[i]
		}
		i -= len(f.Values)
	}
	panic(fmt.Sprintf("storage: column %d out of range for ephemeral of width %d", i, e.width()))
}

func (e Ephemeral) width() int {
	n := 0
	for _, f := range e.Refs {
		n += len(f.Values)
	}
	return n
}

func keySignature(columns []int) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", c)
	}
	return b.String()
}

func bucketKey(vals []syntax.Value) string { return syntax.EncodeValues(vals) }

// hashBucket partitions its entries exactly like the enclosing
// IndexStorage partitions a relation's facts: innerEntries holds what was
// known before the current iteration, diffEntries holds what arrived
// during it. Promote merges diffEntries into innerEntries, mirroring the
// relation-level Promote.
type hashBucket struct {
	columns      []int
	innerEntries map[string][]Ephemeral
	diffEntries  map[string][]Ephemeral
}

func newHashBucket(columns []int) *hashBucket {
	return &hashBucket{
		columns:      columns,
		innerEntries: make(map[string][]Ephemeral),
		diffEntries:  make(map[string][]Ephemeral),
	}
}

// IndexStorage holds the ephemeral state used during one semi-naive run:
// per-relation "inner" (facts known before the current iteration) and
// "diff" (facts newly derived in the previous iteration) sets, plus hash
// indices keyed by (relation, join-key columns), themselves partitioned
// the same way so a Join can probe strictly the inner or strictly the
// diff side of its right operand.
type IndexStorage struct {
	inner   map[string][]Ephemeral
	diff    map[string][]Ephemeral
	indices map[string]map[string]*hashBucket // relation -> column-signature -> bucket
	ran     map[string]struct{}               // derived relations produced this pass
}

// NewIndexStorage builds empty index storage.
func NewIndexStorage() *IndexStorage {
	return &IndexStorage{
		inner:   make(map[string][]Ephemeral),
		diff:    make(map[string][]Ephemeral),
		indices: make(map[string]map[string]*hashBucket),
		ran:     make(map[string]struct{}),
	}
}

// MarkEvaluated records that the named derived relation (a Select or
// Join output) has been produced during the current pass, returning
// false if it already had been. Several rules can share an intermediate
// relation (identical body prefixes compile to identical mangled names);
// the mark keeps the shared relation from being recomputed — and its
// diff from being double-appended — within one pass. Promote resets the
// marks, so every intermediate is recomputed against the next
// iteration's deltas.
func (ix *IndexStorage) MarkEvaluated(name string) bool {
	if _, ok := ix.ran[name]; ok {
		return false
	}
	ix.ran[name] = struct{}{}
	return true
}

// AddIndex registers an empty hash bucket for relation keyed by columns,
// a no-op if that (relation, columns) pair is already registered.
func (ix *IndexStorage) AddIndex(relation string, columns []int) {
	sig := keySignature(columns)
	byRel, ok := ix.indices[relation]
	if !ok {
		byRel = make(map[string]*hashBucket)
		ix.indices[relation] = byRel
	}
	if _, ok := byRel[sig]; ok {
		return
	}
	byRel[sig] = newHashBucket(columns)
}

// HasDiff reports whether relation has ever been seeded, used by the
// evaluator's Move instruction to decide whether to (re)load it. Once
// seeded the key persists (possibly with an empty slice) for the life of
// the IndexStorage, so this check fires at most once per relation.
func (ix *IndexStorage) HasDiff(relation string) bool {
	_, ok := ix.diff[relation]
	return ok
}

// Inner returns the current inner set for relation.
func (ix *IndexStorage) Inner(relation string) []Ephemeral { return ix.inner[relation] }

// Diff returns the current diff set for relation.
func (ix *IndexStorage) Diff(relation string) []Ephemeral { return ix.diff[relation] }

// BorrowAll appends facts to the diff entry for relation (creating it if
// absent, so subsequent HasDiff calls see it as seeded) and feeds every
// hash index registered for that relation's diff-side buckets.
func (ix *IndexStorage) BorrowAll(relation string, facts []Ephemeral) {
	ix.diff[relation] = append(ix.diff[relation], facts...)
	for _, bucket := range ix.indices[relation] {
		for _, e := range facts {
			key := bucketKey(columnsOf(e, bucket.columns))
			bucket.diffEntries[key] = append(bucket.diffEntries[key], e)
		}
	}
}

func columnsOf(e Ephemeral, columns []int) []syntax.Value {
	out := make([]syntax.Value, len(columns))
	for i, c := range columns {
		out[i] = e.Column(c)
	}
	return out
}

// Promote moves every relation's diff into inner, and every hash
// bucket's diffEntries into innerEntries, leaving diff (and diffEntries)
// present but empty — ready for the next semi-naive iteration to borrow
// into, while HasDiff continues to report true.
func (ix *IndexStorage) Promote() {
	for relation, vals := range ix.diff {
		ix.inner[relation] = append(ix.inner[relation], vals...)
		ix.diff[relation] = ix.diff[relation][:0]
	}
	for _, byRel := range ix.indices {
		for _, bucket := range byRel {
			for key, vals := range bucket.diffEntries {
				bucket.innerEntries[key] = append(bucket.innerEntries[key], vals...)
			}
			bucket.diffEntries = make(map[string][]Ephemeral)
		}
	}
	ix.ran = make(map[string]struct{})
}

// Probe performs a constant-expected-time lookup against the hash index
// registered for (relation, columns), returning the diff-side or
// inner-side matches for key, whichever wantDiff selects. Probing an
// unregistered index is a program-construction bug, not a runtime
// condition; it panics rather than silently returning nothing.
func (ix *IndexStorage) Probe(relation string, columns []int, key []syntax.Value, wantDiff bool) []Ephemeral {
	byRel, ok := ix.indices[relation]
	if !ok {
		panic(fmt.Sprintf("storage: no hash index registered for relation %q", relation))
	}
	bucket, ok := byRel[keySignature(columns)]
	if !ok {
		panic(fmt.Sprintf("storage: no hash index registered for relation %q columns %v", relation, columns))
	}
	k := bucketKey(key)
	if wantDiff {
		return bucket.diffEntries[k]
	}
	return bucket.innerEntries[k]
}
