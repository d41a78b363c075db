// Package tabling implements subsumptive top-down evaluation: a demand
// for a predicate under a binding pattern is answered by recursive
// SLD-style resolution over the program's rules, with a cache keyed by
// binding pattern so a later, more specific demand can reuse a cached
// answer set that subsumes it.
package tabling

import (
	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// tableEntry is one (pattern, answers) pair. While the query that owns
// the entry is still being iterated to its fixpoint, open is true and
// facts is a lower bound on the final answer set — good enough for a
// re-entrant recursive call to make progress on, not good enough to be
// treated as complete.
type tableEntry struct {
	pattern []syntax.Option
	facts   []*storage.Fact
	open    bool
	key     string
}

// Table caches, per predicate, every binding pattern evaluated so far
// together with its answer set.
type Table struct {
	entries map[string][]tableEntry
}

// NewTable builds an empty subsumptive table.
func NewTable() *Table {
	return &Table{entries: make(map[string][]tableEntry)}
}

// Insert records pattern's completed answer set for predicate.
func (t *Table) Insert(predicate string, pattern []syntax.Option, facts []*storage.Fact) {
	t.upsert(predicate, pattern, facts, false)
}

// upsert records pattern's answer set, replacing an existing entry with
// the identical pattern (the open-entry publication path rewrites the
// same entry once per fixpoint round).
func (t *Table) upsert(predicate string, pattern []syntax.Option, facts []*storage.Fact, open bool) {
	key := querySignature(predicate, pattern)
	for i, e := range t.entries[predicate] {
		if e.key == key {
			t.entries[predicate][i].facts = facts
			t.entries[predicate][i].open = open
			return
		}
	}
	t.entries[predicate] = append(t.entries[predicate], tableEntry{
		pattern: pattern, facts: facts, open: open, key: key,
	})
}

// drop removes the entry with exactly this pattern, if present. Used
// when a query's evaluation depended on a still-open enclosing query:
// its answer set may be incomplete, so it must not outlive the call.
func (t *Table) drop(predicate string, pattern []syntax.Option) {
	key := querySignature(predicate, pattern)
	entries := t.entries[predicate]
	for i, e := range entries {
		if e.key == key {
			t.entries[predicate] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// FindSubsuming returns the first cached answer set for predicate whose
// pattern subsumes the requested pattern — every position the cached
// pattern bound matches exactly, and every position it left free may be
// anything in the request, so the cached set is not merely compatible
// but already a superset of what the request needs, restricted further
// by the caller if the request binds positions the cache entry left free.
func (t *Table) FindSubsuming(predicate string, pattern []syntax.Option) ([]*storage.Fact, bool) {
	e, ok := t.findSubsuming(predicate, pattern)
	if !ok {
		return nil, false
	}
	return e.facts, true
}

// findSubsuming prefers a completed subsuming entry over an open one, so
// a recursive descent mid-fixpoint still benefits from answers that are
// already final.
func (t *Table) findSubsuming(predicate string, pattern []syntax.Option) (tableEntry, bool) {
	var openHit tableEntry
	var sawOpen bool
	for _, e := range t.entries[predicate] {
		if !subsumes(e.pattern, pattern) {
			continue
		}
		if !e.open {
			return e, true
		}
		if !sawOpen {
			openHit, sawOpen = e, true
		}
	}
	return openHit, sawOpen
}

// subsumes reports whether every bound position of subsuming agrees with
// subsumed, and a free position in subsuming always agrees, regardless
// of subsumed's value there.
func subsumes(subsuming, subsumed []syntax.Option) bool {
	if len(subsuming) != len(subsumed) {
		return false
	}
	for i := range subsuming {
		if !subsuming[i].IsSome() {
			continue
		}
		if !subsumed[i].IsSome() || !subsuming[i].Value().Equal(subsumed[i].Value()) {
			return false
		}
	}
	return true
}

// matchesPattern reports whether values satisfies every bound position
// of pattern columnwise.
func matchesPattern(pattern []syntax.Option, values []syntax.Value) bool {
	if len(pattern) != len(values) {
		return false
	}
	for i, p := range pattern {
		if p.IsSome() && !p.Value().Equal(values[i]) {
			return false
		}
	}
	return true
}
