package storage

import "github.com/cortexkernel/datalogcore/internal/syntax"

// FactSet is a per-relation insertion-ordered, deduplicated set of shared
// fact references. Deduplication is by value equality of the tuple;
// reference identity does not matter for membership.
type FactSet struct {
	order []*Fact
	index map[string]*Fact
}

// NewFactSet builds an empty fact set.
func NewFactSet() *FactSet {
	return &FactSet{index: make(map[string]*Fact)}
}

// Insert adds a fact if its value tuple is new, returning whether it was
// new. Insertion is idempotent.
func (fs *FactSet) Insert(f *Fact) bool {
	key := f.Key()
	if _, ok := fs.index[key]; ok {
		return false
	}
	fs.index[key] = f
	fs.order = append(fs.order, f)
	return true
}

// InsertAll bulk-inserts, idempotent per fact.
func (fs *FactSet) InsertAll(facts []*Fact) {
	for _, f := range facts {
		fs.Insert(f)
	}
}

// Contains reports membership by value.
func (fs *FactSet) Contains(f *Fact) bool {
	_, ok := fs.index[f.Key()]
	return ok
}

// Facts returns the facts in insertion order. The returned slice must
// not be mutated by the caller.
func (fs *FactSet) Facts() []*Fact { return fs.order }

// Len is the number of distinct facts held.
func (fs *FactSet) Len() int { return len(fs.order) }

// RelationStorage maps predicate symbol to fact storage. It preallocates
// an empty fact set for every predicate mentioned in any head or body
// across a program (including DRed- and magic-mangled variants), so
// every lookup is total.
type RelationStorage struct {
	relations map[string]*FactSet
}

// NewRelationStorage builds storage preseeded with an empty set for every
// symbol in symbols.
func NewRelationStorage(symbols []string) *RelationStorage {
	rs := &RelationStorage{relations: make(map[string]*FactSet, len(symbols))}
	for _, s := range symbols {
		rs.ensure(s)
	}
	return rs
}

func (rs *RelationStorage) ensure(symbol string) *FactSet {
	fs, ok := rs.relations[symbol]
	if !ok {
		fs = NewFactSet()
		rs.relations[symbol] = fs
	}
	return fs
}

// Insert adds a fact to the named relation, creating the relation's
// storage on demand, and reports whether it was new.
func (rs *RelationStorage) Insert(symbol string, f *Fact) bool {
	return rs.ensure(symbol).Insert(f)
}

// InsertAll bulk-inserts into the named relation.
func (rs *RelationStorage) InsertAll(symbol string, facts []*Fact) {
	rs.ensure(symbol).InsertAll(facts)
}

// Remove deletes a fact from the named relation by value, reporting
// whether it had been present.
func (rs *RelationStorage) Remove(symbol string, f *Fact) bool {
	fs, ok := rs.relations[symbol]
	if !ok {
		return false
	}
	key := f.Key()
	if _, ok := fs.index[key]; !ok {
		return false
	}
	delete(fs.index, key)
	for i, existing := range fs.order {
		if existing.Key() == key {
			fs.order = append(fs.order[:i], fs.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports membership in the named relation.
func (rs *RelationStorage) Contains(symbol string, f *Fact) bool {
	fs, ok := rs.relations[symbol]
	if !ok {
		return false
	}
	return fs.Contains(f)
}

// GetRelation returns the fact set for symbol, creating it empty on
// demand (storage is total).
func (rs *RelationStorage) GetRelation(symbol string) *FactSet {
	return rs.ensure(symbol)
}

// Clear empties the named relation without removing it from storage.
func (rs *RelationStorage) Clear(symbol string) {
	rs.relations[symbol] = NewFactSet()
}

// Len returns the number of facts across every relation whose symbol is
// not reserved (see syntax.HasReservedSymbol): delete_/rederive_/magic_
// and adornment-suffixed relations are transient bookkeeping and do not count towards the processed fact
// total.
func (rs *RelationStorage) Len() int {
	total := 0
	for symbol, fs := range rs.relations {
		if syntax.HasReservedSymbol(symbol) {
			continue
		}
		total += fs.Len()
	}
	return total
}

// TotalLen returns the number of facts across every relation, mangled
// scratch relations included. The semi-naive driver's convergence check
// uses this: when it evaluates a DRed overdeletion or rederivation
// program, all growth lands in delete_/rederive_ relations, which Len
// deliberately ignores.
func (rs *RelationStorage) TotalLen() int {
	total := 0
	for _, fs := range rs.relations {
		total += fs.Len()
	}
	return total
}

// IsEmpty reports whether every non-mangled relation is empty.
func (rs *RelationStorage) IsEmpty() bool { return rs.Len() == 0 }

// DrainAllRelations yields and empties every relation, in unspecified
// symbol order (callers that need determinism should sort the returned
// symbols themselves).
func (rs *RelationStorage) DrainAllRelations() map[string][]*Fact {
	out := make(map[string][]*Fact, len(rs.relations))
	for symbol, fs := range rs.relations {
		out[symbol] = fs.Facts()
		rs.relations[symbol] = NewFactSet()
	}
	return out
}

// Symbols returns every relation symbol currently allocated in storage.
func (rs *RelationStorage) Symbols() []string {
	out := make([]string, 0, len(rs.relations))
	for s := range rs.relations {
		out = append(out, s)
	}
	return out
}
