// Package syntax defines the data model shared by every evaluation
// strategy: values, terms, atoms, rules, programs, and queries.
package syntax

import (
	"fmt"
	"hash/fnv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindStr ValueKind = iota
	KindInt
	KindBool
)

// Value is a totally ordered, hashable tagged union over string, unsigned
// integer, and bool. The zero Value is the empty string.
type Value struct {
	kind ValueKind
	str  string
	num  uint64
	b    bool
}

// Str builds a string-valued Value.
func Str(s string) Value { return Value{kind: KindStr, str: s} }

// Int builds an integer-valued Value.
func Int(n uint64) Value { return Value{kind: KindInt, num: n} }

// Bool builds a bool-valued Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

// AsStr returns the string payload; valid only when Kind() == KindStr.
func (v Value) AsStr() string { return v.str }

// AsInt returns the integer payload; valid only when Kind() == KindInt.
func (v Value) AsInt() uint64 { return v.num }

// AsBool returns the bool payload; valid only when Kind() == KindBool.
func (v Value) AsBool() bool { return v.b }

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindStr:
		return v.str == o.str
	case KindInt:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	}
	return false
}

// Less provides the total order used for canonical sorting: ordered first
// by kind, then by payload.
func (v Value) Less(o Value) bool {
	if v.kind != o.kind {
		return v.kind < o.kind
	}
	switch v.kind {
	case KindStr:
		return v.str < o.str
	case KindInt:
		return v.num < o.num
	case KindBool:
		return !v.b && o.b
	}
	return false
}

// String renders the value for diagnostics and mangled-name construction.
func (v Value) String() string {
	switch v.kind {
	case KindStr:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	}
	return "<invalid>"
}

// Hash64 returns an FNV-1a hash of the value's canonical encoding. No code
// in this module calls it: fact storage and index buckets key their maps
// with EncodeValues strings, the subsumptive table with query signatures.
func Hash64(v Value) uint64 {
	h := fnv.New64a()
	h.Write([]byte{byte(v.kind)})
	h.Write([]byte(v.String()))
	return h.Sum64()
}
