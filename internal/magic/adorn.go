// Package magic implements the magic-sets program transformation: given
// a program and a bound query, it produces an equivalent program whose
// bottom-up fixpoint computes only the tuples needed to answer that
// query, by adorning predicates with their binding pattern and emitting
// magic rules that thread the query's bound positions through the
// rewritten originals.
package magic

import (
	"strings"

	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// pattern is a binding-pattern string over {'b','f'}, one character per
// argument position of the predicate it adorns.
type pattern string

func (p pattern) isBound(i int) bool { return p[i] == 'b' }

// hasAnyBound reports whether the pattern binds at least one position;
// an all-free pattern never needs a magic predicate of its own.
func (p pattern) hasAnyBound() bool { return strings.ContainsRune(string(p), 'b') }

// adornedSymbol names the rewritten-original predicate for symbol under
// pattern: `pred_<pattern>`.
func adornedSymbol(symbol string, p pattern) string {
	return symbol + syntax.AdornmentSeparator + string(p)
}

// magicSymbol names the magic predicate that drives demand for symbol
// under pattern: `magic_pred_<pattern>`.
func magicSymbol(symbol string, p pattern) string {
	return syntax.MagicPrefix + symbol + syntax.AdornmentSeparator + string(p)
}

// adornmentFromQuery derives the binding pattern a query imposes on its
// own predicate: bound wherever the query supplies a constant matcher.
func adornmentFromQuery(q syntax.Query) pattern {
	b := make([]byte, q.Arity())
	for i, opt := range q.Pattern() {
		if opt.IsSome() {
			b[i] = 'b'
		} else {
			b[i] = 'f'
		}
	}
	return pattern(b)
}

// adornmentOf computes the binding pattern an atom carries at the point
// it is reached in a left-to-right body walk: a position is bound if its
// term is a constant, or a variable already present in bound.
func adornmentOf(atom syntax.Atom, bound map[string]struct{}) pattern {
	b := make([]byte, len(atom.Terms))
	for i, t := range atom.Terms {
		switch {
		case t.IsConstant():
			b[i] = 'b'
		case t.IsVariable():
			if _, ok := bound[t.VarName()]; ok {
				b[i] = 'b'
			} else {
				b[i] = 'f'
			}
		}
	}
	return pattern(b)
}

// boundTerms returns the subset of atom's terms at p's bound positions,
// in position order — used both for a magic atom's own terms and for
// the query-derived seed tuple.
func boundTerms(terms []syntax.Term, p pattern) []syntax.Term {
	var out []syntax.Term
	for i, t := range terms {
		if p.isBound(i) {
			out = append(out, t)
		}
	}
	return out
}
