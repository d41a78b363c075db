package stratify

import (
	"fmt"

	"github.com/cortexkernel/datalogcore/internal/engineerrors"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// Stratum is one group of rules evaluated to a joint fixpoint before the
// next stratum begins; all predicates a stratum's rules depend on
// (through positive or negative body atoms) are fully materialized by
// the time the stratum runs.
type Stratum struct {
	Rules []syntax.Rule
}

// Strata builds the dependency graph over program's predicates (an edge
// from every body atom's predicate to its rule's head predicate, so that
// multiple rules sharing one head symbol are all accounted for — unlike
// a rule-level graph, which only sees one rule per head), computes its
// strongly connected components, and orders them so that a stratum's
// dependencies always precede it. Returns an error if any negated body
// atom's predicate lies in the same stratum as its rule's head.
func Strata(program syntax.Program) ([]Stratum, error) {
	g := newPredicateGraph()
	for _, r := range program.Rules {
		g.addNode(r.Head.Symbol)
		for _, a := range r.Body {
			g.addEdge(a.Symbol, r.Head.Symbol, !a.Sign)
		}
	}

	sccs := g.tarjan()
	// tarjan finishes a node's SCC only after every SCC reachable from it
	// (the predicates whose rules read it) has finished, so the raw order lists
	// dependents before dependencies; reverse it to get dependencies first.
	reverse(sccs)

	for _, scc := range sccs {
		if hasIntraSCCNegativeEdge(g, scc) {
			return nil, fmt.Errorf("%w: predicates %v form a cycle through a negated literal",
				engineerrors.ErrUnstratifiableNegation, scc)
		}
	}

	var strata []Stratum
	for _, scc := range sccs {
		members := make(map[string]struct{}, len(scc))
		for _, p := range scc {
			members[p] = struct{}{}
		}
		var rules []syntax.Rule
		for _, r := range program.Rules {
			if _, ok := members[r.Head.Symbol]; ok {
				rules = append(rules, r)
			}
		}
		if len(rules) == 0 {
			continue
		}
		strata = append(strata, Stratum{Rules: rules})
	}
	return strata, nil
}

func reverse(sccs [][]string) {
	for i, j := 0, len(sccs)-1; i < j; i, j = i+1, j-1 {
		sccs[i], sccs[j] = sccs[j], sccs[i]
	}
}

// Split separates a stratum's rules into the nonrecursive part (bodies
// mentioning none of the stratum's own head predicates) and the
// recursive part (the remainder). The nonrecursive part is always safe
// to run once; the recursive part must be iterated to a fixpoint.
func Split(rules []syntax.Rule) (nonrecursive, recursive []syntax.Rule) {
	heads := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		heads[r.Head.Symbol] = struct{}{}
	}
	for _, r := range rules {
		mentionsHead := false
		for _, a := range r.Body {
			if _, ok := heads[a.Symbol]; ok {
				mentionsHead = true
				break
			}
		}
		if mentionsHead {
			recursive = append(recursive, r)
		} else {
			nonrecursive = append(nonrecursive, r)
		}
	}
	return nonrecursive, recursive
}

// SortProgram flattens the strata of program in dependency order, rules
// within a stratum kept in their original program order. This is the
// canonical rule ordering the semi-naive driver and the rule evaluator
// rely on for deterministic output.
func SortProgram(program syntax.Program) ([]syntax.Rule, error) {
	strata, err := Strata(program)
	if err != nil {
		return nil, err
	}
	var out []syntax.Rule
	for _, s := range strata {
		out = append(out, s.Rules...)
	}
	return out, nil
}
