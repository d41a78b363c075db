package tabling

import (
	"context"
	"fmt"

	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// Evaluator answers demand queries against a fixed program and a fixed
// snapshot of fact storage, by recursive top-down resolution with
// subsumptive caching. The table persists across calls to Evaluate, so a
// later, more specific query against a predicate already fully evaluated
// is answered from the cache without re-entering rule evaluation.
type Evaluator struct {
	Program  syntax.Program
	RelStore *storage.RelationStorage
	table    *Table

	// RuleEntries counts how many times evaluateRuleSubsumptive actually
	// ran a rule's body, as opposed to being answered from the
	// subsumptive cache. Exposed for the instrumentation scenarios that
	// observe subsumption-cache reuse.
	RuleEntries int
}

// NewEvaluator builds an Evaluator over program and relStore. relStore
// is read-only from the evaluator's perspective — it answers from
// whatever is already materialized, it does not run the semi-naive
// driver itself.
func NewEvaluator(program syntax.Program, relStore *storage.RelationStorage) *Evaluator {
	return &Evaluator{Program: program, RelStore: relStore, table: NewTable()}
}

// Evaluate answers query, returning every matching fact. The context
// deadline is advisory: it is checked between subquery descents, not
// preemptively.
func (ev *Evaluator) Evaluate(ctx context.Context, query syntax.Query) ([]*storage.Fact, error) {
	seen := make(map[string]bool)
	deps := make(map[string]struct{})
	pattern := query.Pattern()
	atom := freshAtom(query.Symbol, query.Arity())
	return ev.evaluateSubquery(ctx, atom, pattern, seen, deps)
}

// evaluateSubquery answers (atom.Symbol, pattern). A cache hit — open or
// closed — short-circuits; otherwise the query is marked open in seen
// and its rules are iterated to a local fixpoint, publishing partial
// answers to the table each round so a re-entrant recursive call (the
// same query reached again further down the resolution tree) reads the
// partial set instead of descending forever.
//
// deps accumulates the signatures of still-open queries this evaluation
// drew answers from. A result that leaned on an open query other than
// itself may be incomplete — the enclosing fixpoint is still growing —
// so it is returned to the caller but not kept in the table; the
// enclosing iteration re-evaluates it each round until everything
// settles.
func (ev *Evaluator) evaluateSubquery(ctx context.Context, atom syntax.Atom, pattern []syntax.Option, seen map[string]bool, deps map[string]struct{}) ([]*storage.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tabling: evaluation of %s cancelled: %w", atom.Symbol, err)
	}

	key := querySignature(atom.Symbol, pattern)

	if entry, ok := ev.table.findSubsuming(atom.Symbol, pattern); ok {
		if entry.open {
			deps[entry.key] = struct{}{}
		}
		return filterByPattern(entry.facts, pattern), nil
	}
	if seen[key] {
		// Re-entered before the first partial publication: no answers
		// yet, but the outer iteration will come back around.
		deps[key] = struct{}{}
		return nil, nil
	}
	seen[key] = true
	defer delete(seen, key)

	var all []*storage.Fact
	have := make(map[string]bool)
	add := func(facts []*storage.Fact) {
		for _, f := range facts {
			k := f.Key()
			if !have[k] {
				have[k] = true
				all = append(all, f)
			}
		}
	}

	for _, f := range ev.RelStore.GetRelation(atom.Symbol).Facts() {
		if matchesPattern(pattern, f.Values) {
			add([]*storage.Fact{f})
		}
	}

	local := make(map[string]struct{})
	for {
		before := len(all)
		for _, rule := range ev.Program.RulesForHead(atom.Symbol) {
			ruleResults, err := ev.evaluateRuleSubsumptive(ctx, rule, pattern, seen, local)
			if err != nil {
				return nil, err
			}
			add(ruleResults)
		}
		if len(all) == before {
			break
		}
		snapshot := make([]*storage.Fact, len(all))
		copy(snapshot, all)
		ev.table.upsert(atom.Symbol, pattern, snapshot, true)
	}

	delete(local, key)
	if len(local) == 0 {
		ev.table.upsert(atom.Symbol, pattern, all, false)
	} else {
		ev.table.drop(atom.Symbol, pattern)
		for k := range local {
			deps[k] = struct{}{}
		}
	}
	return all, nil
}

// evaluateRuleSubsumptive seeds bindings from the demand pattern's bound
// head positions, then resolves the body left to right.
func (ev *Evaluator) evaluateRuleSubsumptive(ctx context.Context, rule syntax.Rule, pattern []syntax.Option, seen map[string]bool, deps map[string]struct{}) ([]*storage.Fact, error) {
	ev.RuleEntries++
	bindings := make(map[string]syntax.Value)
	for i, t := range rule.Head.Terms {
		if i < len(pattern) && pattern[i].IsSome() && t.IsVariable() {
			bindings[t.VarName()] = pattern[i].Value()
		}
	}

	var results []*storage.Fact
	have := make(map[string]bool)
	err := ev.evaluateBodyPredicates(ctx, rule, rule.Body, 0, bindings, seen, deps, &results, have)
	return results, err
}

// evaluateBodyPredicates resolves body[pos:] under bindings, branching
// over every matching tuple for each positive body atom (unlike a single
// best-binding shortcut, every branch is carried to the rule's head so
// that a subgoal with several answers yields several head tuples).
func (ev *Evaluator) evaluateBodyPredicates(ctx context.Context, rule syntax.Rule, body []syntax.Atom, pos int, bindings map[string]syntax.Value, seen map[string]bool, deps map[string]struct{}, results *[]*storage.Fact, have map[string]bool) error {
	if pos >= len(body) {
		if f, ok := createResult(rule.Head, bindings); ok {
			k := f.Key()
			if !have[k] {
				have[k] = true
				*results = append(*results, f)
			}
		}
		return nil
	}

	atom := body[pos]

	if !atom.Sign {
		tuple := make([]syntax.Value, len(atom.Terms))
		for i, t := range atom.Terms {
			if t.IsConstant() {
				tuple[i] = t.ConstValue()
				continue
			}
			v, ok := bindings[t.VarName()]
			if !ok {
				return fmt.Errorf("tabling: variable %q in negated atom %s is unbound at evaluation time",
					t.VarName(), atom.Symbol)
			}
			tuple[i] = v
		}
		if ev.RelStore.Contains(atom.Symbol, storage.NewFact(tuple...)) {
			return nil
		}
		return ev.evaluateBodyPredicates(ctx, rule, body, pos+1, bindings, seen, deps, results, have)
	}

	subPattern := createSubqueryPattern(atom, bindings)
	subResults, err := ev.evaluateSubquery(ctx, atom, subPattern, seen, deps)
	if err != nil {
		return err
	}

	for _, f := range subResults {
		branch := make(map[string]syntax.Value, len(bindings)+len(atom.Terms))
		for k, v := range bindings {
			branch[k] = v
		}
		for i, t := range atom.Terms {
			if t.IsVariable() {
				branch[t.VarName()] = f.Values[i]
			}
		}
		if err := ev.evaluateBodyPredicates(ctx, rule, body, pos+1, branch, seen, deps, results, have); err != nil {
			return err
		}
	}
	return nil
}

func createSubqueryPattern(atom syntax.Atom, bindings map[string]syntax.Value) []syntax.Option {
	out := make([]syntax.Option, len(atom.Terms))
	for i, t := range atom.Terms {
		switch {
		case t.IsConstant():
			out[i] = syntax.Some(t.ConstValue())
		case t.IsVariable():
			if v, ok := bindings[t.VarName()]; ok {
				out[i] = syntax.Some(v)
			} else {
				out[i] = syntax.None()
			}
		}
	}
	return out
}

func createResult(head syntax.Atom, bindings map[string]syntax.Value) (*storage.Fact, bool) {
	values := make([]syntax.Value, len(head.Terms))
	for i, t := range head.Terms {
		if t.IsConstant() {
			values[i] = t.ConstValue()
			continue
		}
		v, ok := bindings[t.VarName()]
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return storage.NewFact(values...), true
}

func freshAtom(symbol string, arity int) syntax.Atom {
	terms := make([]syntax.Term, arity)
	for i := range terms {
		terms[i] = syntax.Var(fmt.Sprintf("_q%d", i))
	}
	return syntax.NewAtom(symbol, terms...)
}

// filterByPattern restricts a cached answer set down to the tuples that
// satisfy a possibly-narrower requested pattern, so a subsuming cache
// entry's broader answer set is cut down to what the caller actually
// asked for — the "optionally filtered by Q's extra bindings" half of
// the subsumption rule.
func filterByPattern(facts []*storage.Fact, pattern []syntax.Option) []*storage.Fact {
	out := make([]*storage.Fact, 0, len(facts))
	for _, f := range facts {
		if matchesPattern(pattern, f.Values) {
			out = append(out, f)
		}
	}
	return out
}

func querySignature(symbol string, pattern []syntax.Option) string {
	s := symbol
	for _, p := range pattern {
		if p.IsSome() {
			s += "\x1fb:" + p.Value().String()
		} else {
			s += "\x1ff"
		}
	}
	return s
}
