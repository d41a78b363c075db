package magic

import (
	"fmt"
	"strings"

	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// Result is the outcome of transforming a program against a query: the
// rewritten program to run bottom-up, the predicate to read answers
// from, and the seed fact that must be inserted before evaluation.
type Result struct {
	Program Program

	// ResultSymbol is the predicate whose materialized tuples answer the
	// query: the adorned original `pred_<pattern>` for a derived query
	// predicate, or the query's own unadorned symbol when it names a base
	// predicate (no transformation applies, and SeedSymbol is empty).
	ResultSymbol string

	// SeedSymbol is the magic predicate to seed, or "" if query names a
	// base predicate.
	SeedSymbol string

	// SeedTuple is the seed fact's values: the query's bound constants,
	// in position order. Empty (not nil-checked) for an all-free query,
	// matching the 0-ary magic predicate case.
	SeedTuple []syntax.Value
}

// Program is a plain rule list, not a syntax.Program: the generated
// magic/adorned rules intentionally use reserved-prefixed and
// adornment-suffixed symbols that syntax.From rejects for user input.
// syntax.FromMangled builds the canonical, validated form of it.
type Program struct {
	Rules []syntax.Rule
}

type demand struct {
	symbol string
	pat    pattern
}

// Transform rewrites program against query per the magic-sets algorithm:
// worklist over (predicate, pattern) demand pairs, adorning every
// derived predicate reached from the query and emitting, for each
// demand, a magic rule carrying the binding chain and a rewritten
// original rule guarded by the magic predicate.
func Transform(program syntax.Program, query syntax.Query) (Result, error) {
	if !program.IsDerived(query.Symbol) {
		return Result{ResultSymbol: query.Symbol}, nil
	}

	topPattern := adornmentFromQuery(query)
	headSymbols := program.HeadSymbols()

	visited := make(map[string]bool)
	seenRules := make(map[string]bool)
	var rules []syntax.Rule
	queue := []demand{{symbol: query.Symbol, pat: topPattern}}

	addRule := func(r syntax.Rule) {
		sig := ruleSignature(r)
		if seenRules[sig] {
			return
		}
		seenRules[sig] = true
		rules = append(rules, r)
	}

	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		key := d.symbol + "\x00" + string(d.pat)
		if visited[key] {
			continue
		}
		visited[key] = true

		for _, rule := range program.RulesForHead(d.symbol) {
			processRule(rule, d.pat, headSymbols, addRule, func(sym string, p pattern) {
				qkey := sym + "\x00" + string(p)
				if !visited[qkey] {
					queue = append(queue, demand{symbol: sym, pat: p})
				}
			})
		}
	}

	adorned, err := syntax.FromMangled(rules)
	if err != nil {
		return Result{}, fmt.Errorf("magic: transformed program is malformed: %w", err)
	}

	return Result{
		Program:      Program{Rules: adorned.Rules},
		ResultSymbol: adornedSymbol(query.Symbol, topPattern),
		SeedSymbol:   magicSymbol(query.Symbol, topPattern),
		SeedTuple:    seedTuple(query),
	}, nil
}

// processRule lowers one rule under the demand pattern pat: it walks the
// body left to right propagating bound variables, adorns every body atom
// whose predicate is derived and positively used, and emits a magic rule
// (once per distinct demand) plus the rewritten original rule.
func processRule(rule syntax.Rule, pat pattern, headSymbols map[string]struct{}, addRule func(syntax.Rule), enqueue func(string, pattern)) {
	bound := make(map[string]struct{})
	for i, t := range rule.Head.Terms {
		if pat.isBound(i) && t.IsVariable() {
			bound[t.VarName()] = struct{}{}
		}
	}

	originatingMagic := syntax.NewAtom(magicSymbol(rule.Head.Symbol, pat), boundTerms(rule.Head.Terms, pat)...)
	chain := []syntax.Atom{originatingMagic}
	rewrittenBody := []syntax.Atom{originatingMagic}

	for _, atom := range rule.Body {
		_, derived := headSymbols[atom.Symbol]

		if !derived || !atom.Sign {
			// Base predicates, and negated atoms of any kind, are kept
			// unadorned: negation is stratified, so a negated atom's
			// predicate is already fully materialized by an earlier
			// stratum's bottom-up run, and pushing demand through a
			// negated literal is unsound in general.
			rewrittenBody = append(rewrittenBody, atom)
			chain = append(chain, atom)
			if atom.Sign {
				for _, v := range atom.Variables() {
					bound[v] = struct{}{}
				}
			}
			continue
		}

		localPat := adornmentOf(atom, bound)
		adorned := syntax.Atom{Symbol: adornedSymbol(atom.Symbol, localPat), Terms: atom.Terms, Sign: true}
		rewrittenBody = append(rewrittenBody, adorned)

		if localPat.hasAnyBound() {
			head := syntax.NewAtom(magicSymbol(atom.Symbol, localPat), boundTerms(atom.Terms, localPat)...)
			body := make([]syntax.Atom, len(chain))
			copy(body, chain)
			addRule(syntax.NewRule(head, body...))
			enqueue(atom.Symbol, localPat)
		}

		chain = append(chain, adorned)
		for _, v := range atom.Variables() {
			bound[v] = struct{}{}
		}
	}

	rewrittenHead := syntax.Atom{Symbol: adornedSymbol(rule.Head.Symbol, pat), Terms: rule.Head.Terms, Sign: true}
	addRule(syntax.NewRule(rewrittenHead, rewrittenBody...))
}

func seedTuple(q syntax.Query) []syntax.Value {
	var out []syntax.Value
	for _, opt := range q.Pattern() {
		if opt.IsSome() {
			out = append(out, opt.Value())
		}
	}
	return out
}

func ruleSignature(r syntax.Rule) string {
	var b strings.Builder
	b.WriteString(r.Head.String())
	for _, a := range r.Body {
		b.WriteString("|")
		b.WriteString(a.String())
	}
	return b.String()
}
