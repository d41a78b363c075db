// Package dred implements the delete/rederive transformation for
// incremental deletion: two programs derived mechanically from the
// original rule set let the semi-naive driver compute, for every fact
// a deletion might affect, whether an alternate derivation still
// supports it.
package dred

import (
	"fmt"
	"strings"

	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// MakeOverdeletionProgram builds, for every original rule and every
// body position, a copy of the rule with the head mangled
// `delete_<head>` and that one body position's symbol mangled
// `delete_<body_i>` (every other body atom kept as-is): this propagates
// "potentially deleted" through each possible justification for a fact.
func MakeOverdeletionProgram(program syntax.Program) (syntax.Program, error) {
	seen := make(map[string]bool)
	var rules []syntax.Rule

	for _, rule := range program.Rules {
		head := mangleAtom(rule.Head, syntax.OverdeletionPrefix)
		for pos := range rule.Body {
			body := make([]syntax.Atom, len(rule.Body))
			copy(body, rule.Body)
			body[pos] = mangleAtom(body[pos], syntax.OverdeletionPrefix)
			candidate := syntax.NewRule(head, body...)
			sig := ruleSignature(candidate)
			if seen[sig] {
				continue
			}
			seen[sig] = true
			rules = append(rules, candidate)
		}
	}

	out, err := syntax.FromMangled(rules)
	if err != nil {
		return syntax.Program{}, fmt.Errorf("dred: overdeletion program is malformed: %w", err)
	}
	return out, nil
}

// MakeRederivationProgram builds, for every original rule, a copy whose
// head is `rederive_<head>` and whose body is `delete_<head>` (over the
// head's own terms) followed by the original, unmangled body: this asks
// whether a fact the overdeletion program flagged still has some
// surviving derivation.
func MakeRederivationProgram(program syntax.Program) (syntax.Program, error) {
	seen := make(map[string]bool)
	var rules []syntax.Rule

	for _, rule := range program.Rules {
		guard := mangleAtom(rule.Head, syntax.OverdeletionPrefix)
		body := make([]syntax.Atom, 0, len(rule.Body)+1)
		body = append(body, guard)
		body = append(body, rule.Body...)
		head := mangleAtom(rule.Head, syntax.RederivationPrefix)
		candidate := syntax.NewRule(head, body...)
		sig := ruleSignature(candidate)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		rules = append(rules, candidate)
	}

	out, err := syntax.FromMangled(rules)
	if err != nil {
		return syntax.Program{}, fmt.Errorf("dred: rederivation program is malformed: %w", err)
	}
	return out, nil
}

func mangleAtom(a syntax.Atom, prefix string) syntax.Atom {
	return syntax.Atom{Symbol: prefix + a.Symbol, Terms: a.Terms, Sign: a.Sign}
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
