package syntax

import (
	"fmt"
	"sort"

	"github.com/cortexkernel/datalogcore/internal/engineerrors"
	"github.com/hashicorp/go-multierror"
)

// Program is an ordered, sorted sequence of rules with unique, dense
// identifiers starting at zero. From is the only canonical constructor:
// construction sorts the rules by structural order before assigning
// identifiers, so From(rules) and From(shuffle(rules))
// compare equal and their rule identifiers equal their sorted position.
type Program struct {
	Rules []Rule
}

// From builds the canonical Program for a rule set, validating range
// restriction, non-empty bodies, arity consistency, and reserved-symbol
// use. All
// construction-time defects found are reported together via a joined
// error rather than stopping at the first one.
func From(rules []Rule) (Program, error) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	for i := range sorted {
		sorted[i].ID = i
	}
	p := Program{Rules: sorted}
	if err := validate(p); err != nil {
		return Program{}, err
	}
	return p, nil
}

// MustFrom is From, panicking on error; intended for tests and literal
// in-source programs where the rule set is known to be well-formed.
func MustFrom(rules []Rule) Program {
	p, err := From(rules)
	if err != nil {
		panic(err)
	}
	return p
}

// FromMangled builds a canonical Program the same way From does, except
// it does not reject reserved-prefix symbols: the magic-sets and DRed
// transformers generate their own magic_/delete_/rederive_ predicates
// and must be able to assemble the resulting rule set into a Program
// internally. Arity consistency and range restriction are still
// enforced, since a transformer bug there is a real defect.
func FromMangled(rules []Rule) (Program, error) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	for i := range sorted {
		sorted[i].ID = i
	}
	p := Program{Rules: sorted}
	if err := validateMangled(p); err != nil {
		return Program{}, err
	}
	return p, nil
}

// Equal reports that two programs have the same rules in the same
// canonical order.
func (p Program) Equal(o Program) bool {
	if len(p.Rules) != len(o.Rules) {
		return false
	}
	for i := range p.Rules {
		if !p.Rules[i].Equal(o.Rules[i]) {
			return false
		}
	}
	return true
}

// HeadSymbols returns the set of distinct predicate symbols appearing as
// some rule's head (the IDB / derived predicates).
func (p Program) HeadSymbols() map[string]struct{} {
	out := make(map[string]struct{})
	for _, r := range p.Rules {
		out[r.Head.Symbol] = struct{}{}
	}
	return out
}

// RulesForHead returns every rule whose head symbol matches, preserving
// program order. A head symbol may be shared by any number of rules.
func (p Program) RulesForHead(symbol string) []Rule {
	var out []Rule
	for _, r := range p.Rules {
		if r.Head.Symbol == symbol {
			out = append(out, r)
		}
	}
	return out
}

// IsDerived reports whether symbol is the head of any rule in the
// program — i.e. whether it is an IDB predicate.
func (p Program) IsDerived(symbol string) bool {
	for _, r := range p.Rules {
		if r.Head.Symbol == symbol {
			return true
		}
	}
	return false
}

// AllAtoms returns every head and body atom across the program, used to
// preallocate relation storage for every mentioned symbol.
func (p Program) AllAtoms() []Atom {
	var out []Atom
	for _, r := range p.Rules {
		out = append(out, r.Head)
		out = append(out, r.Body...)
	}
	return out
}

func validate(p Program) error { return validateRules(p, true) }

func validateMangled(p Program) error { return validateRules(p, false) }

func validateRules(p Program, rejectReserved bool) error {
	var result *multierror.Error

	arities := make(map[string]int)
	recordArity := func(a Atom) {
		if existing, ok := arities[a.Symbol]; ok {
			if existing != a.Arity() {
				result = multierror.Append(result, fmt.Errorf(
					"%w: %q used with arity %d and arity %d",
					engineerrors.ErrArityMismatch, a.Symbol, existing, a.Arity()))
			}
			return
		}
		arities[a.Symbol] = a.Arity()
	}

	for _, r := range p.Rules {
		recordArity(r.Head)
		for _, a := range r.Body {
			recordArity(a)
		}
		if len(r.Body) == 0 {
			result = multierror.Append(result, fmt.Errorf(
				"%w: rule for %s has an empty body", engineerrors.ErrUnsafeRule, r.Head.Symbol))
		}
		if rejectReserved {
			if HasReservedSymbol(r.Head.Symbol) {
				result = multierror.Append(result, fmt.Errorf(
					"%w: rule head %q", engineerrors.ErrReservedSymbol, r.Head.Symbol))
			}
			for _, a := range r.Body {
				if HasReservedSymbol(a.Symbol) {
					result = multierror.Append(result, fmt.Errorf(
						"%w: body atom %q", engineerrors.ErrReservedSymbol, a.Symbol))
				}
			}
		}

		bodyVars := make(map[string]struct{})
		for _, a := range r.Body {
			for _, v := range a.Variables() {
				bodyVars[v] = struct{}{}
			}
		}
		for _, v := range r.Head.Variables() {
			if _, ok := bodyVars[v]; !ok {
				result = multierror.Append(result, fmt.Errorf(
					"%w: variable %q in head of %s is not range-restricted",
					engineerrors.ErrUnsafeRule, v, r.Head.Symbol))
			}
		}
	}

	if result != nil {
		return result.ErrorOrNil()
	}
	return nil
}
