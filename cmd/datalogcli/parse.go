package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// parsedProgram is the CLI's own intermediate form: a rule/fact text
// file mixes rule lines (head :- body) with ground fact lines (bare
// atoms, every argument a literal). Variables are any identifier
// starting with an uppercase letter or underscore; everything else
// parses as a Value literal.
type parsedProgram struct {
	rules []syntax.Rule
	facts map[string][]*storage.Fact
}

// parseProgramFile reads the line-oriented rule/fact format used by the
// load and query subcommands. One clause per line, terminated by '.'.
// Blank lines and lines starting with '#' are ignored.
func parseProgramFile(r io.Reader) (*parsedProgram, error) {
	pp := &parsedProgram{facts: make(map[string][]*storage.Fact)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSuffix(line, ".")
		if err := parseClause(pp, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return pp, nil
}

func parseClause(pp *parsedProgram, line string) error {
	if idx := strings.Index(line, ":-"); idx >= 0 {
		head, err := parseAtom(strings.TrimSpace(line[:idx]))
		if err != nil {
			return err
		}
		body, err := parseBody(strings.TrimSpace(line[idx+2:]))
		if err != nil {
			return err
		}
		pp.rules = append(pp.rules, syntax.NewRule(head, body...))
		return nil
	}

	atom, err := parseAtom(line)
	if err != nil {
		return err
	}
	values := make([]syntax.Value, len(atom.Terms))
	for i, t := range atom.Terms {
		if t.IsVariable() {
			return fmt.Errorf("fact %q must be fully ground, got variable %q", line, t.VarName())
		}
		values[i] = t.ConstValue()
	}
	pp.facts[atom.Symbol] = append(pp.facts[atom.Symbol], storage.NewFact(values...))
	return nil
}

func parseBody(s string) ([]syntax.Atom, error) {
	parts := splitTopLevel(s)
	out := make([]syntax.Atom, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		negated := strings.HasPrefix(p, "!")
		if negated {
			p = strings.TrimSpace(p[1:])
		}
		a, err := parseAtom(p)
		if err != nil {
			return nil, err
		}
		a.Sign = !negated
		out = append(out, a)
	}
	return out, nil
}

// splitTopLevel splits s on commas that are not nested inside
// parentheses, so "e(x, y), tc(y, z)" yields two atoms, not four.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

func parseAtom(s string) (syntax.Atom, error) {
	open := strings.Index(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return syntax.Atom{}, fmt.Errorf("malformed atom %q", s)
	}
	symbol := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]
	var terms []syntax.Term
	if strings.TrimSpace(inner) != "" {
		for _, arg := range splitTopLevel(inner) {
			terms = append(terms, parseTerm(strings.TrimSpace(arg)))
		}
	}
	return syntax.NewAtom(symbol, terms...), nil
}

func parseTerm(s string) syntax.Term {
	if s == "_" {
		return syntax.Var("_")
	}
	if s == "" {
		return syntax.Var("_")
	}
	if r := rune(s[0]); r == '_' || (r >= 'A' && r <= 'Z') {
		return syntax.Var(s)
	}
	if s == "true" {
		return syntax.Const(syntax.Bool(true))
	}
	if s == "false" {
		return syntax.Const(syntax.Bool(false))
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return syntax.Const(syntax.Int(n))
	}
	return syntax.Const(syntax.Str(strings.Trim(s, `"`)))
}

// parseMatchers parses a query like "tc(a, _)" into a syntax.Query,
// reusing the atom parser and converting variable terms to wildcards
// (the CLI has no notion of a free variable in a query — only Any or
// Constant matchers).
func parseMatchers(s string) (syntax.Query, error) {
	atom, err := parseAtom(s)
	if err != nil {
		return syntax.Query{}, err
	}
	b := syntax.NewQueryBuilder(atom.Symbol)
	for _, t := range atom.Terms {
		if t.IsVariable() {
			b.WithAny()
		} else {
			b.WithConstant(t.ConstValue())
		}
	}
	return b.Build(), nil
}
