package compiler

import "github.com/cortexkernel/datalogcore/internal/syntax"

// operand tracks the running "left" accumulator while lowering a rule
// body: the name of the instruction that currently produces it, the
// flattened column each of its variables lives at, and its total width.
type operand struct {
	name    string
	varCols map[string]int
	width   int
}

// Compile lowers rule into an SPJ instruction stack. Empty bodies are
// rejected by the caller (program validation requires a non-empty body
// for every rule admitted to bottom-up evaluation); Compile itself
// assumes len(rule.Body) >= 1.
func Compile(rule syntax.Rule) Stack {
	var stack Stack
	var left operand

	// Negated atoms join last: an antijoin filters the accumulated left
	// operand, so every positive atom must have contributed its columns
	// first. Conjunction is order-independent, so the reorder preserves
	// the rule's meaning while keeping the lowering a single
	// left-to-right walk.
	body := make([]syntax.Atom, 0, len(rule.Body))
	for _, a := range rule.Body {
		if a.Sign {
			body = append(body, a)
		}
	}
	for _, a := range rule.Body {
		if !a.Sign {
			body = append(body, a)
		}
	}

	for i, atom := range body {
		name, varCols, width, sel := moveAndSelect(atom)
		stack = append(stack, sel...)

		if i == 0 {
			left = operand{name: name, varCols: varCols, width: width}
			continue
		}

		keys := sharedKeys(left.varCols, varCols)
		sign := atom.Sign
		kind := Join
		if !sign {
			kind = Antijoin
		}
		out := joinName(left.name, name, keys, sign)
		stack = append(stack, Instruction{
			Kind: kind, Output: out,
			JoinLeft: left.name, JoinRight: name, JoinKeys: keys,
		})

		merged := make(map[string]int, len(left.varCols)+len(varCols))
		for v, c := range left.varCols {
			merged[v] = c
		}
		if sign {
			for v, c := range varCols {
				if _, ok := merged[v]; !ok {
					merged[v] = left.width + c
				}
			}
			left = operand{name: out, varCols: merged, width: left.width + width}
		} else {
			// Antijoin output has the same shape (and width) as the left
			// operand: only left tuples with no right match survive, and
			// the right atom contributes no columns to the result.
			left = operand{name: out, varCols: merged, width: left.width}
		}
	}

	stack = append(stack, Instruction{
		Kind:          Project,
		Output:        rule.Head.Symbol,
		ProjectHead:   rule.Head.Symbol,
		ProjectSource: left.name,
		ProjectInputs: projectionInputs(rule.Head, left.varCols),
	})
	return stack
}

// moveAndSelect emits the Move for atom's own relation, followed by one
// chained Select per constant term, and returns the final operand name,
// its variable-to-column map (local to the atom, 0-based), and its width.
func moveAndSelect(atom syntax.Atom) (name string, varCols map[string]int, width int, instrs []Instruction) {
	instrs = append(instrs, Instruction{Kind: Move, Output: atom.Symbol, MoveSymbol: atom.Symbol})
	name = atom.Symbol
	for col, term := range atom.Terms {
		if term.IsConstant() {
			out := selectName(name, atom.Sign, col, term.ConstValue())
			instrs = append(instrs, Instruction{
				Kind: Select, Output: out,
				SelectSource: name, SelectSign: atom.Sign,
				SelectColumn: col, SelectValue: term.ConstValue(),
			})
			name = out
		}
	}
	varCols = make(map[string]int)
	for col, term := range atom.Terms {
		if term.IsVariable() {
			if _, ok := varCols[term.VarName()]; !ok {
				varCols[term.VarName()] = col
			}
		}
	}
	width = len(atom.Terms)
	return name, varCols, width, instrs
}

// sharedKeys finds variables common to both operands and pairs their
// columns, in a deterministic (sorted by variable name) order so that
// mangled names are stable across repeated compilation of the same rule.
func sharedKeys(left, right map[string]int) []JoinKey {
	var names []string
	for v := range left {
		if _, ok := right[v]; ok {
			names = append(names, v)
		}
	}
	sortStrings(names)
	keys := make([]JoinKey, 0, len(names))
	for _, v := range names {
		keys = append(keys, JoinKey{LeftColumn: left[v], RightColumn: right[v]})
	}
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// projectionInputs maps each head position to either the flattened
// column where the variable first appears in the body, or the constant
// literal carried by the head.
func projectionInputs(head syntax.Atom, bodyVarCols map[string]int) []ProjectionInput {
	out := make([]ProjectionInput, len(head.Terms))
	for i, t := range head.Terms {
		if t.IsConstant() {
			out[i] = ProjectionInput{FromColumn: false, Value: t.ConstValue()}
			continue
		}
		col := bodyVarCols[t.VarName()]
		out[i] = ProjectionInput{FromColumn: true, Column: col}
	}
	return out
}
