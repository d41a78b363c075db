// Package compiler lowers a single rule into an ordered Select/Project/
// Join (SPJ) instruction stack over named intermediate relations, and
// interprets that stack against storage to produce the rule's delta of
// head tuples for one semi-naive iteration.
package compiler

import (
	"fmt"
	"strings"

	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// InstrKind tags the variant of one Instruction.
type InstrKind uint8

const (
	Move InstrKind = iota
	Select
	Join
	Antijoin
	Project
)

// JoinKey pairs a column in the left operand (a position in its
// flattened join-product concatenation) with a column in the right
// operand (a position within that atom's own terms).
type JoinKey struct {
	LeftColumn  int
	RightColumn int
}

// ProjectionInput is one column of the terminal Project instruction:
// either a source column index into the flattened join product, or a
// constant literal carried by the head atom.
type ProjectionInput struct {
	FromColumn bool
	Column     int
	Value      syntax.Value
}

// Instruction is one step of an SPJ stack. Only the fields relevant to
// Kind are meaningful; this mirrors the small closed variant set the
// evaluator dispatches over exhaustively.
type Instruction struct {
	Kind   InstrKind
	Output string

	// Move
	MoveSymbol string

	// Select
	SelectSource string
	SelectSign   bool
	SelectColumn int
	SelectValue  syntax.Value

	// Join / Antijoin
	JoinLeft  string
	JoinRight string
	JoinKeys  []JoinKey

	// Project
	ProjectHead   string
	ProjectSource string
	ProjectInputs []ProjectionInput
}

// Stack is the ordered instruction list compiled from one rule.
type Stack []Instruction

func selectName(source string, sign bool, column int, value syntax.Value) string {
	prefix := ""
	if !sign {
		prefix = "!"
	}
	return fmt.Sprintf("%s%s_%d=%s", prefix, source, column, value.String())
}

func joinName(left, right string, keys []JoinKey, sign bool) string {
	var b strings.Builder
	if !sign {
		b.WriteString("!")
	}
	b.WriteString(left)
	b.WriteString("_")
	b.WriteString(right)
	for _, k := range keys {
		fmt.Fprintf(&b, "_%d=%d", k.LeftColumn, k.RightColumn)
	}
	return b.String()
}
