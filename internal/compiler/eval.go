package compiler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// RequiredIndices returns the (relation, columns) pairs a stack needs
// registered on its index storage before it can be evaluated: one entry
// per side of every Join/Antijoin instruction.
func (s Stack) RequiredIndices() []struct {
	Relation string
	Columns  []int
} {
	var out []struct {
		Relation string
		Columns  []int
	}
	for _, instr := range s {
		if instr.Kind != Join && instr.Kind != Antijoin {
			continue
		}
		left, right := splitColumns(instr.JoinKeys)
		out = append(out, struct {
			Relation string
			Columns  []int
		}{instr.JoinLeft, left})
		out = append(out, struct {
			Relation string
			Columns  []int
		}{instr.JoinRight, right})
	}
	return out
}

func splitColumns(keys []JoinKey) (left, right []int) {
	left = make([]int, len(keys))
	right = make([]int, len(keys))
	for i, k := range keys {
		left[i] = k.LeftColumn
		right[i] = k.RightColumn
	}
	return left, right
}

// Evaluator interprets compiled SPJ stacks against storage.
type Evaluator struct {
	Concurrent bool
}

// NewEvaluator builds an Evaluator; concurrent toggles whether the two
// independent delta sub-joins of a Join run on separate goroutines via
// errgroup. An Antijoin is always evaluated sequentially.
func NewEvaluator(concurrent bool) *Evaluator {
	return &Evaluator{Concurrent: concurrent}
}

// Step runs stack to completion against idx, a source of current facts
// relStore (used only by Move, to seed a relation's diff the first time
// it is referenced), and returns the flattened value tuples produced by
// the terminal Project instruction for this iteration.
func (ev *Evaluator) Step(ctx context.Context, stack Stack, idx *storage.IndexStorage, relStore *storage.RelationStorage) ([][]syntax.Value, error) {
	for _, instr := range stack {
		switch instr.Kind {
		case Move:
			if !idx.HasDiff(instr.MoveSymbol) {
				facts := relStore.GetRelation(instr.MoveSymbol).Facts()
				wrapped := make([]storage.Ephemeral, len(facts))
				for i, f := range facts {
					wrapped[i] = storage.FactRef(f)
				}
				idx.BorrowAll(instr.MoveSymbol, wrapped)
			}
		case Select:
			if err := ev.runSelect(instr, idx); err != nil {
				return nil, err
			}
		case Join, Antijoin:
			if err := ev.runJoin(ctx, instr, idx); err != nil {
				return nil, err
			}
		case Project:
			return ev.runProject(instr, idx), nil
		}
	}
	return nil, nil
}

func (ev *Evaluator) runSelect(instr Instruction, idx *storage.IndexStorage) error {
	if !idx.MarkEvaluated(instr.Output) {
		return nil
	}
	src := idx.Diff(instr.SelectSource)
	var matched []storage.Ephemeral
	for _, e := range src {
		if e.Column(instr.SelectColumn).Equal(instr.SelectValue) {
			matched = append(matched, e)
		}
	}
	idx.BorrowAll(instr.Output, matched)
	return nil
}

func (ev *Evaluator) runJoin(ctx context.Context, instr Instruction, idx *storage.IndexStorage) error {
	if !idx.MarkEvaluated(instr.Output) {
		return nil
	}
	leftCols, rightCols := splitColumns(instr.JoinKeys)

	if instr.Kind == Antijoin {
		var out []storage.Ephemeral
		for _, e := range idx.Diff(instr.JoinLeft) {
			key := columnKey(e, leftCols)
			if len(idx.Probe(instr.JoinRight, rightCols, key, true)) == 0 &&
				len(idx.Probe(instr.JoinRight, rightCols, key, false)) == 0 {
				out = append(out, e)
			}
		}
		idx.BorrowAll(instr.Output, out)
		return nil
	}

	var term1, term2, term3 []storage.Ephemeral

	computeTerm1 := func() {
		for _, rightE := range idx.Diff(instr.JoinRight) {
			key := columnKey(rightE, rightCols)
			for _, leftE := range idx.Probe(instr.JoinLeft, leftCols, key, false) {
				term1 = append(term1, storage.Concat(leftE, rightE))
			}
		}
	}
	computeTerm2 := func() {
		for _, leftE := range idx.Diff(instr.JoinLeft) {
			key := columnKey(leftE, leftCols)
			for _, rightE := range idx.Probe(instr.JoinRight, rightCols, key, false) {
				term2 = append(term2, storage.Concat(leftE, rightE))
			}
		}
	}
	computeTerm3 := func() {
		for _, leftE := range idx.Diff(instr.JoinLeft) {
			key := columnKey(leftE, leftCols)
			for _, rightE := range idx.Probe(instr.JoinRight, rightCols, key, true) {
				term3 = append(term3, storage.Concat(leftE, rightE))
			}
		}
	}

	if ev.Concurrent {
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error { computeTerm1(); return nil })
		g.Go(func() error { computeTerm2(); return nil })
		if err := g.Wait(); err != nil {
			return err
		}
		computeTerm3()
	} else {
		computeTerm1()
		computeTerm2()
		computeTerm3()
	}

	out := make([]storage.Ephemeral, 0, len(term1)+len(term2)+len(term3))
	out = append(out, term1...)
	out = append(out, term2...)
	out = append(out, term3...)
	idx.BorrowAll(instr.Output, out)
	return nil
}

func columnKey(e storage.Ephemeral, columns []int) []syntax.Value {
	out := make([]syntax.Value, len(columns))
	for i, c := range columns {
		out[i] = e.Column(c)
	}
	return out
}

func (ev *Evaluator) runProject(instr Instruction, idx *storage.IndexStorage) [][]syntax.Value {
	var out [][]syntax.Value
	for _, e := range idx.Diff(instr.ProjectSource) {
		row := make([]syntax.Value, len(instr.ProjectInputs))
		for i, in := range instr.ProjectInputs {
			if in.FromColumn {
				row[i] = e.Column(in.Column)
			} else {
				row[i] = in.Value
			}
		}
		out = append(out, row)
	}
	return out
}
