// Package seminaive drives bottom-up evaluation of a stratified program
// to its fixpoint, one stratum at a time, using delta-indexed joins.
package seminaive

import (
	"context"

	"go.uber.org/zap"

	"github.com/cortexkernel/datalogcore/internal/compiler"
	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/stratify"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// Run stratifies program, rejecting it if negation is not stratifiable,
// then evaluates each stratum to a joint fixpoint in dependency order
// against relStore, which is mutated in place.
func Run(ctx context.Context, program syntax.Program, relStore *storage.RelationStorage, ev *compiler.Evaluator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	strata, err := stratify.Strata(program)
	if err != nil {
		return err
	}
	logger.Debug("stratified program", zap.Int("strata", len(strata)))
	for i, stratum := range strata {
		nonrecursive, recursive := stratify.Split(stratum.Rules)
		if err := RunStratum(ctx, nonrecursive, recursive, relStore, ev, logger); err != nil {
			return err
		}
		logger.Debug("stratum complete", zap.Int("index", i), zap.Int("facts", relStore.Len()))
	}
	return nil
}

// RunStratum evaluates one stratum's nonrecursive rules once, then its
// recursive rules to a fixpoint: relations grow monotonically under
// positive rules over a finite Herbrand base, and antijoins within a
// stratum read a predicate whose own stratum has already finished, so
// the loop is guaranteed to terminate.
func RunStratum(ctx context.Context, nonrecursive, recursive []syntax.Rule, relStore *storage.RelationStorage, ev *compiler.Evaluator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	nonrecStacks := compileAll(nonrecursive)
	recStacks := compileAll(recursive)

	idx := storage.NewIndexStorage()
	for _, st := range nonrecStacks {
		registerIndices(idx, st)
	}
	for _, st := range recStacks {
		registerIndices(idx, st)
	}
	seedMoves(idx, nonrecStacks, relStore)
	seedMoves(idx, recStacks, relStore)

	// The nonrecursive pass extends the initial delta rather than
	// promoting it: the first recursive iteration must still see every
	// current fact on the delta side, or a pair of already-known facts
	// whose join only became derivable through this run's new input
	// would never be computed.
	if err := runPass(ctx, nonrecStacks, idx, relStore, ev, false); err != nil {
		return err
	}

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := relStore.TotalLen()
		if err := runPass(ctx, recStacks, idx, relStore, ev, true); err != nil {
			return err
		}
		after := relStore.TotalLen()
		logger.Debug("semi-naive iteration", zap.Int("iteration", iteration), zap.Int("facts", after))
		if after == before {
			return nil
		}
	}
}

// seedMoves populates the first-iteration delta for every relation named
// by a Move instruction with references to its current facts. Seeding up
// front, rather than lazily on the first Move executed, matters when a
// relation is both read and derived within the same stratum run: facts
// surviving from an earlier run must enter the index before the first
// pass borrows that head's newly derived delta, or they would never
// participate in a join.
func seedMoves(idx *storage.IndexStorage, stacks []compiler.Stack, relStore *storage.RelationStorage) {
	for _, st := range stacks {
		for _, instr := range st {
			if instr.Kind != compiler.Move || idx.HasDiff(instr.MoveSymbol) {
				continue
			}
			facts := relStore.GetRelation(instr.MoveSymbol).Facts()
			wrapped := make([]storage.Ephemeral, len(facts))
			for i, f := range facts {
				wrapped[i] = storage.FactRef(f)
			}
			idx.BorrowAll(instr.MoveSymbol, wrapped)
		}
	}
}

func compileAll(rules []syntax.Rule) []compiler.Stack {
	out := make([]compiler.Stack, len(rules))
	for i, r := range rules {
		out[i] = compiler.Compile(r)
	}
	return out
}

func registerIndices(idx *storage.IndexStorage, st compiler.Stack) {
	for _, req := range st.RequiredIndices() {
		idx.AddIndex(req.Relation, req.Columns)
	}
}

// runPass evaluates every stack once against the same index-storage
// snapshot (so rules within one pass cannot observe each other's new
// derivations — only the current delta), inserts every novel tuple into
// relStore, then seeds each head relation's delta with exactly what was
// new. With promote set, the current delta is first absorbed into the
// inner sets, so the new facts form the next iteration's delta on their
// own; without it (the nonrecursive pass) they extend the initial delta
// in place.
func runPass(ctx context.Context, stacks []compiler.Stack, idx *storage.IndexStorage, relStore *storage.RelationStorage, ev *compiler.Evaluator, promote bool) error {
	pending := make(map[string][]*storage.Fact)
	for _, st := range stacks {
		if len(st) == 0 {
			continue
		}
		rows, err := ev.Step(ctx, st, idx, relStore)
		if err != nil {
			return err
		}
		head := st[len(st)-1].ProjectHead
		for _, vals := range rows {
			f := storage.NewFact(vals...)
			if relStore.Insert(head, f) {
				pending[head] = append(pending[head], f)
			}
		}
	}
	if promote {
		idx.Promote()
	}
	for head, facts := range pending {
		wrapped := make([]storage.Ephemeral, len(facts))
		for i, f := range facts {
			wrapped[i] = storage.FactRef(f)
		}
		idx.BorrowAll(head, wrapped)
	}
	return nil
}
