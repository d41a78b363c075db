package dred

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/cortexkernel/datalogcore/internal/compiler"
	"github.com/cortexkernel/datalogcore/internal/seminaive"
	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

// Apply runs one deletion cycle: overdeletion flags everything that
// might depend on a deleted fact, the flagged facts are removed, and
// rederivation restores the ones with a surviving justification.
// Rederivation runs against the post-removal state, so a fact whose
// only alternate derivation passes through another rederived fact can
// still be missing afterwards — the caller's subsequent semi-naive run
// of the original program closes that gap, which is why Poll always
// follows Apply with one. overdelete and rederive are the two programs
// MakeOverdeletionProgram and MakeRederivationProgram built from the
// same original program at construction time.
func Apply(ctx context.Context, overdelete, rederive syntax.Program, relStore *storage.RelationStorage, ev *compiler.Evaluator, pendingDeletions map[string][]*storage.Fact, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	for symbol, facts := range pendingDeletions {
		relStore.InsertAll(syntax.OverdeletionPrefix+symbol, facts)
	}

	if err := seminaive.Run(ctx, overdelete, relStore, ev, logger); err != nil {
		return err
	}

	for _, symbol := range mangledSymbols(relStore, syntax.OverdeletionPrefix) {
		target := strings.TrimPrefix(symbol, syntax.OverdeletionPrefix)
		for _, f := range relStore.GetRelation(symbol).Facts() {
			relStore.Remove(target, f)
		}
	}

	if err := seminaive.Run(ctx, rederive, relStore, ev, logger); err != nil {
		return err
	}

	for _, symbol := range mangledSymbols(relStore, syntax.RederivationPrefix) {
		target := strings.TrimPrefix(symbol, syntax.RederivationPrefix)
		relStore.InsertAll(target, relStore.GetRelation(symbol).Facts())
	}

	for _, symbol := range mangledSymbols(relStore, syntax.OverdeletionPrefix) {
		relStore.Clear(symbol)
	}
	for _, symbol := range mangledSymbols(relStore, syntax.RederivationPrefix) {
		relStore.Clear(symbol)
	}

	logger.Debug("dred cycle complete", zap.Int("deleted_relations", len(pendingDeletions)))
	return nil
}

func mangledSymbols(relStore *storage.RelationStorage, prefix string) []string {
	var out []string
	for _, s := range relStore.Symbols() {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}
