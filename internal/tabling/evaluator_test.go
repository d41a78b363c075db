package tabling_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
	"github.com/cortexkernel/datalogcore/internal/tabling"
)

func atom(symbol string, terms ...syntax.Term) syntax.Atom {
	return syntax.NewAtom(symbol, terms...)
}

func ancestorProgram(t *testing.T) syntax.Program {
	t.Helper()
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	return syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("ancestor", x, y), atom("parent", x, y)),
		syntax.NewRule(atom("ancestor", x, z), atom("parent", x, y), atom("ancestor", y, z)),
	})
}

func pairSet(facts []*storage.Fact) map[[2]string]bool {
	out := make(map[[2]string]bool, len(facts))
	for _, f := range facts {
		out[[2]string{f.Values[0].AsStr(), f.Values[1].AsStr()}] = true
	}
	return out
}

func TestEvaluateResolvesRecursiveRule(t *testing.T) {
	relStore := storage.NewRelationStorage(nil)
	relStore.Insert("parent", storage.NewFact(syntax.Str("john"), syntax.Str("bob")))
	relStore.Insert("parent", storage.NewFact(syntax.Str("bob"), syntax.Str("mary")))

	ev := tabling.NewEvaluator(ancestorProgram(t), relStore)
	facts, err := ev.Evaluate(context.Background(), syntax.NewQuery("ancestor",
		syntax.MatchValue(syntax.Str("john")), syntax.Any()))
	require.NoError(t, err)

	got := pairSet(facts)
	require.True(t, got[[2]string{"john", "bob"}])
	require.True(t, got[[2]string{"john", "mary"}])
	require.Len(t, got, 2)
}

// tc(x,z) <- tc(x,y), tc(y,z): a nonlinear self-recursion whose first
// body atom re-enters the query's own pattern. One resolution pass
// cannot answer it — the fixpoint loop must keep re-running the rules
// against the partial table until nothing new is derived.
func TestEvaluateIteratesNonlinearRecursionToFixpoint(t *testing.T) {
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("tc", x, y), atom("e", x, y)),
		syntax.NewRule(atom("tc", x, z), atom("tc", x, y), atom("tc", y, z)),
	})

	relStore := storage.NewRelationStorage(nil)
	relStore.Insert("e", storage.NewFact(syntax.Str("a"), syntax.Str("b")))
	relStore.Insert("e", storage.NewFact(syntax.Str("b"), syntax.Str("c")))
	relStore.Insert("e", storage.NewFact(syntax.Str("c"), syntax.Str("d")))

	ev := tabling.NewEvaluator(program, relStore)
	facts, err := ev.Evaluate(context.Background(),
		syntax.NewQuery("tc", syntax.Any(), syntax.Any()))
	require.NoError(t, err)

	got := pairSet(facts)
	want := [][2]string{
		{"a", "b"}, {"b", "c"}, {"c", "d"},
		{"a", "c"}, {"b", "d"}, {"a", "d"},
	}
	require.Len(t, got, len(want))
	for _, w := range want {
		require.True(t, got[w], "missing %v", w)
	}
}

// Mutual recursion across two predicates: each query's fixpoint depends
// on the other's still-open partial answers, so the inner query's result
// must be recomputed every round rather than cached incomplete.
func TestEvaluateHandlesMutualRecursion(t *testing.T) {
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("even", x, y), atom("step", x, y), atom("start", x)),
		syntax.NewRule(atom("odd", x, z), atom("even", x, y), atom("step", y, z)),
		syntax.NewRule(atom("even", x, z), atom("odd", x, y), atom("step", y, z)),
	})

	relStore := storage.NewRelationStorage(nil)
	relStore.Insert("start", storage.NewFact(syntax.Str("n0")))
	relStore.Insert("step", storage.NewFact(syntax.Str("n0"), syntax.Str("n1")))
	relStore.Insert("step", storage.NewFact(syntax.Str("n1"), syntax.Str("n2")))
	relStore.Insert("step", storage.NewFact(syntax.Str("n2"), syntax.Str("n3")))

	ev := tabling.NewEvaluator(program, relStore)

	even, err := ev.Evaluate(context.Background(),
		syntax.NewQuery("even", syntax.Any(), syntax.Any()))
	require.NoError(t, err)
	gotEven := pairSet(even)
	require.True(t, gotEven[[2]string{"n0", "n1"}])
	require.True(t, gotEven[[2]string{"n0", "n3"}])
	require.Len(t, gotEven, 2)

	odd, err := ev.Evaluate(context.Background(),
		syntax.NewQuery("odd", syntax.Any(), syntax.Any()))
	require.NoError(t, err)
	gotOdd := pairSet(odd)
	require.True(t, gotOdd[[2]string{"n0", "n2"}])
	require.Len(t, gotOdd, 1)
}

// A broader query's cached answer set must be cut down to a narrower
// follow-up's pattern without re-entering rule evaluation.
func TestEvaluateReusesSubsumingCacheEntry(t *testing.T) {
	relStore := storage.NewRelationStorage(nil)
	relStore.Insert("parent", storage.NewFact(syntax.Str("john"), syntax.Str("bob")))
	relStore.Insert("parent", storage.NewFact(syntax.Str("bob"), syntax.Str("mary")))
	relStore.Insert("parent", storage.NewFact(syntax.Str("ann"), syntax.Str("sue")))

	ev := tabling.NewEvaluator(ancestorProgram(t), relStore)

	_, err := ev.Evaluate(context.Background(),
		syntax.NewQuery("ancestor", syntax.Any(), syntax.Any()))
	require.NoError(t, err)
	entriesAfterFull := ev.RuleEntries
	require.Positive(t, entriesAfterFull)

	narrow, err := ev.Evaluate(context.Background(), syntax.NewQuery("ancestor",
		syntax.MatchValue(syntax.Str("john")), syntax.Any()))
	require.NoError(t, err)

	require.Equal(t, entriesAfterFull, ev.RuleEntries, "narrower query must be answered from cache")
	got := pairSet(narrow)
	require.True(t, got[[2]string{"john", "bob"}])
	require.True(t, got[[2]string{"john", "mary"}])
	require.False(t, got[[2]string{"ann", "sue"}], "result must be filtered to john's rows only")
}

func TestEvaluateHonoursContextCancellation(t *testing.T) {
	relStore := storage.NewRelationStorage(nil)
	relStore.Insert("parent", storage.NewFact(syntax.Str("john"), syntax.Str("bob")))

	ev := tabling.NewEvaluator(ancestorProgram(t), relStore)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.Evaluate(ctx, syntax.NewQuery("ancestor", syntax.Any(), syntax.Any()))
	require.Error(t, err)
}
