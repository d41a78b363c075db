package magic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexkernel/datalogcore/internal/magic"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

func atom(symbol string, terms ...syntax.Term) syntax.Atom {
	return syntax.NewAtom(symbol, terms...)
}

func tcProgram(t *testing.T) syntax.Program {
	t.Helper()
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	return syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("tc", x, y), atom("e", x, y)),
		syntax.NewRule(atom("tc", x, z), atom("e", x, y), atom("tc", y, z)),
	})
}

func TestTransformBasePredicateIsUntransformed(t *testing.T) {
	program := tcProgram(t)
	q := syntax.NewQuery("e", syntax.MatchValue(syntax.Str("a")), syntax.Any())

	result, err := magic.Transform(program, q)
	require.NoError(t, err)
	require.Equal(t, "e", result.ResultSymbol)
	require.Empty(t, result.SeedSymbol)
	require.Empty(t, result.Program.Rules)
}

func TestTransformBoundQuerySeedsMagicPredicate(t *testing.T) {
	program := tcProgram(t)
	q := syntax.NewQuery("tc", syntax.MatchValue(syntax.Str("a")), syntax.Any())

	result, err := magic.Transform(program, q)
	require.NoError(t, err)
	require.Equal(t, "tc_bf", result.ResultSymbol)
	require.Equal(t, "magic_tc_bf", result.SeedSymbol)
	require.Equal(t, []syntax.Value{syntax.Str("a")}, result.SeedTuple)
	require.NotEmpty(t, result.Program.Rules)

	// Every rewritten rule's head must be the adorned tc_bf predicate or
	// a magic predicate — no rule head keeps the unadorned "tc" symbol.
	for _, r := range result.Program.Rules {
		require.NotEqual(t, "tc", r.Head.Symbol)
	}
}

func TestTransformAllFreeQueryStillProducesEmptySeedTuple(t *testing.T) {
	program := tcProgram(t)
	q := syntax.NewQuery("tc", syntax.Any(), syntax.Any())

	result, err := magic.Transform(program, q)
	require.NoError(t, err)
	require.Equal(t, "tc_ff", result.ResultSymbol)
	require.Equal(t, "magic_tc_ff", result.SeedSymbol)
	require.Empty(t, result.SeedTuple)
}

func TestTransformRewrittenRulesAreFromMangledValid(t *testing.T) {
	program := tcProgram(t)
	q := syntax.NewQuery("tc", syntax.MatchValue(syntax.Str("a")), syntax.Any())

	result, err := magic.Transform(program, q)
	require.NoError(t, err)

	adorned, err := syntax.FromMangled(result.Program.Rules)
	require.NoError(t, err)
	require.NotEmpty(t, adorned.Rules)
}

func TestTransformSameGenerationProducesDemandChain(t *testing.T) {
	x, y, z1, z2 := syntax.Var("x"), syntax.Var("y"), syntax.Var("z1"), syntax.Var("z2")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("sg", x, y), atom("flat", x, y)),
		syntax.NewRule(atom("sg", x, y), atom("up", x, z1), atom("sg", z1, z2), atom("down", z2, y)),
	})
	q := syntax.NewQuery("sg", syntax.MatchValue(syntax.Str("b1")), syntax.Any())

	result, err := magic.Transform(program, q)
	require.NoError(t, err)
	require.Equal(t, "sg_bf", result.ResultSymbol)
	require.Equal(t, "magic_sg_bf", result.SeedSymbol)

	var sawMagicRecursion, sawBaseCase bool
	for _, r := range result.Program.Rules {
		if r.Head.Symbol == "magic_sg_bf" {
			sawMagicRecursion = true
		}
		if r.Head.Symbol == "sg_bf" && len(r.Body) == 2 {
			sawBaseCase = true
		}
	}
	require.True(t, sawMagicRecursion, "expected a magic_sg_bf propagation rule")
	require.True(t, sawBaseCase, "expected the flat-based base case rewritten under sg_bf")
}
