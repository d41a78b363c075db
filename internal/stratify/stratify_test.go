package stratify_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexkernel/datalogcore/internal/engineerrors"
	"github.com/cortexkernel/datalogcore/internal/stratify"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

func atom(symbol string, terms ...syntax.Term) syntax.Atom {
	return syntax.NewAtom(symbol, terms...)
}

func negAtom(symbol string, terms ...syntax.Term) syntax.Atom {
	return syntax.NewNegatedAtom(symbol, terms...)
}

// base(x,y) <- edge(x,y); derived(x,y) <- base(x,y); derived(x,z) <-
// derived(x,y), base(y,z); top(x,z) <- derived(x,y), base(y,z). Three
// strata: {base}, {derived}, {top}.
func TestStrataOrdersDependenciesFirst(t *testing.T) {
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("base", x, y), atom("edge", x, y)),
		syntax.NewRule(atom("derived", x, y), atom("base", x, y)),
		syntax.NewRule(atom("derived", x, z), atom("derived", x, y), atom("base", y, z)),
		syntax.NewRule(atom("top", x, z), atom("derived", x, y), atom("base", y, z)),
	})

	strata, err := stratify.Strata(program)
	require.NoError(t, err)
	require.Len(t, strata, 3)

	headOf := func(s stratify.Stratum) string { return s.Rules[0].Head.Symbol }
	require.Equal(t, "base", headOf(strata[0]))
	require.Equal(t, "derived", headOf(strata[1]))
	require.Equal(t, "top", headOf(strata[2]))
	require.Len(t, strata[1].Rules, 2)
}

func TestStrataAllowsPositiveRecursionWithinOneStratum(t *testing.T) {
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("tc", x, y), atom("e", x, y)),
		syntax.NewRule(atom("tc", x, z), atom("e", x, y), atom("tc", y, z)),
	})

	strata, err := stratify.Strata(program)
	require.NoError(t, err)
	require.Len(t, strata, 1)
	require.Len(t, strata[0].Rules, 2)
}

func TestStrataRejectsNegationCycle(t *testing.T) {
	x := syntax.Var("x")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("p", x), negAtom("q", x)),
		syntax.NewRule(atom("q", x), negAtom("p", x)),
	})

	_, err := stratify.Strata(program)
	require.Error(t, err)
	require.True(t, errors.Is(err, engineerrors.ErrUnstratifiableNegation))
}

func TestStrataAllowsNegationAcrossStrata(t *testing.T) {
	x := syntax.Var("x")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("base", x), atom("edge", x)),
		syntax.NewRule(atom("derived", x), negAtom("base", x)),
	})

	strata, err := stratify.Strata(program)
	require.NoError(t, err)
	require.Len(t, strata, 2)
}

func TestSplitSeparatesRecursiveFromNonrecursive(t *testing.T) {
	x, y, z := syntax.Var("x"), syntax.Var("y"), syntax.Var("z")
	rules := []syntax.Rule{
		syntax.NewRule(atom("tc", x, y), atom("e", x, y)),
		syntax.NewRule(atom("tc", x, z), atom("e", x, y), atom("tc", y, z)),
	}
	nonrecursive, recursive := stratify.Split(rules)
	require.Len(t, nonrecursive, 1)
	require.Len(t, recursive, 1)
	require.True(t, recursive[0].IsSelfRecursive())
}

func TestSortProgramFlattensInDependencyOrder(t *testing.T) {
	x, y := syntax.Var("x"), syntax.Var("y")
	program := syntax.MustFrom([]syntax.Rule{
		syntax.NewRule(atom("derived", x, y), atom("base", x, y)),
		syntax.NewRule(atom("base", x, y), atom("edge", x, y)),
	})

	sorted, err := stratify.SortProgram(program)
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	require.Equal(t, "base", sorted[0].Head.Symbol)
	require.Equal(t, "derived", sorted[1].Head.Symbol)
}
