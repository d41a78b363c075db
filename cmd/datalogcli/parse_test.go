package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

func TestParseProgramFileSeparatesRulesFromFacts(t *testing.T) {
	src := `# comment lines and blanks are ignored

e(a, b).
e(b, c).
tc(X, Y) :- e(X, Y).
tc(X, Z) :- e(X, Y), tc(Y, Z).
`
	pp, err := parseProgramFile(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, pp.facts["e"], 2)
	require.Len(t, pp.rules, 2)
}

func TestParseClauseRejectsUngroundFact(t *testing.T) {
	pp := &parsedProgram{facts: make(map[string][]*storage.Fact)}
	err := parseClause(pp, "e(X, b)")
	require.Error(t, err)
}

func TestParseAtomRejectsMalformedInput(t *testing.T) {
	_, err := parseAtom("tc(a, b")
	require.Error(t, err)
}

func TestParseBodySplitsOnTopLevelCommasOnly(t *testing.T) {
	body, err := parseBody("e(x, y), tc(y, z)")
	require.NoError(t, err)
	require.Len(t, body, 2)
	require.Equal(t, "e", body[0].Symbol)
	require.Equal(t, "tc", body[1].Symbol)
}

func TestParseBodyHandlesNegation(t *testing.T) {
	body, err := parseBody("e(x, y), !blocked(x, y)")
	require.NoError(t, err)
	require.Len(t, body, 2)
	require.True(t, body[0].Sign)
	require.False(t, body[1].Sign)
}

func TestParseTermDistinguishesVariablesAndLiterals(t *testing.T) {
	require.True(t, parseTerm("X").IsVariable())
	require.True(t, parseTerm("_").IsVariable())
	require.False(t, parseTerm("atlanta").IsVariable())
	require.Equal(t, syntax.Str("atlanta"), parseTerm("atlanta").ConstValue())
	require.Equal(t, syntax.Int(42), parseTerm("42").ConstValue())
	require.Equal(t, syntax.Bool(true), parseTerm("true").ConstValue())
}

func TestParseMatchersConvertsVariablesToWildcards(t *testing.T) {
	q, err := parseMatchers("tc(atlanta, X)")
	require.NoError(t, err)
	require.Equal(t, "tc", q.Symbol)
	require.Len(t, q.Matchers, 2)
}
