package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexkernel/datalogcore/internal/storage"
	"github.com/cortexkernel/datalogcore/internal/syntax"
)

func v(s string) syntax.Value { return syntax.Str(s) }

func TestFactSetDeduplicatesByValue(t *testing.T) {
	fs := storage.NewFactSet()
	require.True(t, fs.Insert(storage.NewFact(v("a"), v("b"))))
	require.False(t, fs.Insert(storage.NewFact(v("a"), v("b"))))
	require.Equal(t, 1, fs.Len())
	require.True(t, fs.Contains(storage.NewFact(v("a"), v("b"))))
	require.False(t, fs.Contains(storage.NewFact(v("a"), v("c"))))
}

func TestRelationStorageIsTotal(t *testing.T) {
	rs := storage.NewRelationStorage([]string{"e", "tc"})
	require.Empty(t, rs.GetRelation("e").Facts())
	require.Empty(t, rs.GetRelation("unseeded").Facts())
}

func TestRelationStorageRemove(t *testing.T) {
	rs := storage.NewRelationStorage(nil)
	f := storage.NewFact(v("a"), v("b"))
	rs.Insert("e", f)
	require.True(t, rs.Contains("e", f))
	require.True(t, rs.Remove("e", f))
	require.False(t, rs.Contains("e", f))
	require.False(t, rs.Remove("e", f))
}

func TestRelationStorageLenExcludesReservedSymbols(t *testing.T) {
	rs := storage.NewRelationStorage(nil)
	rs.Insert("tc", storage.NewFact(v("a"), v("b")))
	rs.Insert("delete_tc", storage.NewFact(v("a"), v("b")))
	rs.Insert("rederive_tc", storage.NewFact(v("a"), v("b")))
	rs.Insert("magic_tc_bf", storage.NewFact(v("a")))
	require.Equal(t, 1, rs.Len())
}

func TestRelationStorageDrainAllRelationsEmptiesEverything(t *testing.T) {
	rs := storage.NewRelationStorage(nil)
	rs.Insert("e", storage.NewFact(v("a"), v("b")))
	rs.Insert("tc", storage.NewFact(v("a"), v("b")))

	drained := rs.DrainAllRelations()
	require.Len(t, drained["e"], 1)
	require.Len(t, drained["tc"], 1)
	require.True(t, rs.IsEmpty())
}

func TestEphemeralFlattenAndColumn(t *testing.T) {
	left := storage.FactRef(storage.NewFact(v("a"), v("b")))
	right := storage.FactRef(storage.NewFact(v("c")))
	joined := storage.Concat(left, right)

	flat := joined.Flatten()
	require.Equal(t, []syntax.Value{v("a"), v("b"), v("c")}, flat)
	require.Equal(t, v("a"), joined.Column(0))
	require.Equal(t, v("b"), joined.Column(1))
	require.Equal(t, v("c"), joined.Column(2))
}

func TestEphemeralColumnOutOfRangePanics(t *testing.T) {
	e := storage.FactRef(storage.NewFact(v("a")))
	require.Panics(t, func() { e.Column(5) })
}

func TestIndexStoragePromoteMovesDiffToInner(t *testing.T) {
	ix := storage.NewIndexStorage()
	ix.AddIndex("e", []int{0})

	e1 := storage.FactRef(storage.NewFact(v("a"), v("b")))
	ix.BorrowAll("e", []storage.Ephemeral{e1})

	require.True(t, ix.HasDiff("e"))
	require.Len(t, ix.Diff("e"), 1)
	require.Empty(t, ix.Inner("e"))

	matches := ix.Probe("e", []int{0}, []syntax.Value{v("a")}, true)
	require.Len(t, matches, 1)
	require.Empty(t, ix.Probe("e", []int{0}, []syntax.Value{v("a")}, false))

	ix.Promote()
	require.Empty(t, ix.Diff("e"))
	require.Len(t, ix.Inner("e"), 1)
	require.Empty(t, ix.Probe("e", []int{0}, []syntax.Value{v("a")}, true))
	require.Len(t, ix.Probe("e", []int{0}, []syntax.Value{v("a")}, false), 1)
}

func TestIndexStorageMarkEvaluatedResetsOnPromote(t *testing.T) {
	ix := storage.NewIndexStorage()
	require.True(t, ix.MarkEvaluated("e_0=a"))
	require.False(t, ix.MarkEvaluated("e_0=a"))
	ix.Promote()
	require.True(t, ix.MarkEvaluated("e_0=a"))
}

func TestRelationStorageTotalLenCountsReservedSymbols(t *testing.T) {
	rs := storage.NewRelationStorage(nil)
	rs.Insert("tc", storage.NewFact(v("a"), v("b")))
	rs.Insert("delete_tc", storage.NewFact(v("a"), v("b")))
	require.Equal(t, 1, rs.Len())
	require.Equal(t, 2, rs.TotalLen())
}

func TestIndexStorageProbeUnregisteredIndexPanics(t *testing.T) {
	ix := storage.NewIndexStorage()
	require.Panics(t, func() { ix.Probe("e", []int{0}, []syntax.Value{v("a")}, true) })
}
