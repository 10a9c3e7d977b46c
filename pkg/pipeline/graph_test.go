package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGraphInfersEdgesFromFileOverlap(t *testing.T) {
	decls := []JobDeclaration{
		{Name: "produce", FilesOut: []string{"data.mat"}},
		{Name: "consume", FilesIn: []string{"data.mat"}, FilesOut: []string{"result.mat"}},
		{Name: "unrelated"},
	}

	p, err := BuildGraph("test", decls)
	require.NoError(t, err)

	produce := p.IndexOf("produce")
	consume := p.IndexOf("consume")
	unrelated := p.IndexOf("unrelated")

	assert.True(t, p.Graph.Get(produce, consume))
	assert.False(t, p.Graph.Get(produce, unrelated))
	assert.Equal(t, []string{"data.mat"}, p.Deps["consume"]["produce"])
}

func TestBuildGraphDuplicateNameIsECycle(t *testing.T) {
	decls := []JobDeclaration{
		{Name: "dup"},
		{Name: "dup"},
	}
	_, err := BuildGraph("test", decls)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCycle, kind)
}

func TestBuildGraphDetectsCycle(t *testing.T) {
	decls := []JobDeclaration{
		{Name: "a", FilesIn: []string{"b.out"}, FilesOut: []string{"a.out"}},
		{Name: "b", FilesIn: []string{"a.out"}, FilesOut: []string{"b.out"}},
	}
	_, err := BuildGraph("test", decls)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCycle, kind)
}

func TestTopologicalOrderRespectsEdges(t *testing.T) {
	m := NewBitMatrix(3)
	m.Set(0, 1)
	m.Set(1, 2)
	order := TopologicalOrder(m)
	require.Len(t, order, 3)

	pos := make(map[int]int, 3)
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos[0], pos[1])
	assert.Less(t, pos[1], pos[2])
}
