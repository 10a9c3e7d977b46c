package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizedFilesDedupesAndFiltersPlaceholders(t *testing.T) {
	j := JobDeclaration{
		FilesIn: []string{" a.txt", "a.txt", "", "gb_niak_omitted", "b.txt"},
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, j.NormalizedFilesIn())
}

func TestJobDeclarationEqual(t *testing.T) {
	a := JobDeclaration{
		Name:     "job1",
		Command:  "run thing",
		FilesIn:  []string{"a.txt", "b.txt"},
		FilesOut: []string{"c.txt"},
	}
	// Reordered file lists are still equal.
	b := JobDeclaration{
		Name:     "job1",
		Command:  "run thing",
		FilesIn:  []string{"b.txt", "a.txt"},
		FilesOut: []string{"c.txt"},
	}
	assert.True(t, a.Equal(b))

	c := b
	c.Command = "run other thing"
	assert.False(t, a.Equal(c))

	d := b
	d.FilesOut = []string{"c.txt", "d.txt"}
	assert.False(t, a.Equal(d))
}

func TestPipelineIndexOfAndJob(t *testing.T) {
	p := &Pipeline{
		ListJobs: []string{"a", "b"},
		Jobs: map[string]JobDeclaration{
			"a": {Name: "a"},
			"b": {Name: "b"},
		},
	}
	assert.Equal(t, 0, p.IndexOf("a"))
	assert.Equal(t, 1, p.IndexOf("b"))
	assert.Equal(t, -1, p.IndexOf("missing"))

	decl, ok := p.Job("a")
	assert.True(t, ok)
	assert.Equal(t, "a", decl.Name)

	_, ok = p.Job("missing")
	assert.False(t, ok)
}
