package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMergeNode(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildMergeNode("Function", "unique_id", "lib/a.ex:run:5", map[string]any{
		"name": "run",
		"path": "lib/a.ex",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cypher, "MERGE (n:Function {unique_id: $p0})"))
	assert.Contains(t, cypher, "SET ")
	// unique value plus two properties
	assert.Len(t, b.Params(), 3)
	assert.Equal(t, "lib/a.ex:run:5", b.Params()["p0"])
}

func TestBuildMergeNodeNoProperties(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildMergeNode("Repository", "name", "myrepo", nil)
	require.NoError(t, err)
	assert.NotContains(t, cypher, "SET")
}

func TestBuildMergeNodeSkipsUniqueKeyInSet(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.BuildMergeNode("File", "path", "lib/a.ex", map[string]any{
		"path": "lib/a.ex",
		"name": "a.ex",
	})
	require.NoError(t, err)
	assert.Len(t, b.Params(), 2)
}

func TestBuildMergeNodeRejectsInvalidLabel(t *testing.T) {
	tests := []string{"", "Bad Label", "Label;DROP", "1Label", "Label-x"}
	for _, label := range tests {
		b := NewCypherBuilder()
		_, err := b.BuildMergeNode(label, "id", 1, nil)
		assert.Error(t, err, "label %q should be rejected", label)
	}
}

func TestBuildMergeNodeRejectsInvalidPropertyKey(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.BuildMergeNode("File", "path", "x", map[string]any{
		"bad key": 1,
	})
	assert.Error(t, err)
}

func TestBuildMergeEdge(t *testing.T) {
	b := NewCypherBuilder()
	cypher, err := b.BuildMergeEdge(
		"Function", "unique_id", "a:run:1",
		"Function", "unique_id", "b:helper:2",
		"CALLS",
		map[string]any{"scip_verified": true},
	)
	require.NoError(t, err)

	assert.Contains(t, cypher, "MATCH (from:Function {unique_id: $p0})")
	assert.Contains(t, cypher, "MATCH (to:Function {unique_id: $p1})")
	assert.Contains(t, cypher, "MERGE (from)-[r:CALLS]->(to)")
	assert.Contains(t, cypher, "r.scip_verified = $p2")
	assert.Equal(t, true, b.Params()["p2"])
}

func TestBuildMergeEdgeRejectsInvalidEdgeLabel(t *testing.T) {
	b := NewCypherBuilder()
	_, err := b.BuildMergeEdge("A", "id", 1, "B", "id", 2, "BAD EDGE", nil)
	assert.Error(t, err)
}

func TestIsValidIdentifier(t *testing.T) {
	assert.True(t, isValidIdentifier("unique_id"))
	assert.True(t, isValidIdentifier("_private"))
	assert.True(t, isValidIdentifier("CALLS"))
	assert.False(t, isValidIdentifier(""))
	assert.False(t, isValidIdentifier("9lives"))
	assert.False(t, isValidIdentifier("a-b"))
	assert.False(t, isValidIdentifier("a b"))
}
