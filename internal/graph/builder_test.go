package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/graphweave/internal/treesitter"
)

// fakeBackend records upserts in maps keyed by stable identity, so
// repeated upserts of the same entity collapse exactly like MERGE does.
type fakeBackend struct {
	nodes map[string]Node
	edges map[string]Edge
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nodes: map[string]Node{},
		edges: map[string]Edge{},
	}
}

func (f *fakeBackend) nodeKey(n Node) string {
	return fmt.Sprintf("%s|%v", n.Label, n.KeyValue)
}

func (f *fakeBackend) UpsertNode(_ context.Context, node Node) error {
	f.nodes[f.nodeKey(node)] = node
	return nil
}

func (f *fakeBackend) UpsertNodes(ctx context.Context, nodes []Node) error {
	for _, n := range nodes {
		if err := f.UpsertNode(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) UpsertEdge(_ context.Context, edge Edge) error {
	fromKey := fmt.Sprintf("%s|%v", edge.From.Label, edge.From.Value)
	toKey := fmt.Sprintf("%s|%v", edge.To.Label, edge.To.Value)
	if _, ok := f.nodes[fromKey]; !ok {
		return fmt.Errorf("edge upsert matched no nodes: from %s", fromKey)
	}
	if _, ok := f.nodes[toKey]; !ok {
		return fmt.Errorf("edge upsert matched no nodes: to %s", toKey)
	}
	f.edges[edge.Label+"|"+fromKey+"|"+toKey] = edge
	return nil
}

func (f *fakeBackend) UpsertEdges(ctx context.Context, edges []Edge) error {
	for _, e := range edges {
		if err := f.UpsertEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) ExecuteBatch(context.Context, []QueryWithParams) error { return nil }

func (f *fakeBackend) Query(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	// only the (path, name) function lookup is needed by tests
	var rows []map[string]any
	for _, n := range f.nodes {
		if n.Label != "Function" {
			continue
		}
		if n.Properties["path"] == params["path"] && n.Properties["name"] == params["name"] {
			rows = append(rows, map[string]any{"unique_id": n.KeyValue})
		}
	}
	return rows, nil
}

func (f *fakeBackend) Write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return f.Query(ctx, query, params)
}

func (f *fakeBackend) Close(context.Context) error { return nil }

func sampleRecord() *treesitter.FileRecord {
	ctx := "MyApp.Worker"
	return &treesitter.FileRecord{
		Path: "lib/my_app/worker.ex",
		Lang: "elixir",
		Functions: []treesitter.Function{
			{Name: "run", LineNumber: 5, EndLine: 12, Args: []string{"opts"}, Visibility: "public", Complexity: 2, Context: &ctx, Lang: "elixir"},
			{Name: "helper", LineNumber: 14, EndLine: 18, Args: []string{"x"}, Visibility: "private", Complexity: 1, Context: &ctx, Lang: "elixir"},
		},
		Classes: []treesitter.Class{
			{Name: "MyApp.Worker", LineNumber: 1, EndLine: 20, Kind: "module", Lang: "elixir"},
		},
		Imports: []treesitter.Import{
			{Name: "Logger", FullImportName: "require Logger", ImportType: "require", LineNumber: 2, Lang: "elixir"},
		},
		FunctionCalls: []treesitter.Call{
			{Name: "helper", FullName: "helper", LineNumber: 7, Lang: "elixir"},
		},
	}
}

func TestIngestRecordIdempotent(t *testing.T) {
	backend := newFakeBackend()
	builder := NewBuilder(backend, "myrepo")
	ctx := context.Background()

	require.NoError(t, builder.EnsureRepository(ctx))
	_, err := builder.IngestRecord(ctx, sampleRecord())
	require.NoError(t, err)

	nodesAfterFirst := len(backend.nodes)
	edgesAfterFirst := len(backend.edges)
	assert.Greater(t, nodesAfterFirst, 0)
	assert.Greater(t, edgesAfterFirst, 0)

	// second ingestion of the unchanged file changes no counts
	_, err = builder.IngestRecord(ctx, sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, nodesAfterFirst, len(backend.nodes))
	assert.Equal(t, edgesAfterFirst, len(backend.edges))
}

func TestIngestRecordHierarchy(t *testing.T) {
	backend := newFakeBackend()
	builder := NewBuilder(backend, "myrepo")
	ctx := context.Background()

	require.NoError(t, builder.EnsureRepository(ctx))
	_, err := builder.IngestRecord(ctx, sampleRecord())
	require.NoError(t, err)

	assert.Contains(t, backend.nodes, "Directory|lib")
	assert.Contains(t, backend.nodes, "Directory|lib/my_app")
	assert.Contains(t, backend.edges, "CONTAINS|Repository|myrepo|Directory|lib")
	assert.Contains(t, backend.edges, "CONTAINS|Directory|lib|Directory|lib/my_app")
	assert.Contains(t, backend.edges, "CONTAINS|Directory|lib/my_app|File|lib/my_app/worker.ex")
}

func TestLinkPathHierarchyTopLevelFile(t *testing.T) {
	backend := newFakeBackend()
	ctx := context.Background()

	require.NoError(t, backend.UpsertNode(ctx, Node{Label: "Repository", Key: "name", KeyValue: "r"}))
	require.NoError(t, backend.UpsertNode(ctx, Node{Label: "File", Key: "path", KeyValue: "mix.exs"}))

	counts, err := LinkPathHierarchy(ctx, backend, "r", "mix.exs")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Nodes)
	assert.Equal(t, 1, counts.Edges)
	assert.Contains(t, backend.edges, "CONTAINS|Repository|r|File|mix.exs")
}

func TestLinkPathHierarchyRejectsEscapingPath(t *testing.T) {
	backend := newFakeBackend()
	_, err := LinkPathHierarchy(context.Background(), backend, "r", "../outside.ex")
	assert.Error(t, err)
}

func TestCallerForLineNarrowestSpan(t *testing.T) {
	functions := []treesitter.Function{
		{Name: "outer", LineNumber: 1, EndLine: 20},
		{Name: "inner", LineNumber: 5, EndLine: 10},
	}

	caller, ok := CallerForLine(functions, 7)
	require.True(t, ok)
	assert.Equal(t, "inner", caller.Name)

	caller, ok = CallerForLine(functions, 15)
	require.True(t, ok)
	assert.Equal(t, "outer", caller.Name)

	_, ok = CallerForLine(functions, 99)
	assert.False(t, ok)
}

func TestLinkCallsSameFile(t *testing.T) {
	backend := newFakeBackend()
	builder := NewBuilder(backend, "myrepo")
	ctx := context.Background()

	require.NoError(t, builder.EnsureRepository(ctx))
	rec := sampleRecord()
	_, err := builder.IngestRecord(ctx, rec)
	require.NoError(t, err)

	counts, err := builder.LinkCalls(ctx, []*treesitter.FileRecord{rec}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Edges)

	callerID := EntityID(rec.Path, "run", 5)
	calleeID := EntityID(rec.Path, "helper", 14)
	assert.Contains(t, backend.edges,
		"CALLS|Function|"+callerID+"|Function|"+calleeID)
}

func TestLinkCallsCrossFileViaPreScan(t *testing.T) {
	backend := newFakeBackend()
	builder := NewBuilder(backend, "myrepo")
	ctx := context.Background()
	require.NoError(t, builder.EnsureRepository(ctx))

	callee := &treesitter.FileRecord{
		Path: "lib/my_app/util.ex",
		Lang: "elixir",
		Functions: []treesitter.Function{
			{Name: "normalize", LineNumber: 3, EndLine: 6, Visibility: "public", Lang: "elixir"},
		},
	}
	caller := &treesitter.FileRecord{
		Path: "lib/my_app/worker.ex",
		Lang: "elixir",
		Functions: []treesitter.Function{
			{Name: "run", LineNumber: 2, EndLine: 8, Visibility: "public", Lang: "elixir"},
		},
		FunctionCalls: []treesitter.Call{
			{Name: "normalize", FullName: "Util.normalize", LineNumber: 4, Lang: "elixir"},
		},
	}
	for _, rec := range []*treesitter.FileRecord{callee, caller} {
		_, err := builder.IngestRecord(ctx, rec)
		require.NoError(t, err)
	}

	prescan := map[string][]string{
		"normalize": {"lib/my_app/util.ex"},
	}
	counts, err := builder.LinkCalls(ctx, []*treesitter.FileRecord{caller}, prescan)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Edges)

	callerID := EntityID(caller.Path, "run", 2)
	calleeID := EntityID(callee.Path, "normalize", 3)
	assert.Contains(t, backend.edges,
		"CALLS|Function|"+callerID+"|Function|"+calleeID)
}

func TestLinkCallsModuleLevelCallDropped(t *testing.T) {
	backend := newFakeBackend()
	builder := NewBuilder(backend, "myrepo")
	ctx := context.Background()
	require.NoError(t, builder.EnsureRepository(ctx))

	rec := &treesitter.FileRecord{
		Path: "lib/top.ex",
		Lang: "elixir",
		FunctionCalls: []treesitter.Call{
			{Name: "configure", FullName: "App.configure", LineNumber: 1, Lang: "elixir"},
		},
	}
	_, err := builder.IngestRecord(ctx, rec)
	require.NoError(t, err)

	counts, err := builder.LinkCalls(ctx, []*treesitter.FileRecord{rec}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Edges)
}

func TestLinkCallsImportsEdges(t *testing.T) {
	backend := newFakeBackend()
	builder := NewBuilder(backend, "myrepo")
	ctx := context.Background()
	require.NoError(t, builder.EnsureRepository(ctx))

	target := &treesitter.FileRecord{
		Path: "lib/my_app/config.ex",
		Lang: "elixir",
		Classes: []treesitter.Class{
			{Name: "MyApp.Config", LineNumber: 1, EndLine: 4, Kind: "module", Lang: "elixir"},
		},
	}
	source := &treesitter.FileRecord{
		Path: "lib/my_app/worker.ex",
		Lang: "elixir",
		Imports: []treesitter.Import{
			{Name: "MyApp.Config", FullImportName: "alias MyApp.Config", ImportType: "alias", LineNumber: 2, Lang: "elixir"},
		},
	}
	for _, rec := range []*treesitter.FileRecord{target, source} {
		_, err := builder.IngestRecord(ctx, rec)
		require.NoError(t, err)
	}

	prescan := map[string][]string{
		"MyApp.Config": {"lib/my_app/config.ex"},
	}
	counts, err := builder.LinkCalls(ctx, []*treesitter.FileRecord{source}, prescan)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Edges)
	assert.Contains(t, backend.edges,
		"IMPORTS|File|lib/my_app/worker.ex|File|lib/my_app/config.ex")
}

func TestEntityID(t *testing.T) {
	assert.Equal(t, "lib/a.ex:run:5", EntityID("lib/a.ex", "run", 5))
}
