package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/graphweave/graphweave/internal/errors"
	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/storage"
	"github.com/graphweave/graphweave/internal/treesitter"
)

// memBackend records merged nodes and edges so tests can assert on
// graph shape without a Neo4j instance.
type memBackend struct {
	mu    sync.Mutex
	nodes map[string]graph.Node
	edges map[string]graph.Edge
}

func newMemBackend() *memBackend {
	return &memBackend{
		nodes: map[string]graph.Node{},
		edges: map[string]graph.Edge{},
	}
}

func nodeKey(label string, value any) string {
	return fmt.Sprintf("%s|%v", label, value)
}

func (b *memBackend) UpsertNode(ctx context.Context, node graph.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[nodeKey(node.Label, node.KeyValue)] = node
	return nil
}

func (b *memBackend) UpsertNodes(ctx context.Context, nodes []graph.Node) error {
	for _, n := range nodes {
		if err := b.UpsertNode(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBackend) UpsertEdge(ctx context.Context, edge graph.Edge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[nodeKey(edge.From.Label, edge.From.Value)]; !ok {
		return fmt.Errorf("from node missing: %s %v", edge.From.Label, edge.From.Value)
	}
	if _, ok := b.nodes[nodeKey(edge.To.Label, edge.To.Value)]; !ok {
		return fmt.Errorf("to node missing: %s %v", edge.To.Label, edge.To.Value)
	}
	key := fmt.Sprintf("%s|%v|%v", edge.Label, edge.From.Value, edge.To.Value)
	b.edges[key] = edge
	return nil
}

func (b *memBackend) UpsertEdges(ctx context.Context, edges []graph.Edge) error {
	for _, e := range edges {
		if err := b.UpsertEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *memBackend) ExecuteBatch(ctx context.Context, queries []graph.QueryWithParams) error {
	return nil
}

// Query answers the (path, name) function lookup used for cross-file
// call resolution.
func (b *memBackend) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if !strings.Contains(query, "MATCH (f:Function") {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.nodes {
		if n.Label != "Function" {
			continue
		}
		if n.Properties["path"] == params["path"] && n.Properties["name"] == params["name"] {
			return []map[string]any{{"unique_id": n.KeyValue}}, nil
		}
	}
	return nil, nil
}

func (b *memBackend) Write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return b.Query(ctx, query, params)
}

func (b *memBackend) Close(ctx context.Context) error { return nil }

func (b *memBackend) hasNode(label string, value any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.nodes[nodeKey(label, value)]
	return ok
}

func testProcessor(t *testing.T, backend graph.Backend, runs storage.RunStore) *Processor {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := graph.NewBuilder(backend, "my_app")
	return NewProcessor(DefaultConfig(), builder, runs, log)
}

func TestProcessRepository(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "lib/my_app/worker.ex", `defmodule MyApp.Worker do
  require Logger

  def run(job) do
    MyApp.Util.helper(job)
  end
end
`)
	writeRepoFile(t, root, "lib/my_app/util.ex", `defmodule MyApp.Util do
  def helper(job) do
    job
  end
end
`)

	backend := newMemBackend()
	processor := testProcessor(t, backend, nil)

	result, err := processor.ProcessRepository(context.Background(), root, "my_app")
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesTotal)
	assert.Equal(t, 2, result.FilesParsed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, result.Functions)
	assert.Equal(t, 2, result.Classes)
	assert.Positive(t, result.Nodes)
	assert.Positive(t, result.Edges)

	// graph identities use repo-relative slash paths
	assert.True(t, backend.hasNode("File", "lib/my_app/worker.ex"))
	assert.True(t, backend.hasNode("File", "lib/my_app/util.ex"))
	assert.True(t, backend.hasNode("Directory", "lib/my_app"))
	assert.True(t, backend.hasNode("Repository", "my_app"))

	// cross-file call resolved via the pre-scan index
	var callEdges []graph.Edge
	for key, e := range backend.edges {
		if strings.HasPrefix(key, "CALLS|") {
			callEdges = append(callEdges, e)
		}
	}
	require.NotEmpty(t, callEdges)
	found := false
	for _, e := range callEdges {
		if e.To.Value == graph.EntityID("lib/my_app/util.ex", "helper", 2) {
			found = true
		}
	}
	assert.True(t, found, "expected CALLS edge into lib/my_app/util.ex helper")
}

func TestProcessRepositoryToleratesIncompleteSource(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "lib/good.ex", "defmodule Good do\n  def ok(x) do\n    x\n  end\nend\n")
	writeRepoFile(t, root, "lib/bad.ex", "defmodule Bad do\n")

	backend := newMemBackend()
	processor := testProcessor(t, backend, nil)

	result, err := processor.ProcessRepository(context.Background(), root, "my_app")
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesParsed)
	assert.Empty(t, result.Errors)
}

func TestParseFailuresAreLowSeverity(t *testing.T) {
	processor := testProcessor(t, newMemBackend(), nil)

	sess := treesitter.NewSession()
	defer sess.Close()

	_, err := processor.parseOne(sess, t.TempDir(), "notes.txt")
	require.Error(t, err)
	assert.Equal(t, gwerrors.ErrorTypeParse, gwerrors.GetType(err))
	assert.False(t, gwerrors.IsFatal(err))
}

func TestProcessRepositoryRecordsRun(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "lib/a.ex", "defmodule A do\n  def go(x) do\n    x\n  end\nend\n")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	runs, err := storage.NewSQLiteRunStore(filepath.Join(t.TempDir(), "runs.db"), log)
	require.NoError(t, err)
	defer runs.Close()

	backend := newMemBackend()
	processor := testProcessor(t, backend, runs)

	result, err := processor.ProcessRepository(context.Background(), root, "my_app")
	require.NoError(t, err)

	run, err := runs.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.Equal(t, "my_app", run.RepoName)
	assert.Equal(t, 1, run.Files)
}

func TestProcessRepositoryWithFailedLedgerStillSucceeds(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "lib/a.ex", "defmodule A do\n  def go(x) do\n    x\n  end\nend\n")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	blocker := filepath.Join(t.TempDir(), "ledger")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// open failure must yield a nil interface, so recordRun skips the
	// ledger instead of dereferencing a typed-nil store
	runs, err := storage.NewRunStore("", filepath.Join(blocker, "runs.db"), log)
	require.Error(t, err)
	require.Nil(t, runs)

	backend := newMemBackend()
	processor := testProcessor(t, backend, runs)

	result, err := processor.ProcessRepository(context.Background(), root, "my_app")
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesParsed)
}

func TestRelPath(t *testing.T) {
	rel, ok := relPath("/repo", "/repo/lib/a.ex")
	require.True(t, ok)
	assert.Equal(t, "lib/a.ex", rel)

	_, ok = relPath("/repo", "/outside/a.ex")
	assert.False(t, ok)
}
