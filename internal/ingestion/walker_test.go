package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRepoFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalkSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "lib/my_app/worker.ex", "defmodule MyApp.Worker do\nend\n")
	writeRepoFile(t, root, "test/worker_test.exs", "defmodule MyApp.WorkerTest do\nend\n")
	writeRepoFile(t, root, "lib/my_app_web/live/page.heex", "<div></div>\n")
	writeRepoFile(t, root, "README.md", "# readme\n")
	writeRepoFile(t, root, "_build/dev/lib/gen.ex", "defmodule Gen do\nend\n")
	writeRepoFile(t, root, "deps/phoenix/lib/phoenix.ex", "defmodule Phoenix do\nend\n")
	writeRepoFile(t, root, ".elixir_ls/trace.ex", "x\n")
	writeRepoFile(t, root, "priv/static/assets/page.heex", "<div></div>\n")

	files, err := WalkSourceFiles(root)
	require.NoError(t, err)

	rels := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
	}

	assert.ElementsMatch(t, []string{
		"lib/my_app/worker.ex",
		"test/worker_test.exs",
		"lib/my_app_web/live/page.heex",
	}, rels)
}

func TestCountFiles(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "lib/a.ex", "defmodule A do\nend\n")
	writeRepoFile(t, root, "lib/b.ex", "defmodule B do\nend\n")
	writeRepoFile(t, root, "mix.exs", "defmodule Mix do\nend\n")
	writeRepoFile(t, root, "lib/c.heex", "<div></div>\n")

	stats, err := CountFiles(root)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Elixir)
	assert.Equal(t, 1, stats.Scripts)
	assert.Equal(t, 1, stats.Templates)
	assert.Equal(t, 0, stats.Skipped)
}

func TestIsGeneratedFile(t *testing.T) {
	assert.True(t, isGeneratedFile("/repo/_build/dev/lib/x.ex"))
	assert.True(t, isGeneratedFile("/repo/deps/phoenix/lib/phoenix.ex"))
	assert.True(t, isGeneratedFile("/repo/priv/static/assets/page.heex"))
	assert.False(t, isGeneratedFile("/repo/lib/my_app/worker.ex"))
	assert.False(t, isGeneratedFile("/repo/priv/repo/migrations/init.exs"))
}
