package treesitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess := NewSession()
	t.Cleanup(sess.Close)
	return sess
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseElixir(t *testing.T, code string, opts ParseOptions) *FileRecord {
	t.Helper()
	sess := newTestSession(t)
	path := writeFixture(t, "fixture.ex", code)
	record, err := (&elixirExtractor{}).Parse(sess, path, opts)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

func TestElixirParseSimpleFunction(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  def hello(name) do
    "Hello, #{name}!"
  end
end
`, ParseOptions{})

	require.Len(t, record.Functions, 1)
	fn := record.Functions[0]
	assert.Equal(t, "hello", fn.Name)
	assert.Equal(t, []string{"name"}, fn.Args)
	assert.Equal(t, "public", fn.Visibility)
	require.NotNil(t, fn.Context)
	assert.Equal(t, "MyApp.Example", *fn.Context)
	assert.Equal(t, "elixir", record.Lang)
}

func TestElixirParsePrivateFunction(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  defp internal_helper(x) do
    x * 2
  end
end
`, ParseOptions{})

	require.Len(t, record.Functions, 1)
	assert.Equal(t, "internal_helper", record.Functions[0].Name)
	assert.Equal(t, "private", record.Functions[0].Visibility)
}

func TestElixirParseModule(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Greeter do
  def greet, do: "hello"
end
`, ParseOptions{})

	require.Len(t, record.Classes, 1)
	assert.Equal(t, "MyApp.Greeter", record.Classes[0].Name)
	assert.Equal(t, "module", record.Classes[0].Kind)
}

func TestElixirParseProtocol(t *testing.T) {
	record := parseElixir(t, `
defprotocol Greetable do
  def greeting(thing)
end
`, ParseOptions{})

	require.Len(t, record.Classes, 1)
	assert.Equal(t, "Greetable", record.Classes[0].Name)
	assert.Equal(t, "protocol", record.Classes[0].Kind)
}

func TestElixirParseImports(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  alias MyApp.Config
  import Enum, only: [map: 2]
  require Logger
  use GenServer
end
`, ParseOptions{})

	byType := map[string]string{}
	for _, imp := range record.Imports {
		byType[imp.ImportType] = imp.Name
	}
	assert.Equal(t, "MyApp.Config", byType["alias"])
	assert.Equal(t, "Enum", byType["import"])
	assert.Equal(t, "Logger", byType["require"])
	assert.Equal(t, "GenServer", byType["use"])
}

func TestElixirParseDotCalls(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  def run do
    Logger.info("starting")
    GenServer.start_link(__MODULE__, [])
  end
end
`, ParseOptions{})

	fullNames := map[string]bool{}
	for _, c := range record.FunctionCalls {
		fullNames[c.FullName] = true
	}
	assert.True(t, fullNames["Logger.info"])
	assert.True(t, fullNames["GenServer.start_link"])
}

func TestElixirCallContext(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  def run(opts) do
    Logger.info("starting")
  end
end
`, ParseOptions{})

	require.Len(t, record.FunctionCalls, 1)
	call := record.FunctionCalls[0]
	require.NotNil(t, call.Context.Name)
	assert.Equal(t, "run", *call.Context.Name)
	require.NotNil(t, call.Context.Kind)
	assert.Equal(t, "def", *call.Context.Kind)
	require.NotNil(t, call.ClassContext)
	assert.Equal(t, "MyApp.Example", *call.ClassContext)
}

func TestElixirParseModuleAttributes(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  @greeting "Hello"
  @timeout 5000
end
`, ParseOptions{})

	names := map[string]bool{}
	for _, v := range record.Variables {
		names[v.Name] = true
	}
	assert.True(t, names["@greeting"])
	assert.True(t, names["@timeout"])
}

func TestElixirParseMacros(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Macros do
  defmacro my_macro(expr) do
    quote do
      unquote(expr) + 1
    end
  end
end
`, ParseOptions{})

	assert.Empty(t, record.Functions)
	require.Len(t, record.Macros, 1)
	assert.Equal(t, "my_macro", record.Macros[0].Name)
	assert.Equal(t, []string{"expr"}, record.Macros[0].Args)
}

func TestElixirComplexity(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Example do
  def classify(x, y) do
    if x > 0 do
      case y do
        1 -> :one
        _ -> :other
      end
    end
  end

  defp both(x, y) do
    x && y
  end
end
`, ParseOptions{})

	byName := map[string]Function{}
	for _, fn := range record.Functions {
		byName[fn.Name] = fn
	}
	assert.Equal(t, 3, byName["classify"].Complexity)
	assert.Equal(t, 2, byName["both"].Complexity)
}

func TestElixirDocstringAndSource(t *testing.T) {
	code := `
defmodule MyApp.Example do
  @doc "Greets a person by name"
  def hello(name) do
    "Hello, #{name}!"
  end
end
`
	record := parseElixir(t, code, ParseOptions{IndexSource: true})

	require.Len(t, record.Functions, 1)
	fn := record.Functions[0]
	assert.Contains(t, fn.Docstring, "Greets a person by name")
	assert.Contains(t, fn.Source, "def hello(name)")

	// Source is only captured on request.
	record = parseElixir(t, code, ParseOptions{})
	require.Len(t, record.Functions, 1)
	assert.Empty(t, record.Functions[0].Source)
	assert.Empty(t, record.Functions[0].Docstring)
}

func TestElixirDependencyFlag(t *testing.T) {
	record := parseElixir(t, `
defmodule MyApp.Dep do
  def f(x), do: x
end
`, ParseOptions{IsDependency: true})

	assert.True(t, record.IsDependency)
	require.Len(t, record.Functions, 1)
	assert.True(t, record.Functions[0].IsDependency)
}

func TestElixirPreScan(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()

	a := filepath.Join(dir, "a.ex")
	b := filepath.Join(dir, "b.ex")
	require.NoError(t, os.WriteFile(a, []byte(`
defmodule MyApp.A do
  def shared, do: :a
end
`), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`
defmodule MyApp.B do
  def shared, do: :b
  defp hidden, do: :b
end
`), 0o644))

	scan := (&elixirExtractor{}).PreScan(sess, []string{a, b})

	assert.Len(t, scan["MyApp.A"], 1)
	assert.Len(t, scan["MyApp.B"], 1)
	assert.Len(t, scan["shared"], 2)
	assert.Len(t, scan["hidden"], 1)
}

func TestElixirPreScanSkipsBadFiles(t *testing.T) {
	sess := newTestSession(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.ex")
	require.NoError(t, os.WriteFile(good, []byte(`
defmodule MyApp.Good do
end
`), 0o644))

	scan := (&elixirExtractor{}).PreScan(sess, []string{
		filepath.Join(dir, "missing.ex"),
		good,
	})

	assert.Len(t, scan["MyApp.Good"], 1)
}

func TestElixirParseMissingFile(t *testing.T) {
	sess := newTestSession(t)
	_, err := (&elixirExtractor{}).Parse(sess, filepath.Join(t.TempDir(), "nope.ex"), ParseOptions{})
	assert.Error(t, err)
}
