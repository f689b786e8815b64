package treesitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Nested definitions are the reason fragment attachment picks the
// narrowest containing group: the inner definition's name must land on
// the inner record, never the enclosing one.
func TestGroupCapturesNarrowestSpan(t *testing.T) {
	sess := newTestSession(t)
	code := []byte(`
def outer(a) do
  def inner(b) do
    b
  end
end
`)
	tree, err := sess.ParseSource(LangElixir, code)
	require.NoError(t, err)
	defer tree.Close()

	captures, err := runQuery(sess, LangElixir, "definitions", elixirDefinitionsQuery, tree.RootNode(), code)
	require.NoError(t, err)

	groups := groupCaptures(captures, "def")
	require.Len(t, groups, 2)

	names := map[string]bool{}
	for _, g := range groups {
		names[g.text("def_name", code)] = true
	}
	assert.True(t, names["outer"])
	assert.True(t, names["inner"])

	var outer, inner *captureGroup
	for _, g := range groups {
		switch g.text("def_name", code) {
		case "outer":
			outer = g
		case "inner":
			inner = g
		}
	}
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.True(t, inner.Node.StartByte() > outer.Node.StartByte())
	assert.True(t, inner.Node.EndByte() < outer.Node.EndByte())
	assert.Equal(t, []string{"b"}, splitTopLevelArgs(inner.text("def_args", code)))
}

func TestGroupCapturesEncounterOrder(t *testing.T) {
	sess := newTestSession(t)
	code := []byte(`
def first(a), do: a
def second(b), do: b
def third(c), do: c
`)
	tree, err := sess.ParseSource(LangElixir, code)
	require.NoError(t, err)
	defer tree.Close()

	captures, err := runQuery(sess, LangElixir, "definitions", elixirDefinitionsQuery, tree.RootNode(), code)
	require.NoError(t, err)

	groups := groupCaptures(captures, "def")
	require.Len(t, groups, 3)
	assert.Equal(t, "first", groups[0].text("def_name", code))
	assert.Equal(t, "second", groups[1].text("def_name", code))
	assert.Equal(t, "third", groups[2].text("def_name", code))
}

func TestGroupCapturesNoGroups(t *testing.T) {
	groups := groupCaptures(nil, "def")
	assert.Empty(t, groups)
}
