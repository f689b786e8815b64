package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Capture is a single matched sub-node returned by a pattern query,
// labeled with its capture role name.
type Capture struct {
	Node sitter.Node
	Name string
}

// runQuery executes a compiled pattern query against a syntax tree and
// returns a flat (node, capture name) pair for every capture of every
// match. Queries are compiled once per session and cached by name.
func runQuery(sess *Session, lang, name, querySource string, root *sitter.Node, code []byte) ([]Capture, error) {
	query, captureNames, err := sess.Query(lang, name, querySource)
	if err != nil {
		return nil, err
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()

	matches := qc.Matches(query, root, code)

	var captures []Capture
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, c := range match.Captures {
			captures = append(captures, Capture{
				Node: c.Node,
				Name: captureNames[c.Index],
			})
		}
	}
	return captures, nil
}

// captureGroup is one logical record reconstructed from fragment
// captures. Groups are identified by their arena index (position in the
// result slice), assigned in encounter order within a single file parse.
type captureGroup struct {
	Node      sitter.Node
	fragments map[string][]sitter.Node
}

// groupCaptures seeds one group per node captured under recordName, then
// attaches every other capture to the narrowest group whose byte span
// contains it. The narrowest-span rule keeps fragments of a nested
// definition from landing on its enclosing definition's record.
// O(captures x groups); file-scoped only.
func groupCaptures(captures []Capture, recordName string) []*captureGroup {
	var groups []*captureGroup
	for _, c := range captures {
		if c.Name == recordName {
			groups = append(groups, &captureGroup{
				Node:      c.Node,
				fragments: make(map[string][]sitter.Node),
			})
		}
	}

	for _, c := range captures {
		if c.Name == recordName {
			continue
		}
		best := -1
		bestSpan := ^uint(0)
		for i, g := range groups {
			if c.Node.StartByte() >= g.Node.StartByte() && c.Node.EndByte() <= g.Node.EndByte() {
				span := g.Node.EndByte() - g.Node.StartByte()
				if span < bestSpan {
					best = i
					bestSpan = span
				}
			}
		}
		if best >= 0 {
			g := groups[best]
			g.fragments[c.Name] = append(g.fragments[c.Name], c.Node)
		}
	}

	return groups
}

// text returns the text of the last fragment captured under name.
// Last-write-wins is only used for mutually exclusive fields; repeated
// fields go through all().
func (g *captureGroup) text(name string, code []byte) string {
	nodes := g.fragments[name]
	if len(nodes) == 0 {
		return ""
	}
	return getNodeText(&nodes[len(nodes)-1], code)
}

// first returns the first fragment node captured under name, or nil.
func (g *captureGroup) first(name string) *sitter.Node {
	nodes := g.fragments[name]
	if len(nodes) == 0 {
		return nil
	}
	return &nodes[0]
}

// all returns every fragment node captured under name, in match order.
func (g *captureGroup) all(name string) []sitter.Node {
	return g.fragments[name]
}
