package graph

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/graphweave/graphweave/internal/treesitter"
)

// Builder turns structural file records into graph nodes and edges.
// Every write is an upsert keyed by a stable identity, so re-ingesting
// an unchanged file leaves node and edge counts untouched.
type Builder struct {
	backend  Backend
	repoName string
	log      *slog.Logger
}

// IngestCounts summarizes one ingestion call.
type IngestCounts struct {
	Nodes int
	Edges int
}

func (c *IngestCounts) add(other IngestCounts) {
	c.Nodes += other.Nodes
	c.Edges += other.Edges
}

// NewBuilder creates a builder writing into backend under repoName.
func NewBuilder(backend Backend, repoName string) *Builder {
	return &Builder{
		backend:  backend,
		repoName: repoName,
		log:      slog.Default().With("component", "graph_builder"),
	}
}

// EnsureRepository merges the repository root node.
func (b *Builder) EnsureRepository(ctx context.Context) error {
	return b.backend.UpsertNode(ctx, Node{
		Label:    "Repository",
		Key:      UniqueKey("Repository"),
		KeyValue: b.repoName,
		Properties: map[string]any{
			"name": b.repoName,
		},
	})
}

// IngestRecord upserts the File node, its directory chain, every entity
// node in the record, and File-CONTAINS-entity edges.
func (b *Builder) IngestRecord(ctx context.Context, rec *treesitter.FileRecord) (IngestCounts, error) {
	var counts IngestCounts

	fileNode := Node{
		Label:    "File",
		Key:      UniqueKey("File"),
		KeyValue: rec.Path,
		Properties: map[string]any{
			"name":          path.Base(rec.Path),
			"path":          rec.Path,
			"lang":          rec.Lang,
			"is_dependency": rec.IsDependency,
		},
	}
	if err := b.backend.UpsertNode(ctx, fileNode); err != nil {
		return counts, err
	}
	counts.Nodes++

	hierCounts, err := LinkPathHierarchy(ctx, b.backend, b.repoName, rec.Path)
	if err != nil {
		return counts, err
	}
	counts.add(hierCounts)

	nodes, edges := b.entityGraph(rec)
	if err := b.backend.UpsertNodes(ctx, nodes); err != nil {
		return counts, err
	}
	counts.Nodes += len(nodes)
	if err := b.backend.UpsertEdges(ctx, edges); err != nil {
		return counts, err
	}
	counts.Edges += len(edges)

	return counts, nil
}

// entityGraph builds the node and edge set for one record's entities.
func (b *Builder) entityGraph(rec *treesitter.FileRecord) ([]Node, []Edge) {
	var nodes []Node
	var edges []Edge

	fileRef := NodeRef{Label: "File", Key: UniqueKey("File"), Value: rec.Path}

	contains := func(label, id string) {
		edges = append(edges, Edge{
			Label: "CONTAINS",
			From:  fileRef,
			To:    NodeRef{Label: label, Key: "unique_id", Value: id},
		})
	}

	for _, fn := range rec.Functions {
		id := EntityID(rec.Path, fn.Name, fn.LineNumber)
		nodes = append(nodes, Node{
			Label:    "Function",
			Key:      "unique_id",
			KeyValue: id,
			Properties: map[string]any{
				"name":          fn.Name,
				"path":          rec.Path,
				"line_number":   fn.LineNumber,
				"end_line":      fn.EndLine,
				"args":          fn.Args,
				"visibility":    fn.Visibility,
				"complexity":    fn.Complexity,
				"context":       derefOrNil(fn.Context),
				"lang":          fn.Lang,
				"is_dependency": fn.IsDependency,
			},
		})
		contains("Function", id)
	}

	for _, cls := range rec.Classes {
		id := EntityID(rec.Path, cls.Name, cls.LineNumber)
		nodes = append(nodes, Node{
			Label:    "Class",
			Key:      "unique_id",
			KeyValue: id,
			Properties: map[string]any{
				"name":          cls.Name,
				"path":          rec.Path,
				"line_number":   cls.LineNumber,
				"end_line":      cls.EndLine,
				"kind":          cls.Kind,
				"context":       derefOrNil(cls.Context),
				"lang":          cls.Lang,
				"is_dependency": cls.IsDependency,
			},
		})
		contains("Class", id)
	}

	for _, v := range rec.Variables {
		id := EntityID(rec.Path, v.Name, v.LineNumber)
		nodes = append(nodes, Node{
			Label:    "Variable",
			Key:      "unique_id",
			KeyValue: id,
			Properties: map[string]any{
				"name":          v.Name,
				"path":          rec.Path,
				"line_number":   v.LineNumber,
				"value":         v.Value,
				"type":          v.Type,
				"context":       derefOrNil(v.Context),
				"lang":          v.Lang,
				"is_dependency": v.IsDependency,
			},
		})
		contains("Variable", id)
	}

	for _, imp := range rec.Imports {
		id := EntityID(rec.Path, imp.Name, imp.LineNumber)
		nodes = append(nodes, Node{
			Label:    "Import",
			Key:      "unique_id",
			KeyValue: id,
			Properties: map[string]any{
				"name":             imp.Name,
				"path":             rec.Path,
				"line_number":      imp.LineNumber,
				"full_import_name": imp.FullImportName,
				"import_type":      imp.ImportType,
				"lang":             imp.Lang,
				"is_dependency":    imp.IsDependency,
			},
		})
		contains("Import", id)
	}

	for _, m := range rec.Macros {
		id := EntityID(rec.Path, m.Name, m.LineNumber)
		nodes = append(nodes, Node{
			Label:    "Macro",
			Key:      "unique_id",
			KeyValue: id,
			Properties: map[string]any{
				"name":          m.Name,
				"path":          rec.Path,
				"line_number":   m.LineNumber,
				"end_line":      m.EndLine,
				"args":          m.Args,
				"context":       derefOrNil(m.Context),
				"lang":          m.Lang,
				"is_dependency": m.IsDependency,
			},
		})
		contains("Macro", id)
	}

	return nodes, edges
}

// LinkCalls adds heuristic CALLS and IMPORTS edges for a batch of
// records, after every record's nodes are in the graph. Heuristic edges
// carry no scip_verified flag; the precise indexer's verified edges are
// a separate, stronger signal.
func (b *Builder) LinkCalls(ctx context.Context, records []*treesitter.FileRecord, prescan map[string][]string) (IngestCounts, error) {
	var counts IngestCounts
	var edges []Edge

	for _, rec := range records {
		for _, call := range rec.FunctionCalls {
			caller, ok := CallerForLine(rec.Functions, call.LineNumber)
			if !ok {
				// module-level call, no attributable caller
				continue
			}
			callerID := EntityID(rec.Path, caller.Name, caller.LineNumber)

			targets := b.resolveCallTargets(ctx, rec, call, prescan)
			for _, target := range targets {
				edges = append(edges, Edge{
					Label: "CALLS",
					From:  NodeRef{Label: "Function", Key: "unique_id", Value: callerID},
					To:    NodeRef{Label: "Function", Key: "unique_id", Value: target},
					Properties: map[string]any{
						"line_number": call.LineNumber,
						"full_name":   call.FullName,
					},
				})
			}
		}

		for _, imp := range rec.Imports {
			for _, targetPath := range prescan[imp.Name] {
				if targetPath == rec.Path {
					continue
				}
				edges = append(edges, Edge{
					Label: "IMPORTS",
					From:  NodeRef{Label: "File", Key: UniqueKey("File"), Value: rec.Path},
					To:    NodeRef{Label: "File", Key: UniqueKey("File"), Value: targetPath},
					Properties: map[string]any{
						"import_type": imp.ImportType,
						"line_number": imp.LineNumber,
					},
				})
			}
		}
	}

	for _, edge := range edges {
		if err := b.backend.UpsertEdge(ctx, edge); err != nil {
			// targets resolved heuristically may not exist as nodes
			b.log.Debug("skipping unresolvable edge", "label", edge.Label, "error", err)
			continue
		}
		counts.Edges++
	}
	return counts, nil
}

// resolveCallTargets finds candidate callee unique_ids for a call:
// same-file definitions first, then cross-file candidates resolved
// through the prescan map and a (path, name) graph lookup. An exact
// match in the current file wins outright.
func (b *Builder) resolveCallTargets(ctx context.Context, rec *treesitter.FileRecord, call treesitter.Call, prescan map[string][]string) []string {
	for _, fn := range rec.Functions {
		if fn.Name == call.Name {
			return []string{EntityID(rec.Path, fn.Name, fn.LineNumber)}
		}
	}

	var targets []string
	for _, targetPath := range prescan[call.Name] {
		if targetPath == rec.Path {
			continue
		}
		if id, ok := b.lookupFunctionID(ctx, targetPath, call.Name); ok {
			targets = append(targets, id)
		}
	}
	return targets
}

// lookupFunctionID resolves a (path, name) pair to a Function unique_id.
func (b *Builder) lookupFunctionID(ctx context.Context, filePath, name string) (string, bool) {
	rows, err := b.backend.Query(ctx,
		"MATCH (f:Function {path: $path, name: $name}) RETURN f.unique_id AS unique_id LIMIT 1",
		map[string]any{"path": filePath, "name": name})
	if err != nil || len(rows) == 0 {
		return "", false
	}
	id, ok := rows[0]["unique_id"].(string)
	return id, ok && id != ""
}

// CallerForLine picks the function whose span contains line, choosing
// the narrowest span when definitions nest.
func CallerForLine(functions []treesitter.Function, line int) (treesitter.Function, bool) {
	var best treesitter.Function
	bestSpan := -1
	for _, fn := range functions {
		if line < fn.LineNumber || line > fn.EndLine {
			continue
		}
		span := fn.EndLine - fn.LineNumber
		if bestSpan < 0 || span < bestSpan {
			best = fn
			bestSpan = span
		}
	}
	return best, bestSpan >= 0
}

// LinkPathHierarchy merges the Repository → Directory → ... → File
// containment chain for one relative file path. Paths escaping the
// repository root are rejected.
func LinkPathHierarchy(ctx context.Context, backend Backend, repoName, filePath string) (IngestCounts, error) {
	var counts IngestCounts

	cleaned := path.Clean(strings.ReplaceAll(filePath, "\\", "/"))
	if strings.HasPrefix(cleaned, "..") {
		return counts, fmt.Errorf("path escapes repository root: %s", filePath)
	}

	parts := strings.Split(cleaned, "/")
	dirs := parts[:len(parts)-1]

	parent := NodeRef{Label: "Repository", Key: UniqueKey("Repository"), Value: repoName}
	accumulated := ""
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if accumulated == "" {
			accumulated = dir
		} else {
			accumulated = accumulated + "/" + dir
		}

		dirNode := Node{
			Label:    "Directory",
			Key:      UniqueKey("Directory"),
			KeyValue: accumulated,
			Properties: map[string]any{
				"name": dir,
				"path": accumulated,
			},
		}
		if err := backend.UpsertNode(ctx, dirNode); err != nil {
			return counts, err
		}
		counts.Nodes++

		child := NodeRef{Label: "Directory", Key: UniqueKey("Directory"), Value: accumulated}
		if err := backend.UpsertEdge(ctx, Edge{Label: "CONTAINS", From: parent, To: child}); err != nil {
			return counts, err
		}
		counts.Edges++
		parent = child
	}

	fileRef := NodeRef{Label: "File", Key: UniqueKey("File"), Value: filePath}
	if err := backend.UpsertEdge(ctx, Edge{Label: "CONTAINS", From: parent, To: fileRef}); err != nil {
		return counts, err
	}
	counts.Edges++

	return counts, nil
}

// EntityID builds the composite unique id for an entity node.
func EntityID(filePath, name string, line int) string {
	return fmt.Sprintf("%s:%s:%d", filePath, name, line)
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
