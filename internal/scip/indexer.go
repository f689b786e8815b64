package scip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	scipproto "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/treesitter"
)

// Indexer reconciles a precise-reference index against structural
// parses, producing verified CALLS edges in the graph. Definitions in
// the index become nodes keyed by their opaque symbol id; references
// are attributed to a caller through the structural function spans of
// the same file.
type Indexer struct {
	backend  graph.Backend
	sess     *treesitter.Session
	repoName string
	repoRoot string
	log      *slog.Logger
}

// Stats summarizes one index ingestion run.
type Stats struct {
	Documents         int
	SkippedDocuments  int
	FailedDocuments   int
	Definitions       int
	VerifiedEdges     int
	DroppedReferences int
}

// NewIndexer creates an indexer writing into backend under repoName.
// repoRoot is the filesystem root the index's relative paths resolve
// against.
func NewIndexer(backend graph.Backend, sess *treesitter.Session, repoName, repoRoot string) *Indexer {
	return &Indexer{
		backend:  backend,
		sess:     sess,
		repoName: repoName,
		repoRoot: repoRoot,
		log:      slog.Default().With("component", "scip_indexer"),
	}
}

// LoadIndex reads and decodes a serialized index artifact.
func LoadIndex(path string) (*scipproto.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}
	var index scipproto.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode index file %s: %w", path, err)
	}
	return &index, nil
}

// Ingest processes every document in the index. A failure inside one
// document is logged and isolated; the batch continues. After all
// documents, a cleanup pass removes any local-scope symbol nodes that
// slipped through.
func (ix *Indexer) Ingest(ctx context.Context, index *scipproto.Index) (*Stats, error) {
	stats := &Stats{}

	if err := ix.backend.UpsertNode(ctx, graph.Node{
		Label:    "Repository",
		Key:      graph.UniqueKey("Repository"),
		KeyValue: ix.repoName,
		Properties: map[string]any{
			"name": ix.repoName,
		},
	}); err != nil {
		return stats, fmt.Errorf("failed to ensure repository node: %w", err)
	}

	symbolMap := buildSymbolMap(index)

	for _, doc := range index.Documents {
		stats.Documents++
		if err := ix.ingestDocument(ctx, doc, symbolMap, stats); err != nil {
			ix.log.Warn("document ingestion failed",
				"path", doc.RelativePath, "error", err)
			stats.FailedDocuments++
		}
	}

	if err := ix.cleanupLocalSymbols(ctx); err != nil {
		ix.log.Warn("local symbol cleanup failed", "error", err)
	}

	return stats, nil
}

// buildSymbolMap indexes symbol information across every document plus
// the external symbols, so reference targets defined elsewhere still
// resolve their kind and display name.
func buildSymbolMap(index *scipproto.Index) map[string]*scipproto.SymbolInformation {
	symbols := map[string]*scipproto.SymbolInformation{}
	for _, doc := range index.Documents {
		for _, info := range doc.Symbols {
			symbols[info.Symbol] = info
		}
	}
	for _, info := range index.ExternalSymbols {
		symbols[info.Symbol] = info
	}
	return symbols
}

func (ix *Indexer) ingestDocument(ctx context.Context, doc *scipproto.Document, symbolMap map[string]*scipproto.SymbolInformation, stats *Stats) error {
	relPath := filepath.ToSlash(doc.RelativePath)
	if strings.HasPrefix(relPath, "..") {
		ix.log.Warn("skipping document outside repository root", "path", relPath)
		stats.SkippedDocuments++
		return nil
	}

	if err := ix.backend.UpsertNode(ctx, graph.Node{
		Label:    "File",
		Key:      graph.UniqueKey("File"),
		KeyValue: relPath,
		Properties: map[string]any{
			"name": filepath.Base(relPath),
			"path": relPath,
		},
	}); err != nil {
		return err
	}

	if _, err := graph.LinkPathHierarchy(ctx, ix.backend, ix.repoName, relPath); err != nil {
		// hierarchy gaps don't invalidate the document's symbols
		ix.log.Warn("failed to link file hierarchy", "path", relPath, "error", err)
	}

	definitions, references := partitionOccurrences(doc.Occurrences)

	if err := ix.upsertDefinitions(ctx, relPath, definitions, symbolMap, stats); err != nil {
		return err
	}

	return ix.linkReferences(ctx, relPath, references, symbolMap, stats)
}

// partitionOccurrences splits a document's occurrences by the
// Definition role bit.
func partitionOccurrences(occurrences []*scipproto.Occurrence) (definitions, references []*scipproto.Occurrence) {
	for _, occ := range occurrences {
		if occ.SymbolRoles&int32(scipproto.SymbolRole_Definition) != 0 {
			definitions = append(definitions, occ)
		} else {
			references = append(references, occ)
		}
	}
	return definitions, references
}

// upsertDefinitions merges one node per non-local definition, keyed by
// the opaque symbol id, and a File CONTAINS edge for each.
func (ix *Indexer) upsertDefinitions(ctx context.Context, relPath string, definitions []*scipproto.Occurrence, symbolMap map[string]*scipproto.SymbolInformation, stats *Stats) error {
	var queries []graph.QueryWithParams

	for _, occ := range definitions {
		if isLocalSymbol(occ.Symbol) || len(occ.Range) == 0 {
			continue
		}

		info := symbolMap[occ.Symbol]
		label := labelForSymbol(info, occ.Symbol)
		if !graph.ValidIdentifier(label) {
			continue
		}

		queries = append(queries, graph.QueryWithParams{
			Query: fmt.Sprintf(`
                MATCH (f:File {path: $path})
                MERGE (n:%s {scip_symbol: $symbol})
                SET n.name = $name, n.path = $path, n.line_number = $line_number
                MERGE (f)-[:CONTAINS]->(n)`, label),
			Params: map[string]any{
				"path":        relPath,
				"symbol":      occ.Symbol,
				"name":        extractName(info, occ.Symbol),
				"line_number": int(occ.Range[0]) + 1,
			},
		})
	}

	if len(queries) == 0 {
		return nil
	}
	if err := ix.backend.ExecuteBatch(ctx, queries); err != nil {
		return fmt.Errorf("failed to upsert definitions for %s: %w", relPath, err)
	}
	stats.Definitions += len(queries)
	return nil
}

// linkReferences attributes each non-local reference to the structural
// function whose span contains it, then merges a verified CALLS edge to
// the target symbol. The structural parse of the same file supplies the
// function spans the precise index lacks.
func (ix *Indexer) linkReferences(ctx context.Context, relPath string, references []*scipproto.Occurrence, symbolMap map[string]*scipproto.SymbolInformation, stats *Stats) error {
	if len(references) == 0 {
		return nil
	}

	absPath := filepath.Join(ix.repoRoot, filepath.FromSlash(relPath))
	if _, err := os.Stat(absPath); err != nil {
		// file recorded in the index but gone from the tree
		return nil
	}

	result := treesitter.ParseFile(ix.sess, absPath, treesitter.ParseOptions{})
	if result.Err != nil {
		ix.log.Warn("structural parse failed for reference linking",
			"path", relPath, "error", result.Err)
		return nil
	}
	functions := result.Record.Functions
	if len(functions) == 0 {
		return nil
	}

	for _, ref := range references {
		if isLocalSymbol(ref.Symbol) || len(ref.Range) == 0 {
			continue
		}

		refLine := int(ref.Range[0]) + 1
		caller, ok := graph.CallerForLine(functions, refLine)
		if !ok {
			// module-level reference: no attributable caller
			stats.DroppedReferences++
			continue
		}

		info := symbolMap[ref.Symbol]
		targetLabel := labelForSymbol(info, ref.Symbol)
		if !graph.ValidIdentifier(targetLabel) {
			continue
		}
		targetName := extractName(info, ref.Symbol)

		created, err := ix.mergeVerifiedCall(ctx, relPath, caller.Name, nil, targetLabel, ref.Symbol, targetName, refLine)
		if err != nil {
			ix.log.Warn("failed to create verified call edge",
				"path", relPath, "symbol", ref.Symbol, "error", err)
			continue
		}
		if created == 0 {
			// name mismatch between structural and precise parses
			line := caller.LineNumber
			created, err = ix.mergeVerifiedCall(ctx, relPath, "", &line, targetLabel, ref.Symbol, targetName, refLine)
			if err != nil {
				ix.log.Warn("failed to create verified call edge",
					"path", relPath, "symbol", ref.Symbol, "error", err)
				continue
			}
		}

		if created > 0 {
			stats.VerifiedEdges++
		} else {
			stats.DroppedReferences++
		}
	}

	return nil
}

// mergeVerifiedCall matches the caller Function by (path, name) or, when
// callerLine is set, by (path, line_number), merges the target symbol
// node (creating a ghost node for externally defined symbols), and
// merges the CALLS edge flagged scip_verified.
func (ix *Indexer) mergeVerifiedCall(ctx context.Context, path, callerName string, callerLine *int, targetLabel, targetSymbol, targetName string, refLine int) (int64, error) {
	match := "MATCH (caller:Function {path: $path, name: $caller_name})"
	params := map[string]any{
		"path":          path,
		"caller_name":   callerName,
		"target_symbol": targetSymbol,
		"target_name":   targetName,
		"ref_line":      refLine,
	}
	if callerLine != nil {
		match = "MATCH (caller:Function {path: $path, line_number: $caller_line})"
		delete(params, "caller_name")
		params["caller_line"] = *callerLine
	}

	query := fmt.Sprintf(`
        %s
        MERGE (target:%s {scip_symbol: $target_symbol})
        ON CREATE SET target.name = $target_name
        MERGE (caller)-[r:CALLS]->(target)
        SET r.scip_verified = true, r.line_number = $ref_line
        RETURN count(r) as created`, match, targetLabel)

	rows, err := ix.backend.Write(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["created"]), nil
}

// cleanupLocalSymbols detach-deletes any local-scope symbol nodes left
// behind, restoring the "locals never reach the graph" invariant.
func (ix *Indexer) cleanupLocalSymbols(ctx context.Context) error {
	return ix.backend.ExecuteBatch(ctx, []graph.QueryWithParams{{
		Query: "MATCH (n) WHERE n.scip_symbol STARTS WITH 'local ' DETACH DELETE n",
	}})
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
