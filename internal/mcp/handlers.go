package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/ingestion"
	"github.com/graphweave/graphweave/internal/scip"
	"github.com/graphweave/graphweave/internal/treesitter"
)

func (s *Server) handleIndexRepository(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	repoPath := getStringArg(args, "repo_path")
	if repoPath == "" {
		return errResult("repo_path is required"), nil
	}

	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}

	repoName := getStringArg(args, "repo_name")
	if repoName == "" {
		repoName = filepath.Base(absPath)
	}

	builder := graph.NewBuilder(s.backend, repoName)
	processor := ingestion.NewProcessor(&ingestion.Config{
		Workers:     s.cfg.Index.Workers,
		IndexSource: s.cfg.Index.IndexSource,
	}, builder, s.runs, s.log)

	result, err := processor.ProcessRepository(ctx, absPath, repoName)
	if err != nil {
		return errResult(fmt.Sprintf("indexing failed: %v", err)), nil
	}

	parseFailures := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		parseFailures = append(parseFailures, e.Error())
	}

	return jsonResult(map[string]any{
		"run_id":         result.RunID,
		"repo":           repoName,
		"files_total":    result.FilesTotal,
		"files_parsed":   result.FilesParsed,
		"files_failed":   result.FilesFailed,
		"functions":      result.Functions,
		"classes":        result.Classes,
		"imports":        result.Imports,
		"nodes":          result.Nodes,
		"edges":          result.Edges,
		"duration":       result.Duration.String(),
		"parse_failures": parseFailures,
	}), nil
}

func (s *Server) handleIngestScipIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	indexPath := getStringArg(args, "index_path")
	repoPath := getStringArg(args, "repo_path")
	if indexPath == "" || repoPath == "" {
		return errResult("index_path and repo_path are required"), nil
	}

	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}

	repoName := getStringArg(args, "repo_name")
	if repoName == "" {
		repoName = filepath.Base(absRepo)
	}

	index, err := scip.LoadIndex(indexPath)
	if err != nil {
		return errResult(fmt.Sprintf("load index: %v", err)), nil
	}

	sess := treesitter.NewSession()
	defer sess.Close()

	indexer := scip.NewIndexer(s.backend, sess, repoName, absRepo)
	stats, err := indexer.Ingest(ctx, index)
	if err != nil {
		return errResult(fmt.Sprintf("scip ingest failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"repo":               repoName,
		"documents":          stats.Documents,
		"skipped_documents":  stats.SkippedDocuments,
		"failed_documents":   stats.FailedDocuments,
		"definitions":        stats.Definitions,
		"verified_edges":     stats.VerifiedEdges,
		"dropped_references": stats.DroppedReferences,
	}), nil
}

func (s *Server) handleGraphSummary(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeRows, err := s.backend.Query(ctx,
		"MATCH (n) RETURN labels(n)[0] AS label, count(n) AS count ORDER BY count DESC", nil)
	if err != nil {
		return errResult(fmt.Sprintf("node counts: %v", err)), nil
	}

	edgeRows, err := s.backend.Query(ctx,
		"MATCH ()-[r]->() RETURN type(r) AS type, count(r) AS count ORDER BY count DESC", nil)
	if err != nil {
		return errResult(fmt.Sprintf("edge counts: %v", err)), nil
	}

	verifiedRows, err := s.backend.Query(ctx,
		"MATCH ()-[r:CALLS]->() WHERE r.scip_verified = true RETURN count(r) AS count", nil)
	if err != nil {
		return errResult(fmt.Sprintf("verified calls: %v", err)), nil
	}

	var verified any
	if len(verifiedRows) > 0 {
		verified = verifiedRows[0]["count"]
	}

	return jsonResult(map[string]any{
		"nodes":          nodeRows,
		"edges":          edgeRows,
		"verified_calls": verified,
	}), nil
}

func (s *Server) handleListRuns(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runs == nil {
		return errResult("run ledger is not configured"), nil
	}

	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	repoName := getStringArg(args, "repo_name")
	if repoName == "" {
		return errResult("repo_name is required"), nil
	}
	limit := getIntArg(args, "limit", 10)

	runs, err := s.runs.RecentRuns(ctx, repoName, limit)
	if err != nil {
		return errResult(fmt.Sprintf("list runs: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"repo": repoName,
		"runs": runs,
	}), nil
}

func (s *Server) handleListBundles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.registry == nil {
		return errResult("bundle registry is not configured"), nil
	}

	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}
	name := getStringArg(args, "name")

	bundles := s.registry.FetchAvailableBundles(ctx)
	if name != "" {
		filtered := bundles[:0]
		for _, b := range bundles {
			if strings.EqualFold(b.Name, name) || strings.EqualFold(b.FullName, name) {
				filtered = append(filtered, b)
			}
		}
		bundles = filtered
	}

	return jsonResult(map[string]any{
		"bundles": bundles,
	}), nil
}
