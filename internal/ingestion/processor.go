package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/graphweave/graphweave/internal/errors"
	"github.com/graphweave/graphweave/internal/graph"
	"github.com/graphweave/graphweave/internal/storage"
	"github.com/graphweave/graphweave/internal/treesitter"
)

// Config holds knobs for repository processing
type Config struct {
	Workers     int  // concurrent parse workers
	IndexSource bool // attach source text and docstrings to records
}

// DefaultConfig returns the defaults used by the CLI
func DefaultConfig() *Config {
	return &Config{
		Workers: 8,
	}
}

// Processor orchestrates walk, pre-scan, parse and graph construction
// for one repository.
type Processor struct {
	config  *Config
	builder *graph.Builder
	runs    storage.RunStore // optional run ledger
	log     *slog.Logger
}

// NewProcessor creates a repository processor. runs may be nil; the
// ledger is auxiliary to graph construction.
func NewProcessor(config *Config, builder *graph.Builder, runs storage.RunStore, log *slog.Logger) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Processor{
		config:  config,
		builder: builder,
		runs:    runs,
		log:     log,
	}
}

// Result holds the outcome of processing one repository
type Result struct {
	RunID       string
	RepoName    string
	RepoPath    string
	FilesTotal  int
	FilesParsed int
	FilesFailed int
	Functions   int
	Classes     int
	Imports     int
	Nodes       int
	Edges       int
	Duration    time.Duration
	Errors      []error
}

// ProcessRepository runs the full pipeline: walk the tree, pre-scan
// definitions, parse files concurrently, then build the graph.
func (p *Processor) ProcessRepository(ctx context.Context, repoPath, repoName string) (*Result, error) {
	startTime := time.Now()
	runID := uuid.NewString()

	absRoot, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}

	result := &Result{
		RunID:    runID,
		RepoName: repoName,
		RepoPath: absRoot,
	}

	p.log.Info("starting repository processing",
		"run_id", runID,
		"repo", repoName,
		"path", absRoot,
		"workers", p.config.Workers,
	)

	files, err := WalkSourceFiles(absRoot)
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}
	result.FilesTotal = len(files)

	prescan := p.preScan(absRoot, files)

	records, parseErrors := p.parseFilesParallel(ctx, absRoot, files)
	result.FilesParsed = len(records)
	result.FilesFailed = len(parseErrors)
	result.Errors = parseErrors

	p.log.Info("parsing complete",
		"parsed", result.FilesParsed,
		"failed", result.FilesFailed,
	)

	for _, rec := range records {
		result.Functions += len(rec.Functions)
		result.Classes += len(rec.Classes)
		result.Imports += len(rec.Imports)
	}

	if err := p.buildGraph(ctx, records, prescan, result); err != nil {
		p.recordRun(ctx, result, startTime, err)
		return nil, err
	}

	result.Duration = time.Since(startTime)
	p.recordRun(ctx, result, startTime, nil)

	p.log.Info("repository processing complete",
		"run_id", runID,
		"duration", result.Duration,
		"files", result.FilesTotal,
		"nodes", result.Nodes,
		"edges", result.Edges,
	)

	return result, nil
}

// preScan builds the definition index used for cross-file call
// resolution. Paths in the index are repo-relative so they line up
// with graph node identities.
func (p *Processor) preScan(repoRoot string, files []string) map[string][]string {
	sess := treesitter.NewSession()
	defer sess.Close()

	raw := treesitter.PreScanFiles(sess, files)

	prescan := make(map[string][]string, len(raw))
	for name, paths := range raw {
		rel := make([]string, 0, len(paths))
		for _, path := range paths {
			if r, ok := relPath(repoRoot, path); ok {
				rel = append(rel, r)
			}
		}
		if len(rel) > 0 {
			prescan[name] = rel
		}
	}
	return prescan
}

// parseFilesParallel parses files with a bounded worker pool. Each
// worker owns its own parser session; sessions are not safe for
// concurrent use. Per-file failures are collected, never propagated;
// only context cancellation stops the pool.
func (p *Processor) parseFilesParallel(ctx context.Context, repoRoot string, files []string) ([]*treesitter.FileRecord, []error) {
	jobs := make(chan string)
	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		mu      sync.Mutex
		records []*treesitter.FileRecord
		errs    []error
	)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.config.Workers; w++ {
		g.Go(func() error {
			sess := treesitter.NewSession()
			defer sess.Close()

			for path := range jobs {
				rec, err := p.parseOne(sess, repoRoot, path)

				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else if rec != nil {
					records = append(records, rec)
				}
				mu.Unlock()

				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	return records, errs
}

func (p *Processor) parseOne(sess *treesitter.Session, repoRoot, path string) (*treesitter.FileRecord, error) {
	res := treesitter.ParseFile(sess, path, treesitter.ParseOptions{IndexSource: p.config.IndexSource})
	if res.Err != nil {
		return nil, errors.ParseErrorf(res.Err, "%s", path)
	}

	rel, ok := relPath(repoRoot, path)
	if !ok {
		return nil, errors.New(errors.ErrorTypeParse, errors.SeverityLow,
			fmt.Sprintf("%s: outside repository root", path))
	}
	res.Record.Path = rel

	return res.Record, nil
}

// buildGraph ingests parsed records and then links calls and imports
// across files using the pre-scan index.
func (p *Processor) buildGraph(ctx context.Context, records []*treesitter.FileRecord, prescan map[string][]string, result *Result) error {
	if err := p.builder.EnsureRepository(ctx); err != nil {
		return errors.DatabaseError(err, "ensure repository node")
	}

	for _, rec := range records {
		counts, err := p.builder.IngestRecord(ctx, rec)
		if err != nil {
			return errors.DatabaseErrorf(err, "ingest %s", rec.Path)
		}
		result.Nodes += counts.Nodes
		result.Edges += counts.Edges
	}

	counts, err := p.builder.LinkCalls(ctx, records, prescan)
	if err != nil {
		return errors.DatabaseError(err, "link calls")
	}
	result.Nodes += counts.Nodes
	result.Edges += counts.Edges

	return nil
}

// recordRun writes the run to the ledger. Ledger failures never fail
// the run itself.
func (p *Processor) recordRun(ctx context.Context, result *Result, startedAt time.Time, runErr error) {
	if p.runs == nil {
		return
	}

	run := &storage.RunRecord{
		ID:           result.RunID,
		RepoName:     result.RepoName,
		RepoPath:     result.RepoPath,
		Kind:         "index",
		Status:       storage.RunStatusCompleted,
		Files:        result.FilesTotal,
		SkippedFiles: result.FilesFailed,
		Nodes:        result.Nodes,
		Edges:        result.Edges,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}
	if runErr != nil {
		run.Status = storage.RunStatusFailed
		run.Error = runErr.Error()
	}

	if err := p.runs.SaveRun(ctx, run); err != nil {
		p.log.Warn("run ledger write failed", "run_id", result.RunID, "error", err)
	}
}

// relPath converts an absolute file path to a repo-relative slash
// path. Graph node identities always use this form.
func relPath(repoRoot, path string) (string, bool) {
	rel, err := filepath.Rel(repoRoot, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || len(rel) >= 3 && rel[:3] == "../" {
		return "", false
	}
	return rel, true
}
