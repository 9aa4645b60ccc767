// Package runner orchestrates one lint run over the file system: directory
// walk with skip rules, a worker pool with per-worker parser providers,
// per-file engine invocation, result caching, changed-line scoping and
// metrics. The engine stays pure; everything that touches disk or telemetry
// lives here.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/treelint/internal/gitscope"
	"github.com/Sumatoshi-tech/treelint/internal/lintcache"
	"github.com/Sumatoshi-tech/treelint/internal/observability"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/lint"
	"github.com/Sumatoshi-tech/treelint/pkg/parser"
)

// skipDirs are directory names never descended into.
//
//nolint:gochecknoglobals // Fixed lookup table.
var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"dist":         {},
	"build":        {},
	"vendor":       {},
}

// FileResult is one file's outcome within a run.
type FileResult struct {
	Path     string      `json:"path"`
	Language string      `json:"language"`
	Result   lint.Result `json:"result"`
}

// RunResult aggregates one run.
type RunResult struct {
	Files        []FileResult
	FilesScanned int
	FilesSkipped int
	FilesFailed  int
	CacheStats   lintcache.Stats
	Elapsed      time.Duration
}

// Diagnostics returns every finding of the run, in file order.
func (r RunResult) Diagnostics() []diag.Diagnostic {
	var all []diag.Diagnostic

	for _, file := range r.Files {
		all = append(all, file.Result.Diagnostics...)
	}

	return all
}

// Problems returns every per-rule execution problem of the run.
func (r RunResult) Problems() []diag.Problem {
	var all []diag.Problem

	for _, file := range r.Files {
		all = append(all, file.Result.Problems...)
	}

	return all
}

// HasErrors reports whether any finding is at or above the threshold.
func (r RunResult) HasErrors(threshold diag.Severity) bool {
	for _, file := range r.Files {
		if file.Result.HasErrors(threshold) {
			return true
		}
	}

	return false
}

// Options configure a Runner. Engine is the only required field.
type Options struct {
	Engine *lint.Engine

	// Workers bounds the file worker pool. Zero means one per CPU.
	Workers int

	// MaxFileSize skips files larger than this many bytes. Zero means no cap.
	MaxFileSize uint64

	// Exclude holds path glob patterns matched against the walk-relative
	// path of each candidate file.
	Exclude []string

	// IncludeVendored lints vendored paths instead of skipping them.
	IncludeVendored bool

	// Scope restricts the run to files and lines changed since a revision.
	// Nil means everything is in scope.
	Scope *gitscope.Scope

	// Cache stores per-file findings across runs. Nil disables caching.
	Cache *lintcache.Cache

	// Logger receives per-file events. Nil discards them.
	Logger *slog.Logger

	// Tracer records per-file spans. Nil disables tracing.
	Tracer trace.Tracer

	// Metrics records lint counters. Nil disables them.
	Metrics *observability.LintMetrics
}

// Runner lints directory trees and single files with a fixed engine.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// New builds a Runner.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Runner{opts: opts, logger: logger}
}

// Run lints every supported file under each root. Roots may be files or
// directories. Results are ordered by path, so repeated runs over the same
// tree render identically.
func (r *Runner) Run(ctx context.Context, roots []string) (RunResult, error) {
	started := time.Now()

	files, skipped, err := r.collectFiles(roots)
	if err != nil {
		return RunResult{}, err
	}

	result, err := r.lintParallel(ctx, files)
	if err != nil {
		return RunResult{}, err
	}

	result.FilesSkipped += skipped
	result.CacheStats = r.opts.Cache.Stats()
	result.Elapsed = time.Since(started)

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordCache(ctx, result.CacheStats.Hits, result.CacheStats.Misses)
	}

	return result, nil
}

// CheckSource lints one in-memory source buffer, bypassing walk, scope and
// cache. The LSP and MCP servers use it for unsaved document content.
func (r *Runner) CheckSource(ctx context.Context, path string, content []byte) (FileResult, error) {
	language := parser.LanguageFor(path, content)
	if language == "" {
		return FileResult{}, fmt.Errorf("%w: %s", parser.ErrUnsupportedLanguage, path)
	}

	provider, err := parser.NewProvider(language)
	if err != nil {
		return FileResult{}, err
	}

	tree, err := provider.Parse(ctx, content)
	if err != nil {
		return FileResult{}, err
	}

	defer tree.Release()

	return FileResult{
		Path:     path,
		Language: language,
		Result:   r.opts.Engine.Run(ctx, tree, language),
	}, nil
}

// collectFiles walks the roots and returns lintable paths plus the count of
// files skipped by size, vendoring, exclusion or language.
func (r *Runner) collectFiles(roots []string) ([]string, int, error) {
	var (
		files   []string
		skipped int
	)

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, 0, fmt.Errorf("stat %s: %w", root, err)
		}

		if !info.IsDir() {
			if r.admitsFile(root, root, info.Size()) {
				files = append(files, root)
			} else {
				skipped++
			}

			continue
		}

		err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
			admit, skipErr := r.shouldVisit(path, entry, walkErr)
			if skipErr != nil || !admit {
				return skipErr
			}

			entryInfo, infoErr := entry.Info()
			if infoErr != nil {
				return nil
			}

			if r.admitsFile(root, path, entryInfo.Size()) {
				files = append(files, path)
			} else {
				skipped++
			}

			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(files)

	return files, skipped, nil
}

// shouldVisit handles walk errors and directory skip rules. It reports
// whether path is a candidate file.
func (r *Runner) shouldVisit(path string, entry fs.DirEntry, walkErr error) (bool, error) {
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrPermission) || errors.Is(walkErr, fs.ErrNotExist) {
			if entry != nil && entry.IsDir() {
				return false, filepath.SkipDir
			}

			return false, nil
		}

		return false, walkErr
	}

	if entry == nil {
		return false, nil
	}

	if entry.IsDir() {
		if _, skip := skipDirs[entry.Name()]; skip {
			return false, filepath.SkipDir
		}

		return false, nil
	}

	return true, nil
}

func (r *Runner) admitsFile(root, path string, size int64) bool {
	if r.opts.MaxFileSize > 0 && size > 0 && uint64(size) > r.opts.MaxFileSize {
		return false
	}

	if !r.opts.IncludeVendored && parser.IsVendored(filepath.ToSlash(path)) {
		return false
	}

	if r.excluded(root, path) {
		return false
	}

	// Extension-only resolution; content-based detection runs again with
	// the bytes in hand once the worker reads the file.
	if parser.LanguageFor(path, nil) == "" {
		return false
	}

	return r.opts.Scope.InScope(path)
}

func (r *Runner) excluded(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	rel = filepath.ToSlash(rel)

	for _, pattern := range r.opts.Exclude {
		if ok, matchErr := filepath.Match(pattern, rel); matchErr == nil && ok {
			return true
		}

		if ok, matchErr := filepath.Match(pattern, filepath.Base(path)); matchErr == nil && ok {
			return true
		}
	}

	return false
}

// workerState holds the shared mutable state of one parallel run.
type workerState struct {
	mu       sync.Mutex
	results  []FileResult
	failed   int
	firstErr error
}

func (ws *workerState) addResult(res FileResult) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.results = append(ws.results, res)
}

func (ws *workerState) addFailure(err error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.failed++

	if ws.firstErr == nil {
		ws.firstErr = err
	}
}

func (r *Runner) lintParallel(ctx context.Context, files []string) (RunResult, error) {
	numWorkers := r.opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	fileChan := make(chan string, numWorkers)
	state := &workerState{}

	var wg sync.WaitGroup

	wg.Add(numWorkers)

	for range numWorkers {
		go r.fileWorker(ctx, &wg, fileChan, state)
	}

	for _, path := range files {
		fileChan <- path
	}

	close(fileChan)
	wg.Wait()

	sort.Slice(state.results, func(i, j int) bool {
		return state.results[i].Path < state.results[j].Path
	})

	return RunResult{
		Files:        state.results,
		FilesScanned: len(state.results),
		FilesFailed:  state.failed,
	}, nil
}

// fileWorker lints files off the channel. Each worker carries its own
// provider per language; tree-sitter parsers are not shared across
// goroutines.
func (r *Runner) fileWorker(
	ctx context.Context, wg *sync.WaitGroup, fileChan <-chan string, state *workerState,
) {
	defer wg.Done()

	providers := make(map[string]*parser.Provider)

	for path := range fileChan {
		if ctx.Err() != nil {
			continue // Drain remaining items so the sender doesn't block.
		}

		r.processFile(ctx, path, providers, state)
	}
}

func (r *Runner) processFile(
	ctx context.Context, path string, providers map[string]*parser.Provider, state *workerState,
) {
	started := time.Now()

	fileCtx, span := r.startFileSpan(ctx, path)
	defer span.End()

	res, status, err := r.lintFile(fileCtx, path, providers)

	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordFile(ctx, status, time.Since(started))
	}

	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return
		}

		r.logger.WarnContext(ctx, "file failed",
			slog.String("path", path),
			slog.Any("error", err))
		state.addFailure(err)

		return
	}

	if status == statusSkipped {
		return
	}

	r.recordFindings(ctx, res)
	state.addResult(res)
}

const (
	statusLinted  = "linted"
	statusCached  = "cached"
	statusSkipped = "skipped"
	statusFailed  = "failed"
)

func (r *Runner) lintFile(
	ctx context.Context, path string, providers map[string]*parser.Provider,
) (FileResult, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, statusFailed, fmt.Errorf("read %s: %w", path, err)
	}

	language := parser.LanguageFor(path, content)
	if language == "" {
		return FileResult{}, statusSkipped, nil
	}

	key := lintcache.NewKey(r.opts.Engine.Registry().Fingerprint(), content)

	if cached, hit := r.cacheLookup(ctx, key, path); hit {
		res := FileResult{Path: path, Language: language, Result: lint.Result{Diagnostics: cached}}

		return r.applyLineScope(res), statusCached, nil
	}

	provider, ok := providers[language]
	if !ok {
		provider, err = parser.NewProvider(language)
		if err != nil {
			return FileResult{}, statusFailed, err
		}

		providers[language] = provider
	}

	tree, err := provider.Parse(ctx, content)
	if err != nil {
		return FileResult{}, statusFailed, fmt.Errorf("parse %s: %w", path, err)
	}

	defer tree.Release()

	lintResult := r.opts.Engine.Run(ctx, tree, language)

	// A run with problems is incomplete; caching it would make a broken
	// rule look clean on the next run.
	if len(lintResult.Problems) == 0 {
		if putErr := r.opts.Cache.Put(key, lintResult.Diagnostics); putErr != nil {
			r.logger.DebugContext(ctx, "cache write failed",
				slog.String("path", path),
				slog.Any("error", putErr))
		}
	}

	res := FileResult{Path: path, Language: language, Result: lintResult}

	return r.applyLineScope(res), statusLinted, nil
}

func (r *Runner) cacheLookup(ctx context.Context, key lintcache.Key, path string) ([]diag.Diagnostic, bool) {
	findings, hit, err := r.opts.Cache.Get(key)
	if err != nil {
		r.logger.DebugContext(ctx, "cache read failed",
			slog.String("path", path),
			slog.Any("error", err))
	}

	return findings, hit
}

// applyLineScope drops findings outside the changed line set of a scoped
// run. A nil line set keeps everything.
func (r *Runner) applyLineScope(res FileResult) FileResult {
	lines := r.opts.Scope.LinesFor(res.Path)
	if lines == nil {
		return res
	}

	kept := make([]diag.Diagnostic, 0, len(res.Result.Diagnostics))

	for _, finding := range res.Result.Diagnostics {
		if lines.Contains(finding.Span.StartLine, finding.Span.EndLine) {
			kept = append(kept, finding)
		}
	}

	res.Result.Diagnostics = kept

	return res
}

func (r *Runner) recordFindings(ctx context.Context, res FileResult) {
	if r.opts.Metrics == nil {
		return
	}

	counts := make(map[diag.Severity]int64)
	for _, finding := range res.Result.Diagnostics {
		counts[finding.Severity]++
	}

	for severity, count := range counts {
		r.opts.Metrics.RecordFindings(ctx, severity.String(), count)
	}
}

func (r *Runner) startFileSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	if r.opts.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return r.opts.Tracer.Start(ctx, "treelint.file",
		trace.WithAttributes(attribute.String("treelint.file.path", path)))
}
