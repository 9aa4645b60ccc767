package lint

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/match"
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

// DefaultRuleTimeout bounds one rule's scan of one tree. A healthy rule
// finishes in microseconds; the bound exists so one pathological
// backtracking case cannot stall a whole run.
const DefaultRuleTimeout = 500 * time.Millisecond

// Options configure an Engine.
type Options struct {
	// RuleTimeout bounds one rule's scan of one tree. Zero means
	// DefaultRuleTimeout; negative disables the bound.
	RuleTimeout time.Duration

	// Logger receives per-rule debug events. Nil discards them.
	Logger *slog.Logger
}

// Engine evaluates a registry's rules against syntax trees. Rules run
// concurrently but results merge in registry order, so the output is
// reproducible regardless of scheduling.
type Engine struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewEngine builds an engine over a registry.
func NewEngine(registry *Registry, opts Options) *Engine {
	timeout := opts.RuleTimeout
	if timeout == 0 {
		timeout = DefaultRuleTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{registry: registry, timeout: timeout, logger: logger}
}

// Registry returns the engine's rule registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Result is one tree's outcome. Diagnostics are ordered by (rule
// registration order, span); Problems carry per-rule failures and are never
// folded into the findings — a broken rule must not read as a clean one.
type Result struct {
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Problems    []diag.Problem    `json:"problems,omitempty"`
}

// HasErrors reports whether any finding is at or above the severity
// threshold. Problems do not count; callers surface those separately.
func (r Result) HasErrors(threshold diag.Severity) bool {
	for _, finding := range r.Diagnostics {
		if finding.Severity <= threshold {
			return true
		}
	}

	return false
}

// Run evaluates every rule applicable to the language tag against the tree.
// Each rule gets its own goroutine and its own deadline; a rule that fails
// or times out becomes a Problem while the other rules' findings survive.
func (e *Engine) Run(ctx context.Context, tree *syntax.Node, language string) Result {
	rules := e.registry.Rules()

	diagSlots := make([][]diag.Diagnostic, len(rules))
	problemSlots := make([]*diag.Problem, len(rules))

	var wg sync.WaitGroup

	for idx, rule := range rules {
		if !rule.AppliesTo(language) {
			e.logger.DebugContext(ctx, "rule skipped",
				slog.String("rule", rule.Name),
				slog.String("language", language))

			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			diagSlots[idx], problemSlots[idx] = e.runRule(ctx, rule, tree)
		}()
	}

	wg.Wait()

	return e.merge(rules, diagSlots, problemSlots)
}

func (e *Engine) runRule(
	ctx context.Context, rule *pattern.RuleSpec, tree *syntax.Node,
) ([]diag.Diagnostic, *diag.Problem) {
	runCtx := ctx

	if e.timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	started := time.Now()

	found, err := match.Run(runCtx, rule, tree)
	if err != nil {
		e.logger.WarnContext(ctx, "rule failed",
			slog.String("rule", rule.Name),
			slog.Duration("elapsed", time.Since(started)),
			slog.Any("error", err))

		return nil, &diag.Problem{Rule: rule.Name, Stage: diag.StageMatch, Err: err}
	}

	e.logger.DebugContext(ctx, "rule evaluated",
		slog.String("rule", rule.Name),
		slog.Int("findings", len(found)),
		slog.Duration("elapsed", time.Since(started)))

	return found, nil
}

// merge folds slot results into one Result through the reporter, which owns
// the (rule order, span) sort.
func (e *Engine) merge(
	rules []*pattern.RuleSpec, diagSlots [][]diag.Diagnostic, problemSlots []*diag.Problem,
) Result {
	reporter := diag.NewReporter(e.registry.Names())

	var problems []diag.Problem

	for idx, rule := range rules {
		for _, finding := range diagSlots[idx] {
			reporter.Report(rule.Name, finding)
		}

		if problemSlots[idx] != nil {
			problems = append(problems, *problemSlots[idx])
		}
	}

	return Result{Diagnostics: reporter.Snapshot(), Problems: problems}
}
