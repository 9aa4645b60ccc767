package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal       = "treelint.files.total"
	metricFileDuration     = "treelint.file.duration.seconds"
	metricFindingsTotal    = "treelint.findings.total"
	metricRuleDuration     = "treelint.rule.duration.seconds"
	metricFilesInflight    = "treelint.files.inflight"
	metricCacheHitsTotal   = "treelint.cache.hits.total"
	metricCacheMissesTotal = "treelint.cache.misses.total"

	attrSeverity = "severity"
	attrRule     = "rule"
)

// lintBucketBoundaries covers 1ms to 10s for per-file and per-rule
// evaluation, which is usually sub-second but spikes on large trees.
var lintBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// LintMetrics holds OTel instruments for lint-run-specific metrics.
type LintMetrics struct {
	filesTotal    metric.Int64Counter
	fileDuration  metric.Float64Histogram
	findingsTotal metric.Int64Counter
	ruleDuration  metric.Float64Histogram
	filesInflight metric.Int64UpDownCounter
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
}

// NewLintMetrics creates lint metric instruments from the given meter.
func NewLintMetrics(mt metric.Meter) (*LintMetrics, error) {
	b := newMetricBuilder(mt)

	lm := &LintMetrics{
		filesTotal:    b.counter(metricFilesTotal, "Total files linted by status", "{file}"),
		fileDuration:  b.histogram(metricFileDuration, "Per-file lint duration in seconds", "s", lintBucketBoundaries...),
		findingsTotal: b.counter(metricFindingsTotal, "Total findings by severity", "{finding}"),
		ruleDuration:  b.histogram(metricRuleDuration, "Per-rule evaluation duration in seconds", "s", lintBucketBoundaries...),
		filesInflight: b.upDownCounter(metricFilesInflight, "Number of files being linted", "{file}"),
		cacheHits:     b.counter(metricCacheHitsTotal, "Result cache hits", "{hit}"),
		cacheMisses:   b.counter(metricCacheMissesTotal, "Result cache misses", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return lm, nil
}

// RecordFile records a completed per-file lint with its status and duration.
// Safe to call on a nil receiver (no-op).
func (lm *LintMetrics) RecordFile(ctx context.Context, status string, duration time.Duration) {
	if lm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	lm.filesTotal.Add(ctx, 1, attrs)
	lm.fileDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFindings records count findings at the given severity.
// Safe to call on a nil receiver (no-op).
func (lm *LintMetrics) RecordFindings(ctx context.Context, severity string, count int64) {
	if lm == nil || count == 0 {
		return
	}

	lm.findingsTotal.Add(ctx, count, metric.WithAttributes(attribute.String(attrSeverity, severity)))
}

// RecordRuleDuration records one rule evaluation over one file.
// Safe to call on a nil receiver (no-op).
func (lm *LintMetrics) RecordRuleDuration(ctx context.Context, rule string, duration time.Duration) {
	if lm == nil {
		return
	}

	lm.ruleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrRule, rule)))
}

// TrackInflight increments the in-flight file gauge and returns a function
// to decrement it. Safe to call on a nil receiver (returns a no-op func).
func (lm *LintMetrics) TrackInflight(ctx context.Context) func() {
	if lm == nil {
		return func() {}
	}

	lm.filesInflight.Add(ctx, 1)

	return func() {
		lm.filesInflight.Add(ctx, -1)
	}
}

// RecordCache records result cache hit/miss totals for a run.
// Safe to call on a nil receiver (no-op).
func (lm *LintMetrics) RecordCache(ctx context.Context, hits, misses int64) {
	if lm == nil {
		return
	}

	lm.cacheHits.Add(ctx, hits)
	lm.cacheMisses.Add(ctx, misses)
}
