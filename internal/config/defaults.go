package config

// Run defaults.
const (
	// DefaultRunWorkers of zero selects one worker per CPU at run time.
	DefaultRunWorkers = 0
	// DefaultRunRuleTimeout bounds one rule's scan of one tree.
	DefaultRunRuleTimeout = "500ms"
	// DefaultRunMaxFileSize skips files larger than this.
	DefaultRunMaxFileSize = "1 MiB"
	// DefaultRunIncludeVendored keeps vendored paths out of the walk.
	DefaultRunIncludeVendored = false
)

// Output defaults.
const (
	DefaultOutputFormat          = "text"
	DefaultOutputColor           = "auto"
	DefaultOutputSummary         = true
	DefaultOutputMaxSeverityExit = "error"
)

// Cache defaults. An empty dir resolves to the user cache directory.
const (
	DefaultCacheEnabled = true
	DefaultCacheDir     = ""
)

// Observability defaults.
const (
	DefaultObservabilityEnabled     = false
	DefaultObservabilityServiceName = "treelint"
)
