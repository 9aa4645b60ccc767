package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

// Config is the top-level configuration struct for treelint.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Rules         RulesConfig         `mapstructure:"rules"`
	Run           RunConfig           `mapstructure:"run"`
	Output        OutputConfig        `mapstructure:"output"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// RulesConfig controls which rules load and how their severities are
// overridden per project.
type RulesConfig struct {
	Enabled  []string          `mapstructure:"enabled"`
	Disabled []string          `mapstructure:"disabled"`
	Paths    []string          `mapstructure:"paths"`
	Severity map[string]string `mapstructure:"severity"`
}

// RunConfig holds file-walk and evaluation resource knobs.
type RunConfig struct {
	Workers         int      `mapstructure:"workers"`
	RuleTimeout     string   `mapstructure:"rule_timeout"`
	MaxFileSize     string   `mapstructure:"max_file_size"`
	Exclude         []string `mapstructure:"exclude"`
	IncludeVendored bool     `mapstructure:"include_vendored"`
	ChangedSince    string   `mapstructure:"changed_since"`
}

// OutputConfig holds rendering settings.
type OutputConfig struct {
	Format          string `mapstructure:"format"`
	Color           string `mapstructure:"color"`
	Summary         bool   `mapstructure:"summary"`
	MaxSeverityExit string `mapstructure:"max_severity_exit"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ServiceName     string `mapstructure:"service_name"`
	OTLPEndpoint    string `mapstructure:"otlp_endpoint"`
	DiagnosticsAddr string `mapstructure:"diagnostics_addr"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("run.workers must be non-negative")
	// ErrInvalidRuleTimeout indicates the rule timeout does not parse as a duration.
	ErrInvalidRuleTimeout = errors.New("run.rule_timeout must be a duration")
	// ErrInvalidMaxFileSize indicates the max file size does not parse as a byte size.
	ErrInvalidMaxFileSize = errors.New("run.max_file_size must be a byte size")
	// ErrInvalidFormat indicates an unknown output format.
	ErrInvalidFormat = errors.New("output.format must be one of text, json, yaml, table, html")
	// ErrInvalidColorMode indicates an unknown color mode.
	ErrInvalidColorMode = errors.New("output.color must be one of auto, always, never")
	// ErrInvalidSeverity indicates an unknown severity name.
	ErrInvalidSeverity = errors.New("severity must be one of error, warning, info")
)

//nolint:gochecknoglobals // Fixed lookup table.
var knownFormats = map[string]struct{}{
	"text": {}, "json": {}, "yaml": {}, "table": {}, "html": {},
}

//nolint:gochecknoglobals // Fixed lookup table.
var knownColorModes = map[string]struct{}{
	"auto": {}, "always": {}, "never": {},
}

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	runErr := c.validateRun()
	if runErr != nil {
		return runErr
	}

	outputErr := c.validateOutput()
	if outputErr != nil {
		return outputErr
	}

	return c.validateRules()
}

func (c *Config) validateRun() error {
	if c.Run.Workers < 0 {
		return ErrInvalidWorkers
	}

	if c.Run.RuleTimeout != "" {
		if _, err := time.ParseDuration(c.Run.RuleTimeout); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidRuleTimeout, c.Run.RuleTimeout)
		}
	}

	if c.Run.MaxFileSize != "" {
		if _, err := humanize.ParseBytes(c.Run.MaxFileSize); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidMaxFileSize, c.Run.MaxFileSize)
		}
	}

	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Format != "" {
		if _, ok := knownFormats[c.Output.Format]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Output.Format)
		}
	}

	if c.Output.Color != "" {
		if _, ok := knownColorModes[c.Output.Color]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColorMode, c.Output.Color)
		}
	}

	if c.Output.MaxSeverityExit != "" {
		if _, err := diag.ParseSeverity(c.Output.MaxSeverityExit); err != nil {
			return fmt.Errorf("%w: output.max_severity_exit %q", ErrInvalidSeverity, c.Output.MaxSeverityExit)
		}
	}

	return nil
}

func (c *Config) validateRules() error {
	for rule, name := range c.Rules.Severity {
		if _, err := diag.ParseSeverity(name); err != nil {
			return fmt.Errorf("%w: rules.severity[%s] = %q", ErrInvalidSeverity, rule, name)
		}
	}

	return nil
}

// RuleTimeoutDuration returns the parsed per-rule timeout. An empty setting
// returns zero, which callers treat as "use the engine default".
func (c *RunConfig) RuleTimeoutDuration() (time.Duration, error) {
	if c.RuleTimeout == "" {
		return 0, nil
	}

	timeout, err := time.ParseDuration(c.RuleTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRuleTimeout, c.RuleTimeout)
	}

	return timeout, nil
}

// MaxFileSizeBytes returns the parsed file size cap in bytes. An empty
// setting returns zero, meaning no cap.
func (c *RunConfig) MaxFileSizeBytes() (uint64, error) {
	if c.MaxFileSize == "" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMaxFileSize, c.MaxFileSize)
	}

	return size, nil
}

// SeverityOverrides returns the per-rule severity overrides with names parsed.
func (c *RulesConfig) SeverityOverrides() (map[string]diag.Severity, error) {
	if len(c.Severity) == 0 {
		return nil, nil
	}

	overrides := make(map[string]diag.Severity, len(c.Severity))

	for rule, name := range c.Severity {
		sev, err := diag.ParseSeverity(name)
		if err != nil {
			return nil, fmt.Errorf("%w: rules.severity[%s] = %q", ErrInvalidSeverity, rule, name)
		}

		overrides[rule] = sev
	}

	return overrides, nil
}

// ExitThreshold returns the severity at or above which findings fail the
// run. An empty setting keeps the default of failing on errors only.
func (c *OutputConfig) ExitThreshold() (diag.Severity, error) {
	if c.MaxSeverityExit == "" {
		return diag.SeverityError, nil
	}

	threshold, err := diag.ParseSeverity(c.MaxSeverityExit)
	if err != nil {
		return diag.SeverityError, fmt.Errorf("%w: output.max_severity_exit %q", ErrInvalidSeverity, c.MaxSeverityExit)
	}

	return threshold, nil
}
