package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

// machineDocument is the serialized shape shared by the json and yaml
// renderers. Problems serialize as strings; error values have no stable
// structured form.
type machineDocument struct {
	Files    []machineFile  `json:"files" yaml:"files"`
	Problems []string       `json:"problems,omitempty" yaml:"problems,omitempty"`
	Summary  machineSummary `json:"summary" yaml:"summary"`
}

type machineFile struct {
	Path        string            `json:"path" yaml:"path"`
	Language    string            `json:"language" yaml:"language"`
	Diagnostics []diag.Diagnostic `json:"diagnostics" yaml:"diagnostics"`
}

type machineSummary struct {
	FilesScanned int    `json:"files_scanned" yaml:"files_scanned"`
	FilesSkipped int    `json:"files_skipped" yaml:"files_skipped"`
	FilesFailed  int    `json:"files_failed" yaml:"files_failed"`
	Findings     int    `json:"findings" yaml:"findings"`
	ElapsedMS    int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
	CacheHits    int64  `json:"cache_hits" yaml:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses" yaml:"cache_misses"`
}

func buildDocument(result runner.RunResult) machineDocument {
	doc := machineDocument{
		Files: make([]machineFile, 0, len(result.Files)),
		Summary: machineSummary{
			FilesScanned: result.FilesScanned,
			FilesSkipped: result.FilesSkipped,
			FilesFailed:  result.FilesFailed,
			Findings:     len(result.Diagnostics()),
			ElapsedMS:    result.Elapsed.Milliseconds(),
			CacheHits:    result.CacheStats.Hits,
			CacheMisses:  result.CacheStats.Misses,
		},
	}

	for _, file := range result.Files {
		doc.Files = append(doc.Files, machineFile{
			Path:        file.Path,
			Language:    file.Language,
			Diagnostics: file.Result.Diagnostics,
		})
	}

	for _, problem := range result.Problems() {
		doc.Problems = append(doc.Problems, problem.Error())
	}

	return doc
}

func renderJSON(w io.Writer, result runner.RunResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(buildDocument(result))
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}

	return nil
}

func renderYAML(w io.Writer, result runner.RunResult) error {
	encoder := yaml.NewEncoder(w)
	defer func() { _ = encoder.Close() }()

	err := encoder.Encode(buildDocument(result))
	if err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	return nil
}
