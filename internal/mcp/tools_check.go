package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/lint"
)

// CheckOutput is the structured result of one treelint_check call.
type CheckOutput struct {
	Language    string            `json:"language"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Problems    []string          `json:"problems,omitempty"`
}

// handleCheck processes treelint_check tool calls.
func (s *Server) handleCheck(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input CheckInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateCodeInput(input.Code, input.Language)
	if err != nil {
		return errorResult(err)
	}

	lintRunner, err := s.runnerFor(input.Rules)
	if err != nil {
		return errorResult(err)
	}

	res, err := lintRunner.CheckSource(ctx, syntheticFilename(input.Language), []byte(input.Code))
	if err != nil {
		return errorResult(fmt.Errorf("lint code: %w", err))
	}

	output := CheckOutput{
		Language:    res.Language,
		Diagnostics: res.Result.Diagnostics,
	}

	for _, problem := range res.Result.Problems {
		output.Problems = append(output.Problems, problem.Error())
	}

	return jsonResult(output)
}

// runnerFor returns the shared runner, or a scoped one when the call names
// specific rules.
func (s *Server) runnerFor(rules []string) (*runner.Runner, error) {
	if len(rules) == 0 {
		return s.deps.Runner, nil
	}

	sub, err := s.deps.Registry.Select(rules)
	if err != nil {
		return nil, err
	}

	return runner.New(runner.Options{Engine: lint.NewEngine(sub, lint.Options{})}), nil
}

// RuleInfo is one rule of the treelint_rules listing.
type RuleInfo struct {
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	Languages   string `json:"languages"`
	Description string `json:"description"`
}

// handleRules processes treelint_rules tool calls.
func (s *Server) handleRules(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input RulesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	var listing []RuleInfo

	for _, rule := range s.deps.Registry.Rules() {
		if input.Language != "" && !rule.AppliesTo(input.Language) {
			continue
		}

		listing = append(listing, RuleInfo{
			Name:        rule.Name,
			Severity:    rule.Severity.String(),
			Languages:   strings.Join(rule.Languages, ", "),
			Description: rule.Description,
		})
	}

	return jsonResult(listing)
}
