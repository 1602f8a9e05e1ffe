// Package validation runs declarative data-validation rules against the
// target store, independent of any specific migration. It is used for
// health checks and audits.
package validation

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"mysql-migrate/internal/executor"
	"mysql-migrate/internal/logging"
)

// Category classifies what a rule checks
type Category string

const (
	CategoryIntegrity    Category = "integrity"
	CategoryConsistency  Category = "consistency"
	CategoryReferential  Category = "referential"
	CategoryBusinessRule Category = "business_rule"
)

// Severity controls how a failing rule is counted
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rule is a declarative check: a query plus the result shape it must produce
type Rule struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    Category    `json:"category"`
	Query       string      `json:"query"`
	Expected    interface{} `json:"expected,omitempty"`
	Critical    bool        `json:"critical"`
	Severity    Severity    `json:"severity"`
}

// RuleResult is the outcome of one rule
type RuleResult struct {
	Rule     Rule          `json:"rule"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary aggregates a validation run. Failing critical rules count like any
// other failure; callers gating deployments on critical rules must inspect
// Results[i].Rule.Critical.
type Summary struct {
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	Warnings int          `json:"warnings"`
	Results  []RuleResult `json:"results"`
}

// HasCriticalFailures reports whether any failing result is a critical rule
func (s *Summary) HasCriticalFailures() bool {
	for _, r := range s.Results {
		if !r.Passed && r.Rule.Critical {
			return true
		}
	}
	return false
}

// Engine executes validation rules through the statement executor
type Engine struct {
	executor executor.StatementExecutor
	logger   *logging.Logger
}

// NewEngine creates a validation engine
func NewEngine(exec executor.StatementExecutor, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Engine{
		executor: exec,
		logger:   logger,
	}
}

// RunRules executes every rule and aggregates the outcomes. A rule whose
// query errors is always counted as failed regardless of its declared
// severity: a broken check is never merely a warning. A rule that ran but
// did not match counts toward warnings when its severity is warning.
func (e *Engine) RunRules(ctx context.Context, rules []Rule) (*Summary, error) {
	summary := &Summary{
		Results: make([]RuleResult, 0, len(rules)),
	}

	for _, rule := range rules {
		start := time.Now()
		result := RuleResult{Rule: rule}

		qr, err := e.executor.Query(ctx, rule.Query)
		switch {
		case err != nil:
			result.Message = fmt.Sprintf("query could not run: %v", err)
			summary.Failed++
		case !qr.Success:
			result.Message = "query failed: " + qr.Err
			summary.Failed++
		default:
			if matched, why := matchShape(qr.Data, rule.Expected); matched {
				result.Passed = true
				summary.Passed++
			} else {
				result.Message = why
				if rule.Severity == SeverityWarning {
					summary.Warnings++
				} else {
					summary.Failed++
				}
			}
		}

		result.Duration = time.Since(start)
		summary.Results = append(summary.Results, result)

		e.logger.WithFields(map[string]interface{}{
			"rule":     rule.Name,
			"category": string(rule.Category),
			"passed":   result.Passed,
			"critical": rule.Critical,
			"duration": result.Duration.String(),
		}).Debug("Validation rule evaluated")
	}

	return summary, nil
}

// matchShape compares query output against the expected result shape. The
// comparison is structural and shallow by contract: maps match on key sets,
// slices match on length, scalars match on dynamic type. It is deliberately
// not deep equality, so that volatile values such as timestamps or row ids
// do not fail a shape check. Do not tighten this to deep equality.
func matchShape(data []map[string]interface{}, expected interface{}) (bool, string) {
	if expected == nil {
		return true, ""
	}

	switch want := expected.(type) {
	case []interface{}:
		if len(data) != len(want) {
			return false, fmt.Sprintf("expected %d rows, got %d", len(want), len(data))
		}
		return true, ""

	case map[string]interface{}:
		if len(data) == 0 {
			return false, "expected at least one row, got none"
		}
		row := data[0]
		if len(row) != len(want) {
			return false, fmt.Sprintf("expected %d columns, got %d", len(want), len(row))
		}
		for key := range want {
			if _, ok := row[key]; !ok {
				return false, fmt.Sprintf("expected column %q is missing", key)
			}
		}
		return true, ""

	default:
		if len(data) != 1 {
			return false, fmt.Sprintf("expected a single-value result, got %d rows", len(data))
		}
		row := data[0]
		if len(row) != 1 {
			return false, fmt.Sprintf("expected a single column, got %d", len(row))
		}
		for _, value := range row {
			if value == nil {
				return false, "expected a value, got NULL"
			}
			if reflect.TypeOf(value) != reflect.TypeOf(want) {
				return false, fmt.Sprintf("expected value of type %T, got %T", want, value)
			}
		}
		return true, ""
	}
}
