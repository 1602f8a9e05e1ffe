// Package confirmation gates risky executions behind an operator prompt.
package confirmation

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mysql-migrate/internal/display"
	"mysql-migrate/internal/migration"
)

// Service asks the operator to approve risky executions before they run.
// Answers are read from the configured input, so commands pass their stdin
// and tests pass a buffer.
type Service struct {
	display *display.Service
	reader  *bufio.Reader
}

// NewService creates a confirmation service reading answers from input.
// A nil input falls back to os.Stdin.
func NewService(disp *display.Service, input io.Reader) *Service {
	if input == nil {
		input = os.Stdin
	}
	return &Service{
		display: disp,
		reader:  bufio.NewReader(input),
	}
}

// RequiresConfirmation reports whether a risk level needs an explicit
// operator decision before execution
func RequiresConfirmation(risk migration.RiskLevel) bool {
	return risk == migration.RiskHigh || risk == migration.RiskCritical
}

// ConfirmPlan shows the plan summary and asks for approval when the plan's
// aggregate risk is high or critical. Lower-risk plans proceed without a
// prompt; autoApprove prints the summary but skips the question.
func (s *Service) ConfirmPlan(plan *migration.ExecutionPlan, autoApprove bool) (bool, error) {
	if !RequiresConfirmation(plan.Risk) {
		return true, nil
	}

	s.showPlanSummary(plan)

	if autoApprove {
		s.display.Muted("auto-approved (%s risk)", plan.Risk)
		return true, nil
	}

	return s.prompt(fmt.Sprintf("Apply %d migration set(s) at %s risk? [y/N]: ", len(plan.Migrations), plan.Risk))
}

// ConfirmRollback always asks: reversing an applied set is destructive no
// matter what risk the set declared going forward.
func (s *Service) ConfirmRollback(set *migration.MigrationSet, reason string, autoApprove bool) (bool, error) {
	s.display.Warning("About to roll back %s: %s", set.Version, set.Description)
	if reason != "" {
		s.display.Muted("reason: %s", reason)
	}

	if autoApprove {
		s.display.Muted("auto-approved")
		return true, nil
	}

	return s.prompt(fmt.Sprintf("Roll back %s? [y/N]: ", set.Version))
}

// showPlanSummary lists what the operator is about to approve
func (s *Service) showPlanSummary(plan *migration.ExecutionPlan) {
	s.display.Warning("This plan carries %s risk", plan.Risk)
	for _, set := range plan.Migrations {
		s.display.Printf("  %-14s %-8s %s\n", set.Version, set.EffectiveRisk(), set.Description)
	}
	if plan.RequiresDowntime {
		s.display.Warning("Downtime is required")
	}
	if plan.TotalEstimated > 0 {
		s.display.Muted("estimated duration: %s", plan.TotalEstimated)
	}
}

// prompt asks until it gets a recognizable answer. Only an explicit yes
// approves; an empty answer or end of input declines.
func (s *Service) prompt(question string) (bool, error) {
	for {
		s.display.Printf("%s", question)

		line, err := s.reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return answer == "y" || answer == "yes", nil
			}
			return false, fmt.Errorf("failed to read confirmation answer: %w", err)
		}

		switch answer {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			return false, nil
		default:
			s.display.Warning("unrecognized answer %q, expected y or n", answer)
		}
	}
}
