package migration

import (
	"fmt"
	"time"

	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/logging"
)

// ExecutionPlan is the dependency-resolved, ordered sequence of sets required
// to reach a target version, with aggregated risk information.
type ExecutionPlan struct {
	Target            string          `json:"target"`
	Migrations        []*MigrationSet `json:"migrations"`
	TotalEstimated    time.Duration   `json:"total_estimated"`
	Risk              RiskLevel       `json:"risk"`
	RequiresDowntime  bool            `json:"requires_downtime"`
	BackupRequired    bool            `json:"backup_required"`
	CriticalPath      []string        `json:"critical_path"`
}

// Versions returns the ordered version identifiers of the plan
func (ep *ExecutionPlan) Versions() []string {
	versions := make([]string, len(ep.Migrations))
	for i, set := range ep.Migrations {
		versions[i] = set.Version
	}
	return versions
}

// Planner resolves dependency order for a target version. Planning is
// idempotent: the same registry state always yields the same ordered plan.
type Planner struct {
	registry *Registry
	logger   *logging.Logger
}

// NewPlanner creates a planner over the given registry
func NewPlanner(registry *Registry, logger *logging.Logger) *Planner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Planner{
		registry: registry,
		logger:   logger,
	}
}

// Plan computes the ordered execution plan to reach target. Every version
// appears strictly after all versions it transitively depends on. A version
// that is already applied is still a valid planning target; skipping is an
// executor decision, not a planner decision.
func (p *Planner) Plan(target string) (*ExecutionPlan, error) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var ordered []*MigrationSet
	if err := p.visit(target, visited, onStack, &ordered); err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		Target:     target,
		Migrations: ordered,
		Risk:       RiskLow,
	}

	for _, set := range ordered {
		plan.TotalEstimated += set.EstimatedDuration
		plan.Risk = MaxRisk(plan.Risk, set.EffectiveRisk())
		plan.RequiresDowntime = plan.RequiresDowntime || set.RequiresDowntime
		plan.BackupRequired = plan.BackupRequired || set.BackupRequired
	}

	// The critical path is the full dependency expansion ending at the
	// target, without the deduplication the plan itself applies. The graph
	// is known acyclic at this point, so the recursion terminates.
	plan.CriticalPath = p.expandPath(target)

	p.logger.WithFields(map[string]interface{}{
		"target":            target,
		"plan_length":       len(ordered),
		"risk":              string(plan.Risk),
		"requires_downtime": plan.RequiresDowntime,
		"backup_required":   plan.BackupRequired,
	}).Debug("Execution plan computed")

	return plan, nil
}

// visit performs the post-order traversal: a version is appended only after
// all of its dependencies have been appended. Re-entering a version that is
// still on the active recursion stack is a cycle.
func (p *Planner) visit(version string, visited, onStack map[string]bool, ordered *[]*MigrationSet) error {
	if visited[version] {
		return nil
	}
	if onStack[version] {
		return errors.NewAppError(errors.ErrorTypeCircularDependency,
			fmt.Sprintf("circular dependency detected involving migration %s", version), nil).
			WithContext("version", version)
	}

	set, err := p.registry.Get(version)
	if err != nil {
		return err
	}

	onStack[version] = true
	for _, dep := range set.Dependencies {
		if err := p.visit(dep, visited, onStack, ordered); err != nil {
			return err
		}
	}
	onStack[version] = false

	visited[version] = true
	*ordered = append(*ordered, set)
	return nil
}

// expandPath emits the dependency chain to version without pruning repeats
func (p *Planner) expandPath(version string) []string {
	set, err := p.registry.Get(version)
	if err != nil {
		return nil
	}

	var path []string
	for _, dep := range set.Dependencies {
		path = append(path, p.expandPath(dep)...)
	}
	return append(path, version)
}
