package migration

import (
	"fmt"
	"sort"
	"sync"

	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/logging"
)

// Registry is the catalog of all known migration sets; the source of truth
// for what can be applied. Sets are immutable once registered.
type Registry struct {
	mu     sync.RWMutex
	sets   map[string]*MigrationSet
	ledger Ledger
	logger *logging.Logger
}

// NewRegistry creates a registry backed by the given ledger for applied/pending
// queries
func NewRegistry(ledger Ledger, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Registry{
		sets:   make(map[string]*MigrationSet),
		ledger: ledger,
		logger: logger,
	}
}

// Register catalogs a migration set. No execution occurs. Registration fails
// if the version already exists, any declared dependency is unknown, or the
// supplied checksum does not match a recomputation of the declared content.
func (r *Registry) Register(set *MigrationSet) error {
	return r.register(set, false)
}

// Replace force-registers a set, overwriting any existing registration of the
// same version. Dependency and checksum invariants still apply.
func (r *Registry) Replace(set *MigrationSet) error {
	return r.register(set, true)
}

func (r *Registry) register(set *MigrationSet, force bool) error {
	if set == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "migration set is required", nil)
	}
	if err := set.Validate(); err != nil {
		return errors.NewAppError(errors.ErrorTypeValidation, err.Error(), nil).
			WithContext("version", set.Version)
	}

	// Tamper/drift guard: the checksum handed to us must match the content
	// handed to us.
	if !set.VerifyChecksum() {
		return errors.NewAppError(errors.ErrorTypeChecksumMismatch,
			fmt.Sprintf("checksum mismatch for migration %s: content was modified after the checksum was computed", set.Version), nil).
			WithContext("version", set.Version).
			WithContext("declared_checksum", set.Checksum).
			WithContext("computed_checksum", set.ComputeChecksum())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sets[set.Version]; exists && !force {
		return errors.NewAppError(errors.ErrorTypeAlreadyRegistered,
			fmt.Sprintf("migration %s is already registered", set.Version), nil).
			WithContext("version", set.Version)
	}

	// No forward references: every dependency must already be cataloged
	for _, dep := range set.Dependencies {
		if _, ok := r.sets[dep]; !ok {
			return errors.NewAppError(errors.ErrorTypeDependencyNotFound,
				fmt.Sprintf("migration %s depends on unregistered version %s", set.Version, dep), nil).
				WithContext("version", set.Version).
				WithContext("dependency", dep)
		}
	}

	copied := *set
	r.sets[set.Version] = &copied

	r.logger.WithFields(map[string]interface{}{
		"version":    set.Version,
		"steps":      len(set.Steps),
		"depends_on": set.Dependencies,
		"risk":       string(set.EffectiveRisk()),
	}).Info("Migration registered")

	return nil
}

// Get returns the registered set for a version
func (r *Registry) Get(version string) (*MigrationSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[version]
	if !ok {
		return nil, errors.NewAppError(errors.ErrorTypeNotFound,
			fmt.Sprintf("migration %s is not registered", version), nil).
			WithContext("version", version)
	}

	copied := *set
	return &copied, nil
}

// List returns all registered sets sorted by version
func (r *Registry) List() []*MigrationSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sets := make([]*MigrationSet, 0, len(r.sets))
	for _, set := range r.sets {
		copied := *set
		sets = append(sets, &copied)
	}

	sort.Slice(sets, func(i, j int) bool {
		return CompareVersions(sets[i].Version, sets[j].Version) < 0
	})

	return sets
}

// ListApplied returns registered sets with at least one successful execution
// on record, sorted by version
func (r *Registry) ListApplied() []*MigrationSet {
	var applied []*MigrationSet
	for _, set := range r.List() {
		if r.ledger.HasSucceeded(set.Version) {
			applied = append(applied, set)
		}
	}
	return applied
}

// ListPending returns registered sets without a successful execution on
// record, sorted by version
func (r *Registry) ListPending() []*MigrationSet {
	var pending []*MigrationSet
	for _, set := range r.List() {
		if !r.ledger.HasSucceeded(set.Version) {
			pending = append(pending, set)
		}
	}
	return pending
}

// Count returns the number of registered sets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}
