package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mysql-migrate/internal/errors"
)

// setFile is the YAML shape of a migration set definition. Durations are
// plain strings ("30s", "5m") so definitions stay readable.
type setFile struct {
	Version           string     `yaml:"version"`
	Description       string     `yaml:"description"`
	Dependencies      []string   `yaml:"dependencies"`
	Steps             []stepFile `yaml:"steps"`
	RollbackScript    string     `yaml:"rollback_script"`
	ValidationQueries []string   `yaml:"validation_queries"`
	EstimatedDuration string     `yaml:"estimated_duration"`
	Risk              string     `yaml:"risk"`
	RequiresDowntime  bool       `yaml:"requires_downtime"`
	BackupRequired    bool       `yaml:"backup_required"`
	Checksum          string     `yaml:"checksum"`
}

type stepFile struct {
	ID              string   `yaml:"id"`
	Kind            string   `yaml:"kind"`
	Script          string   `yaml:"script"`
	RollbackScript  string   `yaml:"rollback_script"`
	ValidationQuery string   `yaml:"validation_query"`
	Timeout         string   `yaml:"timeout"`
	BatchSize       int      `yaml:"batch_size"`
	OnError         string   `yaml:"on_error"`
	MaxRetries      int      `yaml:"max_retries"`
	DependsOn       []string `yaml:"depends_on"`
}

// LoadFile parses one migration set definition. A definition that declares a
// checksum keeps it, so tampering is caught at registration; a definition
// without one is sealed here, making the loaded file the content of record.
func LoadFile(path string) (*MigrationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration,
			fmt.Sprintf("failed to read migration file %s", path), err)
	}

	var file setFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration,
			fmt.Sprintf("failed to parse migration file %s", path), err)
	}

	set, err := file.toSet()
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration,
			fmt.Sprintf("invalid migration file %s: %v", path, err), nil)
	}

	return set, nil
}

// LoadDir parses every .yaml/.yml definition in dir, sorted by version
func LoadDir(dir string) ([]*MigrationSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration,
			fmt.Sprintf("failed to read migrations directory %s", dir), err)
	}

	var sets []*MigrationSet
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		set, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}

	sort.Slice(sets, func(i, j int) bool {
		return CompareVersions(sets[i].Version, sets[j].Version) < 0
	})

	return sets, nil
}

func (f *setFile) toSet() (*MigrationSet, error) {
	set := &MigrationSet{
		Version:           f.Version,
		Description:       f.Description,
		Dependencies:      f.Dependencies,
		RollbackScript:    f.RollbackScript,
		ValidationQueries: f.ValidationQueries,
		Risk:              RiskLevel(f.Risk),
		RequiresDowntime:  f.RequiresDowntime,
		BackupRequired:    f.BackupRequired,
		Checksum:          f.Checksum,
	}

	if f.EstimatedDuration != "" {
		duration, err := time.ParseDuration(f.EstimatedDuration)
		if err != nil {
			return nil, fmt.Errorf("invalid estimated_duration %q: %v", f.EstimatedDuration, err)
		}
		set.EstimatedDuration = duration
	}

	for _, sf := range f.Steps {
		step := MigrationStep{
			ID:              sf.ID,
			Kind:            StepKind(sf.Kind),
			Script:          sf.Script,
			RollbackScript:  sf.RollbackScript,
			ValidationQuery: sf.ValidationQuery,
			BatchSize:       sf.BatchSize,
			OnError:         ErrorPolicy(sf.OnError),
			MaxRetries:      sf.MaxRetries,
			DependsOn:       sf.DependsOn,
		}
		if sf.Timeout != "" {
			timeout, err := time.ParseDuration(sf.Timeout)
			if err != nil {
				return nil, fmt.Errorf("step %s: invalid timeout %q: %v", sf.ID, sf.Timeout, err)
			}
			step.Timeout = timeout
		}
		set.Steps = append(set.Steps, step)
	}

	if set.Checksum == "" {
		set.Seal()
	}

	return set, nil
}
