package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the YAML shape of a rule set definition
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules parses a YAML rule set file
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	for i := range file.Rules {
		rule := &file.Rules[i]
		if rule.Name == "" {
			return nil, fmt.Errorf("rules file %s: rule %d has no name", path, i)
		}
		if rule.Query == "" {
			return nil, fmt.Errorf("rules file %s: rule %q has no query", path, rule.Name)
		}
		if rule.Category == "" {
			rule.Category = CategoryIntegrity
		}
		if rule.Severity == "" {
			rule.Severity = SeverityError
		}
	}

	return file.Rules, nil
}
