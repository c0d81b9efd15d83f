package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is one mapping definition read from a seed file.
type Seed struct {
	SourceSchema string            `yaml:"source_schema"`
	TargetSchema string            `yaml:"target_schema"`
	Rules        map[string]string `yaml:"mapping_rules"`
}

type seedFile struct {
	Mappings []Seed `yaml:"mappings"`
}

// LoadDir reads every .yaml/.yml file in dir (sorted by name) and returns
// the mappings they define. Any unreadable or invalid file fails the whole
// load so a broken seed set is never applied in part.
func LoadDir(dir string) ([]Seed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("schema: read seed dir: %w", err)
	}

	var seeds []Seed
	for _, entry := range entries {
		if entry.IsDir() || !isSeedFile(entry.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", entry.Name(), err)
		}
		var f seedFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("schema: parse %s: %w", entry.Name(), err)
		}
		for i, s := range f.Mappings {
			if s.SourceSchema == "" || s.TargetSchema == "" || len(s.Rules) == 0 {
				return nil, fmt.Errorf("schema: %s: mapping %d is incomplete", entry.Name(), i)
			}
		}
		seeds = append(seeds, f.Mappings...)
	}
	return seeds, nil
}

func isSeedFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
