package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// legacyValue wraps every option of the original config_file.json, which
// stores each setting as {"data": <value>}.
type legacyValue[T any] struct {
	Data T `yaml:"data"`
}

type legacyConfig struct {
	Testing             *legacyValue[bool]      `yaml:"testing"`
	NameLimit           *legacyValue[NameLimit] `yaml:"name_limit"`
	MainProgramNameOnly *legacyValue[bool]      `yaml:"main_program_name_only"`
	Excluded            *legacyValue[[]string]  `yaml:"excluded"`
	OneFile             *legacyValue[bool]      `yaml:"one_file"`
	Sleep               *legacyValue[float64]   `yaml:"sleep"`
}

// LoadLegacyConfig reads a config_file.json in the original format. Every
// option must be present.
func LoadLegacyConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parse legacy config: %w", err)
	}

	missing := func(name string) error {
		return fmt.Errorf("legacy config %s: missing %q", path, name)
	}
	switch {
	case legacy.Testing == nil:
		return nil, missing("testing")
	case legacy.NameLimit == nil:
		return nil, missing("name_limit")
	case legacy.MainProgramNameOnly == nil:
		return nil, missing("main_program_name_only")
	case legacy.Excluded == nil:
		return nil, missing("excluded")
	case legacy.OneFile == nil:
		return nil, missing("one_file")
	case legacy.Sleep == nil:
		return nil, missing("sleep")
	}
	if legacy.Sleep.Data < 0 {
		return nil, fmt.Errorf("legacy config %s: sleep must not be negative", path)
	}

	var cfg Config
	nm := &cfg.NetMonitor
	nm.Sampler.Testing = legacy.Testing.Data
	interval := time.Duration(legacy.Sleep.Data * float64(time.Second))
	nm.Sampler.Interval = &interval
	nm.Naming.NameLimit = legacy.NameLimit.Data
	nm.Naming.MainProgramNameOnly = legacy.MainProgramNameOnly.Data
	nm.Report.OneFile = legacy.OneFile.Data
	nm.Report.Excluded = legacy.Excluded.Data
	return &cfg, nil
}
