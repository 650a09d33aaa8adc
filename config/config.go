package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	NetMonitor NetMonitorConfig `yaml:"netmonitor"`
}

// NetMonitorConfig is the project configuration.
type NetMonitorConfig struct {
	Sampler SamplerConfig `yaml:"sampler"`
	Naming  NamingConfig  `yaml:"naming"`
	Source  SourceConfig  `yaml:"source"`
	Report  ReportConfig  `yaml:"report"`
	Rules   RulesConfig   `yaml:"rules"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// SamplerConfig controls the sampling loop.
type SamplerConfig struct {
	// Interval is the pause between cycles; zero runs cycles back to back.
	// Nil means unset.
	Interval *time.Duration `yaml:"interval"`
	// Testing records connections with neither an owner nor an address pair.
	Testing bool `yaml:"testing"`
}

// NamingConfig controls process name derivation.
type NamingConfig struct {
	NameLimit           NameLimit `yaml:"name_limit"`
	MainProgramNameOnly bool      `yaml:"main_program_name_only"`
}

// SourceConfig controls where connections and command lines come from.
type SourceConfig struct {
	ProcRoot       string        `yaml:"proc_root"`
	Resolver       string        `yaml:"resolver"` // procfs|ps
	PSPath         string        `yaml:"ps_path"`
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
}

// ReportConfig controls report persistence.
type ReportConfig struct {
	Mode     string      `yaml:"mode"` // file|redis|file,redis
	Dir      string      `yaml:"dir"`
	OneFile  bool        `yaml:"one_file"`
	Excluded []string    `yaml:"excluded"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig controls the Redis report sink.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	Channel   string        `yaml:"channel"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RulesConfig controls watch rules over newly observed flows.
type RulesConfig struct {
	Enabled bool              `yaml:"enabled"`
	Path    string            `yaml:"path"`
	Output  AlertOutputConfig `yaml:"output"`
}

// AlertOutputConfig controls the rule match sink.
type AlertOutputConfig struct {
	Mode string           `yaml:"mode"` // file|http
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
	// BatchSize caps the rule matches per request.
	BatchSize int `yaml:"batch_size"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	// Enabled defaults to true when unset.
	Enabled *bool  `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// NameLimit is a maximum process name length. Zero means no limit; besides
// integers it accepts false and null.
type NameLimit int

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *NameLimit) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!null":
		*n = 0
		return nil
	case "!!bool":
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		if b {
			return fmt.Errorf("line %d: name_limit must be an integer or false", value.Line)
		}
		*n = 0
		return nil
	}

	var v int
	if err := value.Decode(&v); err != nil {
		return fmt.Errorf("line %d: name_limit must be an integer or false", value.Line)
	}
	if v < 0 {
		return fmt.Errorf("line %d: name_limit must not be negative", value.Line)
	}
	*n = NameLimit(v)
	return nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
