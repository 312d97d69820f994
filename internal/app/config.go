package app

import "errors"

// Config holds everything an App needs to generate one run.
type Config struct {
	GridPath    string // .hcl file or directory of them
	SamplesPath string // YAML sample sheet
	OutDir      string // run output root

	DryRun    bool // print submit commands instead of writing the master script
	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, errors.New("grid path is required")
	}
	if cfg.SamplesPath == "" {
		return nil, errors.New("sample sheet path is required")
	}
	if cfg.OutDir == "" {
		return nil, errors.New("output directory is required")
	}
	return &cfg, nil
}
