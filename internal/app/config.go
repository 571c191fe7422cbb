package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	RunPath string // hcl run file
	// Variants overrides the run file's variants list.
	Variants []string
	// Workers overrides the run file's pool size when positive.
	Workers int

	Resume bool
	Append bool
	List   bool
	Probe  bool
	// WriteConfigs is a directory to write every variant's config document
	// to.
	WriteConfigs string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.RunPath == "" && cfg.WriteConfigs == "" {
		return nil, errors.New("a run file is required unless only writing config documents")
	}
	if cfg.Resume && cfg.Append {
		return nil, errors.New("resume and append are mutually exclusive")
	}
	if cfg.List && cfg.Probe {
		return nil, errors.New("list and probe are mutually exclusive")
	}
	if cfg.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	return &cfg, nil
}
