package job

import "fmt"

// ConfigError reports an invalid job or pipeline configuration value,
// such as a non-positive thread count or an unknown queue name.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// DependencyError reports a stage referencing another stage or output
// that was never declared in the current pipeline run.
type DependencyError struct {
	Stage   string
	Missing string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency: stage %q references undeclared %q", e.Stage, e.Missing)
}
