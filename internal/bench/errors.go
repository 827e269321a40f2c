package bench

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is active.
	ErrAlreadyRunning = errors.New("bench: a run is already in progress")
	// ErrNotRunning is returned by Stop when no run is active.
	ErrNotRunning = errors.New("bench: no run in progress")
	// ErrInvalidConfig matches every ConfigError.
	ErrInvalidConfig = errors.New("bench: invalid run configuration")
)

// ConfigError aggregates all run configuration issues.
type ConfigError struct {
	issues []string
}

func (e *ConfigError) Error() string {
	if len(e.issues) == 0 {
		return ErrInvalidConfig.Error()
	}
	return "invalid run configuration: " + strings.Join(e.issues, "; ")
}

// Issues returns a copy of the individual validation failures.
func (e *ConfigError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func (e *ConfigError) add(format string, args ...any) {
	e.issues = append(e.issues, fmt.Sprintf(format, args...))
}
