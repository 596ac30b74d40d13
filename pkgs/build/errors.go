package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfig is matched by every ConfigError. A configuration error means the
// build graph itself cannot be constructed, so executors abort the whole
// build rather than just the failing branch.
var ErrConfig = errors.New("configuration error")

// ConfigError reports an invalid project or dependency configuration.
type ConfigError struct {
	Subject string // offending unit, library or file
	Msg     string
}

// Configf returns a ConfigError for subject.
func Configf(subject, format string, args ...any) *ConfigError {
	return &ConfigError{Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Subject == "" {
		return e.Msg
	}
	return e.Subject + ": " + e.Msg
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// ExitError reports an external process that exited unsuccessfully.
// Stderr holds the process's error stream exactly as it was written.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Name, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}
