package config

import (
	"fmt"
	"strings"
)

// ConfigError reports a document that is absent, unparsable or structurally unusable.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError lists required keys or operation names missing from a document.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

// LookupError reports an id that is not present in the loaded configuration.
type LookupError struct {
	Kind string
	ID   int
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s id %d not present in universe config", e.Kind, e.ID)
}
