// Package mods implements the named case-file edit operations applied to an
// environment during world setup, job setup and job clean-up.
package mods

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AaronLay10/orle/internal/config"
)

// Logger receives progress and partial-failure messages from operations.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Op edits the case in caseDir using the entry's parameters. A nil error is success.
type Op func(log Logger, p config.Params, caseDir string) error

// UnknownOpError is returned when an entry names an operation that is not registered.
type UnknownOpError struct {
	Registry string
	Name     string
}

func (e *UnknownOpError) Error() string {
	return fmt.Sprintf("%s function %s not supported", e.Registry, e.Name)
}

// Registry maps operation names to operations.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Op
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Op)}
}

// Register adds or replaces the operation stored under name.
func (r *Registry) Register(name string, op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = op
}

// Lookup returns the operation stored under name.
func (r *Registry) Lookup(name string) (Op, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	if !ok {
		return nil, &UnknownOpError{Registry: "mod", Name: name}
	}
	return op, nil
}

// Check reports every entry whose name is not registered.
func (r *Registry) Check(entries []config.Entry) error {
	var errs []error
	for _, e := range entries {
		if _, err := r.Lookup(e.Func); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Apply runs every entry against caseDir. Failures do not stop later entries;
// they are joined into the returned error.
func (r *Registry) Apply(log Logger, entries []config.Entry, caseDir string) error {
	var errs []error
	for _, e := range entries {
		op, err := r.Lookup(e.Func)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := op(log, e.Params, caseDir); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Func, err))
		}
	}
	return errors.Join(errs...)
}

// Default returns a registry holding every built-in operation.
func Default() *Registry {
	r := NewRegistry()
	r.Register("set_control_dict", SetControlDict)
	r.Register("set_decompose_dict", SetDecomposeDict)
	r.Register("set_viscosity", SetViscosity)
	r.Register("set_boundary", FanOut(SetBoundary))
	r.Register("set_saved_field_times", FanOut(SetSavedFieldTimes))
	return r
}
