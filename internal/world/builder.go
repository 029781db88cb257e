// Package world materializes a world of the universe on disk: its queue and output
// directories, the base snapshot and one case directory per environment.
package world

import (
	"errors"
	"fmt"
	"os"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
	"github.com/AaronLay10/orle/internal/jlog"
	"github.com/AaronLay10/orle/internal/mods"
)

// Logger receives builder progress. *jlog.Logger satisfies it.
type Logger interface {
	mods.Logger
	Errorf(format string, args ...interface{})
}

// Builder creates and checks worlds of one universe.
type Builder struct {
	Universe *config.Universe
	Mods     *mods.Registry
	Log      Logger
}

// NewBuilder returns a builder using the default mod registry.
func NewBuilder(u *config.Universe, log Logger) *Builder {
	if log == nil {
		log = jlog.New(nil, nil)
	}
	return &Builder{Universe: u, Mods: mods.Default(), Log: log}
}

// Setup makes sure world id exists on disk. The world is deleted and rebuilt when
// overwrite is set or any expected directory is missing; otherwise nothing changes.
func (b *Builder) Setup(id int, overwrite bool) error {
	w, err := b.GetWorld(id)
	if err != nil {
		return err
	}
	if err := b.Validate(w); err != nil {
		return err
	}

	if !overwrite && b.Check(w) {
		return nil
	}

	b.Log.Warnf("Cleaning and building world %d.", w.ID)
	if err := b.Delete(w); err != nil {
		return err
	}
	return b.Build(w)
}

// GetWorld returns the configuration of world id.
func (b *Builder) GetWorld(id int) (*config.World, error) {
	w, err := b.Universe.World(id)
	if err != nil {
		b.Log.Errorf("World ID %d not present in universe config file.", id)
		return nil, err
	}
	return w, nil
}

// Validate checks the world for required keys and known mod names.
func (b *Builder) Validate(w *config.World) error {
	var errs []error
	if err := w.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, env := range w.Envs {
		if err := b.Mods.Check(env.Mods); err != nil {
			errs = append(errs, fmt.Errorf("environment %d: %w", env.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Check reports whether every directory of the world exists.
func (b *Builder) Check(w *config.World) bool {
	for _, dir := range []string{w.WorldDir, w.JobDir, w.OutputDir, w.BaseSnapshotDir()} {
		if !foam.Exists(dir) {
			return false
		}
	}
	for i := range w.Envs {
		if !foam.Exists(w.EnvDir(&w.Envs[i])) {
			return false
		}
	}
	b.Log.Infof("All folders for world %d appear to be setup.", w.ID)
	return true
}

// Delete removes the world directory tree. A missing directory is not an error.
func (b *Builder) Delete(w *config.World) error {
	if !foam.Exists(w.WorldDir) {
		return nil
	}
	b.Log.Warnf("Deleting world contents.")
	if err := os.RemoveAll(w.WorldDir); err != nil {
		return fmt.Errorf("failed to delete world %d: %w", w.ID, err)
	}
	return nil
}

// Build creates the world's directories and environments. Every environment and
// every mod is attempted; failures are joined into the returned error.
func (b *Builder) Build(w *config.World) error {
	for _, dir := range []string{w.WorldDir, w.JobDir, w.OutputDir, w.BaseSnapshotDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if foam.Exists(w.BaseFiles) {
		b.Log.Infof("Copying base files to local world folder.")
		if err := copyTree(w.BaseFiles, w.BaseSnapshotDir()); err != nil {
			return fmt.Errorf("failed to copy base files: %w", err)
		}
	} else {
		b.Log.Warnf("Base files directory %s not found.", w.BaseFiles)
	}

	var errs []error
	for i := range w.Envs {
		if err := b.buildEnv(w, &w.Envs[i]); err != nil {
			b.Log.Errorf("Environment %d: %v", w.Envs[i].ID, err)
			errs = append(errs, fmt.Errorf("environment %d: %w", w.Envs[i].ID, err))
		}
	}

	if len(errs) > 0 {
		b.Log.Warnf("Problem detected setting up environments.")
		return errors.Join(errs...)
	}
	b.Log.Infof("Successfully set up environments.")
	return nil
}

func (b *Builder) buildEnv(w *config.World, env *config.Environment) error {
	b.Log.Infof("Creating environment %d.", env.ID)
	dir := w.EnvDir(env)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := copyTree(w.BaseSnapshotDir(), dir); err != nil {
		return fmt.Errorf("failed to copy base snapshot: %w", err)
	}

	var errs []error
	if env.EnvFiles != "" {
		if foam.Exists(env.EnvFiles) {
			b.Log.Infof("Copying custom environment %d files.", env.ID)
			if err := copyTree(env.EnvFiles, dir); err != nil {
				errs = append(errs, fmt.Errorf("failed to copy env files: %w", err))
			}
		} else {
			errs = append(errs, fmt.Errorf("custom environment file directory not found: %s", env.EnvFiles))
		}
	}

	if err := b.Mods.Apply(b.Log, env.Mods, dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
