// Package jlog accumulates the status, warnings, errors and output files of one job
// and writes them as the job's manifest.
package jlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// Manifest status values.
const (
	StatusFailed = 0
	StatusOK     = 1
)

// Manifest is the durable per-job report.
type Manifest struct {
	Status   int      `yaml:"status"`
	Warnings []string `yaml:"warnings"`
	Errors   []string `yaml:"errors"`
	Files    []string `yaml:"files"`
}

// Emitter receives a process event for every logged message.
type Emitter interface {
	Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error)
}

// Logger is the job logger. It is safe for concurrent use.
type Logger struct {
	em     Emitter
	fields map[string]interface{}

	mu sync.Mutex
	m  Manifest
}

// New returns a logger whose events carry fields. em may be nil.
func New(em Emitter, fields map[string]interface{}) *Logger {
	l := &Logger{em: em, fields: fields}
	l.Reset()
	return l
}

// Reset clears the accumulated manifest.
func (l *Logger) Reset() {
	l.mu.Lock()
	l.m = Manifest{Status: StatusOK, Warnings: []string{}, Errors: []string{}, Files: []string{}}
	l.mu.Unlock()
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit("info", "job.info", fmt.Sprintf(format, args...))
}

// Warnf records a warning in the manifest.
func (l *Logger) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.m.Warnings = append(l.m.Warnings, msg)
	l.mu.Unlock()
	l.emit("warn", "job.warning", msg)
}

// Errorf records an error in the manifest and marks the job failed.
func (l *Logger) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.m.Status = StatusFailed
	l.m.Errors = append(l.m.Errors, msg)
	l.mu.Unlock()
	l.emit("error", "job.error", msg)
}

// AddOutput records an artifact file name.
func (l *Logger) AddOutput(name string) {
	l.mu.Lock()
	l.m.Files = append(l.m.Files, name)
	l.mu.Unlock()
}

// Manifest returns a copy of the current manifest.
func (l *Logger) Manifest() Manifest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Manifest{
		Status:   l.m.Status,
		Warnings: append([]string{}, l.m.Warnings...),
		Errors:   append([]string{}, l.m.Errors...),
		Files:    append([]string{}, l.m.Files...),
	}
}

// Failed reports whether an error has been recorded.
func (l *Logger) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Status == StatusFailed
}

// Write stores the manifest at path as YAML while holding <path>.lock.
// The lock file is removed afterwards.
func (l *Logger) Write(path string) error {
	b, err := yaml.Marshal(l.Manifest())
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(path + ".lock")
	}()

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (l *Logger) emit(level, name, msg string) {
	if l.em == nil {
		return
	}
	_, _ = l.em.Emit(level, name, msg, l.fields)
}

// ManifestName returns the manifest file name for a job key (its hash, or the job
// document's file name when the document could not be parsed).
func ManifestName(key string) string {
	return "output." + key + ".yml"
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}
