// Package post extracts numeric time series from solver output and stores them
// as artifacts in the world's output directory.
package post

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
	"github.com/AaronLay10/orle/internal/mods"
)

// Series is an extracted time series. Values holds one entry per time, either a
// float64 or a nested []any of float64.
type Series struct {
	Times   []float64
	Values  []interface{}
	Columns []string
}

// Op extracts a series from the case in caseDir.
type Op func(log mods.Logger, p config.Params, caseDir string) (*Series, error)

// MissingOutputError reports an expected output directory or file that was not produced.
type MissingOutputError struct {
	Path string
}

func (e *MissingOutputError) Error() string {
	return "could not find solver output " + e.Path
}

// ParseError reports malformed solver output.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type registered struct {
	op       Op
	artifact string
}

// Registry maps post operation names to operations and their default artifact names.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]registered
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]registered)}
}

// Register stores op under name. artifact is the default artifact prefix.
func (r *Registry) Register(name, artifact string, op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[name] = registered{op: op, artifact: artifact}
}

func (r *Registry) lookup(name string) (registered, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.ops[name]
	if !ok {
		return registered{}, &mods.UnknownOpError{Registry: "post", Name: name}
	}
	return reg, nil
}

// Lookup returns the operation stored under name.
func (r *Registry) Lookup(name string) (Op, error) {
	reg, err := r.lookup(name)
	return reg.op, err
}

// Check reports every entry whose name is not registered.
func (r *Registry) Check(entries []config.Entry) error {
	var errs []error
	for _, e := range entries {
		if _, err := r.lookup(e.Func); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DefaultName returns the artifact prefix registered for name.
func (r *Registry) DefaultName(name string) (string, error) {
	reg, err := r.lookup(name)
	return reg.artifact, err
}

// ArtifactName returns <outputname|default>.<hash>.json for e.
func (r *Registry) ArtifactName(e config.Entry, hash string) (string, error) {
	base := e.OutputName
	if base == "" {
		var err error
		if base, err = r.DefaultName(e.Func); err != nil {
			return "", err
		}
	}
	return base + "." + hash + ".json", nil
}

// Default returns a registry holding every built-in extraction.
func Default() *Registry {
	r := NewRegistry()
	r.Register("get_forces", "forces", GetForces)
	r.Register("get_probes", "probes", GetProbes)
	r.Register("get_coeff", "coeff", GetCoeff)
	return r
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteArtifact stores s at path as {"times": [...], "<key>": [...], "columns": [...]}.
func WriteArtifact(path, key string, s *Series) error {
	doc := map[string]interface{}{
		"times": nonNil(s.Times),
		key:     s.Values,
	}
	if len(s.Columns) > 0 {
		doc["columns"] = s.Columns
	}
	if doc[key] == nil {
		doc[key] = []interface{}{}
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

func nonNil(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

// newestFile returns the most recently modified file in dir matching any pattern of
// the first group that matches at all. Later groups are fallbacks.
func newestFile(dir string, groups ...[]string) (string, error) {
	if _, err := os.Stat(dir); err != nil {
		return "", &MissingOutputError{Path: dir}
	}
	type candidate struct {
		path  string
		mtime int64
	}
	var tried []string
	for _, patterns := range groups {
		var cands []candidate
		for _, pattern := range patterns {
			tried = append(tried, pattern)
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return "", err
			}
			for _, m := range matches {
				fi, err := os.Stat(m)
				if err != nil || fi.IsDir() {
					continue
				}
				cands = append(cands, candidate{path: m, mtime: fi.ModTime().UnixNano()})
			}
		}
		if len(cands) == 0 {
			continue
		}
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].mtime != cands[j].mtime {
				return cands[i].mtime > cands[j].mtime
			}
			return cands[i].path > cands[j].path
		})
		return cands[0].path, nil
	}
	return "", &MissingOutputError{Path: filepath.Join(dir, strings.Join(tried, "|"))}
}

// dataLines calls fn for each non-comment line whose first token is a time value.
func dataLines(path string, fn func(lineNo int, t float64, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &MissingOutputError{Path: path}
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		first := strings.Fields(trimmed)[0]
		if !foam.IsNumericName(first) {
			continue
		}
		t, err := strconv.ParseFloat(first, 64)
		if err != nil {
			return &ParseError{Path: path, Line: n, Err: err}
		}
		if err := fn(n, t, trimmed); err != nil {
			return &ParseError{Path: path, Line: n, Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// commentLines calls fn with the text after '#' of each comment line.
func commentLines(path string, fn func(text string)) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &MissingOutputError{Path: path}
		}
		return err
	}
	for _, line := range strings.Split(string(b), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			fn(strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
		}
	}
	return nil
}

func outputDir(caseDir, functionName string, timeStep float64) string {
	return filepath.Join(caseDir, "postProcessing", functionName, foam.FormatTime(timeStep))
}
