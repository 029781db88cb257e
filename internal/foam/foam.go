// Package foam holds the text primitives used to read and edit OpenFOAM case files.
// Files are edited in place by targeted replacement; unrelated content is never
// re-serialized.
package foam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Case file locations relative to a case directory.
var (
	ControlDict         = filepath.Join("system", "controlDict")
	DecomposeParDict    = filepath.Join("system", "decomposeParDict")
	TransportProperties = filepath.Join("constant", "transportProperties")
)

// ProcessorPrefix names decomposed sub-domain folders (processor0, processor1, ...).
const ProcessorPrefix = "processor"

// FormatTime renders a time value the way the solver names its time directories
// (shortest form, six significant digits).
func FormatTime(t float64) string {
	return strconv.FormatFloat(t, 'g', 6, 64)
}

// IsNumericName reports whether s is made of digits with at most one decimal point.
func IsNumericName(s string) bool {
	s = strings.Replace(s, ".", "", 1)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TimeDir is a numerically named time-step directory.
type TimeDir struct {
	Name  string
	Path  string
	Value float64
}

// TimeDirs lists the time-step directories of dir in ascending time order.
func TimeDirs(dir string) ([]TimeDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []TimeDir
	for _, e := range entries {
		if !e.IsDir() || !IsNumericName(e.Name()) {
			continue
		}
		v, err := strconv.ParseFloat(e.Name(), 64)
		if err != nil {
			continue
		}
		out = append(out, TimeDir{Name: e.Name(), Path: filepath.Join(dir, e.Name()), Value: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

// ProcessorDirs lists the decomposed sub-domain folders of caseDir, sorted by name.
func ProcessorDirs(caseDir string) ([]string, error) {
	entries, err := os.ReadDir(caseDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), ProcessorPrefix) {
			out = append(out, filepath.Join(caseDir, e.Name()))
		}
	}
	return out, nil
}

var startTimeNumber = regexp.MustCompile(`\d*\.?\d+`)

// StartTime returns the first number on the startTime line of the case's controlDict.
// found is false when the file has no such line.
func StartTime(caseDir string) (value float64, found bool, err error) {
	d, err := ReadDict(filepath.Join(caseDir, ControlDict))
	if err != nil {
		return 0, false, err
	}
	line, ok := d.Line("startTime")
	if !ok {
		return 0, false, nil
	}
	m := startTimeNumber.FindString(strings.TrimPrefix(strings.TrimSpace(line), "startTime"))
	if m == "" {
		return 0, false, fmt.Errorf("startTime entry has no value: %q", strings.TrimSpace(line))
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ErrNotExist is returned when a case file to edit is absent.
var ErrNotExist = errors.New("case file not found")
