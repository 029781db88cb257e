package mods

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
)

func decode(p config.Params, v interface{}) error {
	if err := p.Decode(v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

type dictArgs struct {
	Props config.Props `yaml:"props"`
}

// SetControlDict replaces existing entries of system/controlDict.
func SetControlDict(log Logger, p config.Params, caseDir string) error {
	var args dictArgs
	if err := decode(p, &args); err != nil {
		return err
	}
	log.Infof("Setting controlDict parameters.")
	return EditDict(log, filepath.Join(caseDir, foam.ControlDict), "control dict", args.Props)
}

// SetDecomposeDict replaces existing entries of system/decomposeParDict.
func SetDecomposeDict(log Logger, p config.Params, caseDir string) error {
	var args dictArgs
	if err := decode(p, &args); err != nil {
		return err
	}
	log.Infof("Setting decomposeParDict parameters.")
	return EditDict(log, filepath.Join(caseDir, foam.DecomposeParDict), "decompose dict", args.Props)
}

// EditDict sets each prop on the dictionary at path, in order. Keys absent from the
// file are reported and skipped; the remaining keys are still written.
func EditDict(log Logger, path, label string, props config.Props) error {
	d, err := foam.ReadDict(path)
	if err != nil {
		return err
	}

	var missing []string
	for _, prop := range props {
		if !d.Set(prop.Key, prop.Value) {
			log.Warnf("Prop %s not present in %s.", prop.Key, label)
			missing = append(missing, prop.Key)
		}
	}

	if err := d.Write(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("props not present in %s: %s", label, strings.Join(missing, ", "))
	}
	return nil
}

type viscosityArgs struct {
	Visc   *float64 `yaml:"visc"`
	Symbol string   `yaml:"symbol"`
}

var dimensionSet = regexp.MustCompile(`\[[^\]]*\]`)

// SetViscosity rewrites the kinematic viscosity entry of constant/transportProperties.
func SetViscosity(log Logger, p config.Params, caseDir string) error {
	var args viscosityArgs
	if err := decode(p, &args); err != nil {
		return err
	}
	if args.Visc == nil {
		return errors.New("visc is required")
	}
	if args.Symbol == "" {
		args.Symbol = "nu"
	}
	log.Infof("Setting viscosity.")

	d, err := foam.ReadDict(filepath.Join(caseDir, foam.TransportProperties))
	if err != nil {
		return err
	}

	n := d.Each(args.Symbol, func(line string) string {
		dims := dimensionSet.FindString(line)
		if dims != "" {
			dims += " "
		}
		return fmt.Sprintf("%s\t\t\t\t%s%.08f;", args.Symbol, dims, *args.Visc)
	})
	if n == 0 {
		return fmt.Errorf("no %s entry in %s", args.Symbol, d.Path)
	}
	return d.Write()
}

type boundaryArgs struct {
	Field    string       `yaml:"field"`
	Boundary string       `yaml:"boundary"`
	TimeStep float64      `yaml:"time_step"`
	Props    config.Props `yaml:"props"`
}

// SetBoundary replaces the block of a named boundary in a field file with the
// given properties.
func SetBoundary(log Logger, p config.Params, caseDir string) error {
	var args boundaryArgs
	if err := decode(p, &args); err != nil {
		return err
	}
	if args.Field == "" || args.Boundary == "" {
		return errors.New("field and boundary are required")
	}
	log.Infof("Setting %s boundary %s parameters.", args.Field, args.Boundary)

	path := filepath.Join(caseDir, foam.FormatTime(args.TimeStep), args.Field)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: field %s at time-step %s", foam.ErrNotExist, args.Field, foam.FormatTime(args.TimeStep))
		}
		return err
	}

	entries := make([]foam.Entry, len(args.Props))
	for i, prop := range args.Props {
		entries[i] = foam.Entry{Key: prop.Key, Value: prop.Value}
	}

	text, err := foam.ReplaceBlock(string(b), args.Boundary, entries)
	if err != nil {
		return fmt.Errorf("boundary %s: %w", args.Boundary, err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

type savedTimesArgs struct {
	SaveInterval float64   `yaml:"save_interval"`
	SaveTimes    []float64 `yaml:"save_times"`
}

const intervalTolerance = 1e-6

// SetSavedFieldTimes removes time-step directories that are neither listed in
// save_times nor a multiple of save_interval.
func SetSavedFieldTimes(log Logger, p config.Params, caseDir string) error {
	var args savedTimesArgs
	if err := decode(p, &args); err != nil {
		return err
	}
	if args.SaveInterval <= 0 {
		return fmt.Errorf("save_interval must be positive, got %g", args.SaveInterval)
	}

	dirs, err := foam.TimeDirs(caseDir)
	if err != nil {
		return err
	}

	var errs []error
	for _, td := range dirs {
		if keepTime(td.Value, args.SaveInterval, args.SaveTimes) {
			continue
		}
		log.Infof("Removing time-step folder %s.", td.Name)
		if err := os.RemoveAll(td.Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func keepTime(v, interval float64, saved []float64) bool {
	for _, s := range saved {
		if v == s || math.Abs(v-s) <= 1e-12*math.Max(1, math.Abs(s)) {
			return true
		}
	}
	q := v / interval
	return math.Abs(q-math.Round(q)) <= intervalTolerance
}
