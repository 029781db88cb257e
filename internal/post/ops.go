package post

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/mods"
)

type forcesArgs struct {
	FunctionName string  `yaml:"function_name"`
	Boundary     string  `yaml:"boundary"`
	TimeStep     float64 `yaml:"time_step"`
}

// functionName falls back to the forceCoeffs_<boundary> naming of older cases.
func (a forcesArgs) functionName() (string, error) {
	switch {
	case a.FunctionName != "":
		return a.FunctionName, nil
	case a.Boundary != "":
		return "forceCoeffs_" + a.Boundary, nil
	}
	return "", errors.New("function_name is required")
}

// forceFiles are the names a forces function object writes, including the
// <name>_<startTime>.dat files of a restarted run. forceCoeffs output never matches.
var forceFiles = []string{"force.dat", "forces.dat", "force_*.dat", "forces_*.dat"}

// GetForces reads the newest force data file of a forces function object.
func GetForces(log mods.Logger, p config.Params, caseDir string) (*Series, error) {
	var args forcesArgs
	if err := p.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	fn, err := args.functionName()
	if err != nil {
		return nil, err
	}
	log.Infof("Getting forcing data from OpenFOAM simulation.")

	path, err := newestFile(outputDir(caseDir, fn, args.TimeStep), forceFiles)
	if err != nil {
		return nil, err
	}

	s := &Series{}
	err = dataLines(path, func(_ int, t float64, line string) error {
		open, closing := strings.Index(line, "("), strings.LastIndex(line, ")")
		if open < 0 || closing < open {
			return errors.New("no parenthesised force data")
		}
		v, err := ParseNested(line[open : closing+1])
		if err != nil {
			return err
		}
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

type probesArgs struct {
	FunctionName string  `yaml:"function_name"`
	Field        string  `yaml:"field"`
	TimeStep     float64 `yaml:"time_step"`
}

// GetProbes reads the sampled values of one field from a probes function object.
func GetProbes(log mods.Logger, p config.Params, caseDir string) (*Series, error) {
	var args probesArgs
	if err := p.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if args.FunctionName == "" || args.Field == "" {
		return nil, errors.New("function_name and field are required")
	}
	log.Infof("Getting %s probe data from OpenFOAM simulation.", args.Field)

	path := filepath.Join(outputDir(caseDir, args.FunctionName, args.TimeStep), args.Field)
	s := &Series{}
	err := dataLines(path, func(_ int, t float64, line string) error {
		rest := strings.TrimSpace(line[len(strings.Fields(line)[0]):])
		v, err := ParseRecord(rest)
		if err != nil {
			return err
		}
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

type coeffArgs struct {
	FunctionName string  `yaml:"function_name"`
	TimeStep     float64 `yaml:"time_step"`
}

// GetCoeff reads the tabular coefficient file of a forceCoeffs function object.
// Columns come from the last comment header starting with Time.
func GetCoeff(log mods.Logger, p config.Params, caseDir string) (*Series, error) {
	var args coeffArgs
	if err := p.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if args.FunctionName == "" {
		return nil, errors.New("function_name is required")
	}
	log.Infof("Getting force coefficient data from OpenFOAM simulation.")

	path, err := newestFile(outputDir(caseDir, args.FunctionName, args.TimeStep), []string{"coefficient*.dat"}, []string{"forceCoeffs*.dat"})
	if err != nil {
		return nil, err
	}

	columns, err := coeffColumns(path)
	if err != nil {
		return nil, err
	}

	s := &Series{Columns: columns}
	err = dataLines(path, func(_ int, t float64, line string) error {
		fields := strings.Fields(line)[1:]
		row := make([]interface{}, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return fmt.Errorf("bad number %q", f)
			}
			row[i] = v
		}
		if len(columns) > 0 && len(row) != len(columns) {
			return fmt.Errorf("expected %d values, got %d", len(columns), len(row))
		}
		s.Times = append(s.Times, t)
		s.Values = append(s.Values, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// coeffColumns returns the header names after Time, or nil when there is no header.
func coeffColumns(path string) ([]string, error) {
	var columns []string
	err := commentLines(path, func(text string) {
		f := strings.Fields(text)
		if len(f) > 1 && f[0] == "Time" {
			columns = f[1:]
		}
	})
	return columns, err
}
