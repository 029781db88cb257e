// Package solver drives the decompose, run and reconstruct steps of the external
// CFD toolchain for one case directory.
package solver

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
	"github.com/AaronLay10/orle/internal/mods"
)

// Runner runs one job's solver steps in a case directory.
type Runner struct {
	CaseDir string
	Params  config.SimParams
	Cmd     Commander
	Log     mods.Logger
}

func (r *Runner) parallel() bool {
	return r.Params.NP > 1
}

// Decomposed reports whether the case holds exactly NP processor folders and each of
// them has the start time directory.
func (r *Runner) Decomposed(start float64) (bool, error) {
	procs, err := foam.ProcessorDirs(r.CaseDir)
	if err != nil {
		return false, err
	}
	if len(procs) != r.Params.NP {
		return false, nil
	}
	for i := 0; i < r.Params.NP; i++ {
		if !foam.Exists(filepath.Join(r.CaseDir, foam.ProcessorPrefix+strconv.Itoa(i), foam.FormatTime(start))) {
			return false, nil
		}
	}
	return true, nil
}

// Decompose splits the case into NP sub-domains. It is skipped for serial runs and
// when the existing decomposition already matches, unless force is set.
func (r *Runner) Decompose(ctx context.Context, force bool) error {
	if !r.parallel() {
		r.Log.Infof("Using only 1 process, no need to decompose.")
		return nil
	}

	start, _, err := foam.StartTime(r.CaseDir)
	if err != nil {
		r.Log.Warnf("Could not read start time, decomposing from 0: %v", err)
		start = 0
	}

	if !force {
		ok, err := r.Decomposed(start)
		if err != nil {
			return err
		}
		if ok {
			r.Log.Infof("Existing decomposition matches %d processes.", r.Params.NP)
			return nil
		}
	}

	props := config.Props{{Key: "numberOfSubdomains", Value: strconv.Itoa(r.Params.NP)}}
	if err := mods.EditDict(r.Log, filepath.Join(r.CaseDir, foam.DecomposeParDict), "decompose dict", props); err != nil {
		r.Log.Warnf("Failed to successfully modify the decomposeParDict: %v", err)
	}

	return r.Cmd.Run(ctx, Command{
		Dir:  r.CaseDir,
		Name: "decomposePar",
		Args: []string{"-force", "-time", "0," + foam.FormatTime(start)},
		Log:  "log.decomposePar",
	})
}

// Run invokes the solver, through mpirun when more than one process is requested.
func (r *Runner) Run(ctx context.Context) error {
	if r.Params.Solver == "" {
		return fmt.Errorf("no solver configured")
	}

	props := config.Props{{Key: "application", Value: r.Params.Solver}}
	if err := mods.EditDict(r.Log, filepath.Join(r.CaseDir, foam.ControlDict), "control dict", props); err != nil {
		r.Log.Warnf("Failed to set application in controlDict: %v", err)
	}

	cmd := Command{Dir: r.CaseDir, Log: "log." + r.Params.Solver}
	if r.parallel() {
		r.Log.Infof("Running %s in parallel on %d processes.", r.Params.Solver, r.Params.NP)
		cmd.Name = "mpirun"
		cmd.Args = append([]string{"-np", strconv.Itoa(r.Params.NP), r.Params.Solver, "-parallel"}, r.Params.ArgList()...)
	} else {
		r.Log.Infof("Running %s on single thread.", r.Params.Solver)
		cmd.Name = r.Params.Solver
		cmd.Args = r.Params.ArgList()
	}
	return r.Cmd.Run(ctx, cmd)
}

// Reconstruct merges the latest time of a parallel run back into the case root.
// It only runs when requested and the run was parallel.
func (r *Runner) Reconstruct(ctx context.Context) error {
	if !r.Params.Reconstruct {
		return nil
	}
	if !r.parallel() {
		r.Log.Infof("Using only 1 process, no need to reconstruct.")
		return nil
	}
	return r.Cmd.Run(ctx, Command{
		Dir:  r.CaseDir,
		Name: "reconstructPar",
		Args: []string{"-latestTime"},
		Log:  "log.reconstructPar",
	})
}
