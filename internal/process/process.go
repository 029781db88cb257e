// Package process runs the polling loop of one worker: it claims job documents from a
// world's job-queue directory and drives each through setup, simulation, collection and
// archiving.
package process

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
	"github.com/AaronLay10/orle/internal/jlog"
	"github.com/AaronLay10/orle/internal/mods"
	"github.com/AaronLay10/orle/internal/post"
	"github.com/AaronLay10/orle/internal/solver"
)

// DefaultInterval is the wait between searches of an empty queue.
const DefaultInterval = 100 * time.Millisecond

// Options configures a Process.
type Options struct {
	// Interval between searches when no job is available. Defaults to DefaultInterval.
	Interval time.Duration
	// Wake ends a wait early, typically fed by a watch.Notifier.
	Wake <-chan struct{}
	// Mods resolves mod and clean entries. Defaults to mods.Default().
	Mods *mods.Registry
	// Post resolves post entries. Defaults to post.Default().
	Post *post.Registry
	// Commander runs solver commands. Defaults to solver.ExecCommander.
	Commander solver.Commander
	// Emitter receives process and job events. May be nil.
	Emitter jlog.Emitter
	// WorkerID is attached to every event.
	WorkerID string
}

// Process is one sequential worker loop over a world's job-queue directory.
type Process struct {
	world *config.World
	opts  Options

	mu    sync.Mutex
	stats Stats
}

func New(w *config.World, opts Options) *Process {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Mods == nil {
		opts.Mods = mods.Default()
	}
	if opts.Post == nil {
		opts.Post = post.Default()
	}
	if opts.Commander == nil {
		opts.Commander = solver.ExecCommander{}
	}
	return &Process{
		world: w,
		opts:  opts,
		stats: Stats{State: StateIdle, StartedAt: time.Now()},
	}
}

// Stats returns a snapshot of the process counters.
func (p *Process) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// polling reports whether s belongs to the empty-queue cycle.
func polling(s State) bool {
	return s == StateIdle || s == StateSearching
}

// setState records s. Changes within the idle/searching cycle are not emitted, so a
// polling worker does not flood the event buffer and sinks.
func (p *Process) setState(s State) {
	p.mu.Lock()
	prev := p.stats.State
	p.stats.State = s
	job := p.stats.CurrentJob
	p.mu.Unlock()

	if prev != s && !(polling(prev) && polling(s)) {
		p.emit("debug", "process.state", "", map[string]interface{}{"state": string(s), "job": job})
	}
}

func (p *Process) emit(level, name, msg string, fields map[string]interface{}) {
	if p.opts.Emitter == nil {
		return
	}
	merged := map[string]interface{}{"world": p.world.ID}
	if p.opts.WorkerID != "" {
		merged["worker"] = p.opts.WorkerID
	}
	for k, v := range fields {
		merged[k] = v
	}
	_, _ = p.opts.Emitter.Emit(level, name, msg, merged)
}

// Start polls the job-queue directory until ctx ends. A job that has started is run
// to completion even when ctx ends mid-run.
func (p *Process) Start(ctx context.Context) error {
	p.emit("info", "process.started", "Starting surveillance for job configs.", map[string]interface{}{"job_dir": p.world.JobDir})
	defer p.emit("info", "process.stopped", "Stopped surveillance for job configs.", nil)

	warned := false
	for {
		if ctx.Err() != nil {
			p.setState(StateIdle)
			return nil
		}

		ran, err := p.RunOnce(ctx)
		switch {
		case err != nil && !warned:
			p.emit("warn", "system.error", "Could not search the job queue.", map[string]interface{}{"error": err.Error()})
			warned = true
		case err == nil:
			warned = false
		}
		if ran {
			p.setState(StateIdle)
			p.emit("info", "process.idle", "Done processing job script, resuming surveillance.", nil)
			continue
		}

		p.setState(StateIdle)
		timer := time.NewTimer(p.wait())
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-p.opts.Wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// wait returns the interval plus a uniform jitter in [0, interval/10].
func (p *Process) wait() time.Duration {
	jitter := p.opts.Interval / 10
	if jitter <= 0 {
		return p.opts.Interval
	}
	return p.opts.Interval + time.Duration(rand.Int63n(int64(jitter+1)))
}

// RunOnce searches once and runs the claimed job, if any. It reports whether a job ran.
func (p *Process) RunOnce(ctx context.Context) (bool, error) {
	c, err := p.Search()
	if err != nil || c == nil {
		return false, err
	}
	p.RunJob(ctx, c)
	return true, nil
}

// Search claims the first available job document of the world's queue.
func (p *Process) Search() (*Claim, error) {
	p.setState(StateSearching)
	c, err := Search(p.world.JobDir)
	var lockErr *LockError
	switch {
	case errors.As(err, &lockErr):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("could not find directory for environment job files: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	p.mu.Lock()
	p.stats.CurrentJob = c.Name()
	p.mu.Unlock()
	p.setState(StateLocked)
	p.emit("info", "job.acquired", "Acquired job config "+c.Name(), map[string]interface{}{"job": c.Name()})
	return c, nil
}

// jobRun carries one job through its stages.
type jobRun struct {
	claim   *Claim
	log     *jlog.Logger
	job     *config.Job
	caseDir string
	// ready is set once the job's entry names and environment are known good.
	ready bool
}

// key names the job's manifest: its hash, or the document name when unparsed.
func (r *jobRun) key() string {
	if r.job != nil {
		return r.job.Hash
	}
	return r.claim.Name()
}

// RunJob drives a claimed job through its stages and always archives and releases
// it. The returned manifest is the one written to the output directory.
func (p *Process) RunJob(ctx context.Context, c *Claim) jlog.Manifest {
	fields := map[string]interface{}{"world": p.world.ID, "job": c.Name()}
	if p.opts.WorkerID != "" {
		fields["worker"] = p.opts.WorkerID
	}
	r := &jobRun{claim: c, log: jlog.New(p.opts.Emitter, fields)}

	p.runStages(ctx, r)
	p.archive(r)

	failed := r.log.Failed()
	p.mu.Lock()
	p.stats.Processed++
	if failed {
		p.stats.Failed++
	}
	p.stats.CurrentJob = ""
	p.mu.Unlock()

	if failed {
		p.emit("error", "job.failed", "Job finished with errors.", map[string]interface{}{"job": c.Name(), "key": r.key()})
	} else {
		p.emit("info", "job.completed", "Job finished.", map[string]interface{}{"job": c.Name(), "key": r.key()})
	}
	return r.log.Manifest()
}

func (p *Process) runStages(ctx context.Context, r *jobRun) {
	p.stage(StateSettingUp, r)
	if err := p.setup(r); err != nil {
		r.log.Errorf("Failed job set up, terminating run: %v", err)
		return
	}

	p.stage(StateSimulating, r)
	if err := p.simulate(ctx, r); err != nil {
		r.log.Errorf("Failed job execution, terminating run: %v", err)
		return
	}

	p.stage(StateCollecting, r)
	if err := p.collect(r); err != nil {
		r.log.Errorf("Failed post processing: %v", err)
	}
	if err := r.log.Write(p.manifestPath(r)); err != nil {
		r.log.Errorf("Failed to write manifest: %v", err)
	}
}

func (p *Process) stage(s State, r *jobRun) {
	p.setState(s)
	p.emit("debug", "job.stage", "", map[string]interface{}{"job": r.claim.Name(), "stage": string(s)})
}

func (p *Process) manifestPath(r *jobRun) string {
	return filepath.Join(p.world.OutputDir, jlog.ManifestName(r.key()))
}

// setup parses the job, checks its entry names, resolves its environment, applies
// its mods and validates the resulting case.
func (p *Process) setup(r *jobRun) error {
	r.log.Infof("Setting up environment folder.")
	job, err := config.LoadJob(r.claim.Path)
	if err != nil {
		return err
	}
	r.job = job
	r.log.Infof("Parsed environment config file: %s; h.%s", job.Name, job.Hash)

	if err := p.checkEntries(job, r.claim.Name()); err != nil {
		return err
	}

	env, err := p.world.Env(job.ID)
	if err != nil {
		return err
	}
	r.caseDir = p.world.EnvDir(env)
	r.ready = true

	r.log.Infof("Valid job config file loaded. Setting up environment folder.")
	if len(job.Mods) == 0 {
		r.log.Infof("No mods listed. Continuing.")
	} else if err := p.opts.Mods.Apply(r.log, job.Mods, r.caseDir); err != nil {
		return err
	}
	return p.validateCase(r)
}

// checkEntries rejects entries naming an unregistered operation.
func (p *Process) checkEntries(job *config.Job, source string) error {
	var problems []string
	for _, err := range []error{
		p.opts.Mods.Check(job.Mods),
		p.opts.Post.Check(job.Post),
		p.opts.Mods.Check(job.Clean),
	} {
		var joined interface{ Unwrap() []error }
		switch {
		case err == nil:
		case errors.As(err, &joined):
			for _, e := range joined.Unwrap() {
				problems = append(problems, e.Error())
			}
		default:
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return &config.ValidationError{Source: "job " + source, Problems: problems}
	}
	return nil
}

// validateCase requires a controlDict. Missing start-time fields are only a warning.
func (p *Process) validateCase(r *jobRun) error {
	if !foam.Exists(filepath.Join(r.caseDir, foam.ControlDict)) {
		return fmt.Errorf("could not find controlDict in %s", r.caseDir)
	}
	start, _, err := foam.StartTime(r.caseDir)
	if err != nil {
		r.log.Warnf("Could not read start time: %v", err)
		return nil
	}

	t := foam.FormatTime(start)
	if foam.Exists(filepath.Join(r.caseDir, t)) {
		return nil
	}
	for i := 0; i < r.job.Params.NP; i++ {
		if !foam.Exists(filepath.Join(r.caseDir, fmt.Sprintf("%s%d", foam.ProcessorPrefix, i), t)) {
			r.log.Warnf("Starting time-step fields do not exist.")
			return nil
		}
	}
	return nil
}

// simulate decomposes, runs and reconstructs the case. The solver is not cancelled
// by ctx; there is no way to stop it once launched.
func (p *Process) simulate(ctx context.Context, r *jobRun) error {
	ctx = context.WithoutCancel(ctx)
	run := &solver.Runner{CaseDir: r.caseDir, Params: r.job.Params, Cmd: p.opts.Commander, Log: r.log}

	p.emit("info", "solver.started", "Starting "+r.job.Params.Solver, map[string]interface{}{"job": r.claim.Name(), "np": r.job.Params.NP})
	err := p.runSolver(ctx, run, r.job.Params.Decompose)
	fields := map[string]interface{}{"job": r.claim.Name()}
	if err != nil {
		fields["error"] = err.Error()
	}
	p.emit("info", "solver.finished", "Finished "+r.job.Params.Solver, fields)
	return err
}

func (p *Process) runSolver(ctx context.Context, run *solver.Runner, force bool) error {
	if err := run.Decompose(ctx, force); err != nil {
		return fmt.Errorf("decompose: %w", err)
	}
	if err := run.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := run.Reconstruct(ctx); err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	return nil
}

// collect runs every post entry and writes its artifact. Failures are joined; a
// failing entry does not stop its siblings.
func (p *Process) collect(r *jobRun) error {
	if len(r.job.Post) == 0 {
		r.log.Infof("No post methods listed. Continuing.")
		return nil
	}

	var errs []error
	for _, e := range r.job.Post {
		if err := p.collectOne(r, e); err != nil {
			r.log.Errorf("%s: %v", e.Func, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Func, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Process) collectOne(r *jobRun, e config.Entry) error {
	op, err := p.opts.Post.Lookup(e.Func)
	if err != nil {
		return err
	}
	series, err := op(r.log, e.Params, r.caseDir)
	if err != nil {
		return err
	}

	name, err := p.opts.Post.ArtifactName(e, r.job.Hash)
	if err != nil {
		return err
	}
	key, err := p.opts.Post.DefaultName(e.Func)
	if err != nil {
		return err
	}

	path := filepath.Join(p.world.OutputDir, name)
	if foam.Exists(path) {
		r.log.Warnf("Output file %s exists, overwriting.", name)
	}
	r.log.Infof("Writing %s to disk.", name)
	if err := post.WriteArtifact(path, key, series); err != nil {
		return err
	}
	r.log.AddOutput(name)
	return nil
}

// archive runs clean ops, rewrites the manifest, renames the job document and
// releases its lock. It runs for every claimed job.
func (p *Process) archive(r *jobRun) {
	p.stage(StateArchiving, r)

	if r.ready {
		if len(r.job.Clean) == 0 {
			r.log.Infof("No cleaning methods listed. Continuing.")
		} else if err := p.opts.Mods.Apply(r.log, r.job.Clean, r.caseDir); err != nil {
			r.log.Errorf("Failed cleaning environment: %v", err)
		}
	}

	if err := os.MkdirAll(p.world.OutputDir, 0o755); err != nil {
		r.log.Errorf("Failed to create output directory: %v", err)
	}
	if err := r.log.Write(p.manifestPath(r)); err != nil {
		p.emit("error", "system.error", "Failed to write manifest.", map[string]interface{}{"job": r.claim.Name(), "error": err.Error()})
	}

	dest, err := r.claim.Archive()
	if err != nil {
		p.emit("error", "system.error", "Failed to archive job config.", map[string]interface{}{"job": r.claim.Name(), "error": err.Error()})
		return
	}
	p.emit("info", "job.archived", "Archived job config as "+filepath.Base(dest), map[string]interface{}{"job": r.claim.Name(), "archive": filepath.Base(dest)})
}
