// Package slurm implements the scheduler.Adapter contract against a real
// Slurm installation by shelling out to sbatch, squeue and sacct.
package slurm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
	"github.com/neardata-eu/lithops-hpc/internal/scheduler/slurm/gekkofs"
)

// runner abstracts command execution so tests can substitute a fake without
// a real Slurm cluster. The zero value of Adapter uses execRunner.
type runner interface {
	Run(ctx context.Context, shell string, script string) (stdout string, err error)
}

// execRunner runs script through `<shell> -c`, the same invocation shape as
// subprocess.run(cmd, shell=True) in the backend this adapter replaces.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, shell string, script string) (string, error) {
	cmd := exec.CommandContext(ctx, shell, "-c", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("slurm: %s: %w: %s", script, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Adapter submits and tracks jobs against a Slurm cluster via sbatch/squeue/sacct.
type Adapter struct {
	// Shell is the interpreter used both to run sbatch/squeue/sacct and as
	// the shebang of generated scripts. Defaults to /bin/bash.
	Shell string

	run runner
}

// NewAdapter returns a Slurm-backed scheduler.Adapter.
func NewAdapter() *Adapter {
	return &Adapter{Shell: "/bin/bash", run: execRunner{}}
}

func (a *Adapter) Name() string { return "slurm" }

func (a *Adapter) shell() string {
	if a.Shell == "" {
		return "/bin/bash"
	}
	return a.Shell
}

func (a *Adapter) runner() runner {
	if a.run == nil {
		return execRunner{}
	}
	return a.run
}

// Submit builds an sbatch script from cfg and submits it with --parsable,
// mirroring Slurm.sbatch's here-doc invocation.
func (a *Adapter) Submit(ctx context.Context, cfg scheduler.JobConfig) (scheduler.Job, error) {
	script := NewScript()

	directives := directivesFromConfig(cfg)
	for key, value := range directives {
		if err := script.Set(key, value); err != nil {
			return nil, &scheduler.SubmitError{Backend: "slurm", Cause: err}
		}
	}
	for key, value := range cfg.Extra {
		if err := script.Set(key, value); err != nil {
			return nil, &scheduler.SubmitError{Backend: "slurm", Cause: err}
		}
	}

	if cfg.GekkoFS != nil {
		script.AddCommand(gekkofs.Inject(cfg.GekkoFS.MountBase, cfg.GekkoFS.MountDir))
		script.AddCommand(gekkofs.WaitForHosts(cfg.NumWorkers))
	}

	env := cfg.Env
	if cfg.GekkoFS != nil {
		env = make(map[string]string, len(cfg.Env)+1)
		for k, v := range cfg.Env {
			env[k] = v
		}
		env["LD_PRELOAD"] = "$GKFS"
	}
	for k, v := range env {
		script.AddCommand(fmt.Sprintf("export %s=%s", k, v))
	}
	if len(cfg.Command) > 0 {
		script.AddCommand(cfg.Command...)
	}

	body := script.Render(a.shell(), true)
	submit := "sbatch --parsable << EOF\n" + body + "EOF"

	stdout, err := a.runner().Run(ctx, a.shell(), submit)
	if err != nil {
		return nil, &scheduler.SubmitError{Backend: "slurm", Cause: err}
	}

	id := strings.SplitN(strings.TrimSpace(stdout), ";", 2)[0]
	if id == "" {
		return nil, &scheduler.SubmitError{Backend: "slurm", Cause: fmt.Errorf("sbatch returned no job id")}
	}

	return &Job{id: id, shell: a.shell(), run: a.runner()}, nil
}

// JobFromID reconstructs a handle from a previously submitted job's id,
// verifying it exists via `sacct -B -j <id>`.
func (a *Adapter) JobFromID(ctx context.Context, id string) (scheduler.Job, error) {
	if _, err := a.runner().Run(ctx, a.shell(), fmt.Sprintf("sacct -B -j %s", id)); err != nil {
		return nil, fmt.Errorf("slurm: job %s not found: %w", id, err)
	}
	return &Job{id: id, shell: a.shell(), run: a.runner()}, nil
}

// directivesFromConfig maps the backend-agnostic JobConfig onto sbatch
// directive names.
func directivesFromConfig(cfg scheduler.JobConfig) map[string]any {
	d := make(map[string]any)
	if cfg.Name != "" {
		d["job_name"] = cfg.Name
	}
	if cfg.NumWorkers > 0 {
		d["ntasks"] = cfg.NumWorkers
	}
	if cfg.CPUsPerWorker > 0 {
		d["cpus_per_task"] = cfg.CPUsPerWorker
	}
	if cfg.MemoryMB > 0 {
		d["mem"] = fmt.Sprintf("%dM", cfg.MemoryMB)
	}
	if cfg.MaxTime > 0 {
		d["time"] = cfg.MaxTime
	}
	if cfg.Account != "" {
		d["account"] = cfg.Account
	}
	if cfg.QOS != "" {
		d["qos"] = cfg.QOS
	}
	return d
}
