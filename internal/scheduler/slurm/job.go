package slurm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
)

// Job is a handle to a Slurm job, identified by its sbatch-assigned id.
type Job struct {
	id    string
	shell string
	run   runner
}

func (j *Job) ID() string { return j.id }

// Wait polls `squeue -h -j <id> -o "%T"` every poll interval until the job's
// state matches want, or timeout elapses (timeout zero waits forever). An
// empty squeue result (the job has left the queue entirely, e.g. completed
// and already purged) also ends the wait, same as the original's loop
// condition.
func (j *Job) Wait(ctx context.Context, want scheduler.Status, poll time.Duration, timeout time.Duration) (bool, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	current := "start"
	for {
		out, err := j.run.Run(ctx, j.shell, fmt.Sprintf(`squeue -h -j %s -o "%%T"`, j.id))
		if err != nil {
			return false, fmt.Errorf("slurm: wait job %s: %w", j.id, err)
		}
		current = strings.TrimSpace(out)
		if current == "" || current == string(want) {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(poll):
		}
	}
	return current == string(want), nil
}

// Hostname returns squeue's %N field for the job as printed. For a job on
// one node that is the node's name; for a job spanning several nodes it is
// Slurm's compressed node list (e.g. "node[01-03]"), which is not expanded.
func (j *Job) Hostname(ctx context.Context) (string, error) {
	out, err := j.run.Run(ctx, j.shell, fmt.Sprintf(`squeue -h -j %s -o "%%N"`, j.id))
	if err != nil {
		return "", fmt.Errorf("slurm: hostname job %s: %w", j.id, err)
	}
	return strings.TrimSpace(out), nil
}

// IsRunning reports whether sacct currently lists the job as RUNNING.
func (j *Job) IsRunning(ctx context.Context) (bool, error) {
	out, err := j.run.Run(ctx, j.shell, fmt.Sprintf("sacct -n -j %s -o State", j.id))
	if err != nil {
		return false, fmt.Errorf("slurm: is_running job %s: %w", j.id, err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return false, nil
	}
	return strings.TrimSpace(lines[0]) == "RUNNING", nil
}

// Cancel terminates the job with scancel.
func (j *Job) Cancel(ctx context.Context) error {
	if _, err := j.run.Run(ctx, j.shell, fmt.Sprintf("scancel %s", j.id)); err != nil {
		return fmt.Errorf("slurm: cancel job %s: %w", j.id, err)
	}
	return nil
}
