package slurm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
)

type fakeRunner struct {
	calls   []string
	outputs []string
	errs    []error
	i       int
}

func (f *fakeRunner) Run(ctx context.Context, shell string, script string) (string, error) {
	f.calls = append(f.calls, script)
	idx := f.i
	f.i++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.outputs) {
		return f.outputs[idx], nil
	}
	return "", nil
}

func TestAdapterSubmitParsesJobID(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"123456;cluster\n"}}
	a := &Adapter{Shell: "/bin/bash", run: fr}

	job, err := a.Submit(context.Background(), scheduler.JobConfig{
		Name:          "myruntime",
		NumWorkers:    4,
		CPUsPerWorker: 2,
		Account:       "acct1",
		QOS:           "normal",
		Command:       []string{"srun", "-l", "worker"},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if job.ID() != "123456" {
		t.Errorf("job ID: got %q, want %q", job.ID(), "123456")
	}
	if len(fr.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fr.calls))
	}
	submitted := fr.calls[0]
	if !strings.Contains(submitted, "sbatch --parsable << EOF") {
		t.Errorf("expected here-doc submission, got:\n%s", submitted)
	}
	if !strings.Contains(submitted, "--account") || !strings.Contains(submitted, "acct1") {
		t.Errorf("expected account directive, got:\n%s", submitted)
	}
}

func TestAdapterSubmitInjectsGekkoFS(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"654321;cluster\n"}}
	a := &Adapter{Shell: "/bin/bash", run: fr}

	_, err := a.Submit(context.Background(), scheduler.JobConfig{
		Name:          "gkfsruntime",
		NumWorkers:    3,
		CPUsPerWorker: 2,
		Account:       "acct1",
		QOS:           "normal",
		Command:       []string{"hpc-worker"},
		Env:           map[string]string{"SRUN_CPUS_PER_TASK": "2"},
		GekkoFS:       &scheduler.GekkoFSRequest{MountBase: "/scratch/gkfs", MountDir: "/mnt/gkfs"},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if len(fr.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(fr.calls))
	}
	submitted := fr.calls[0]
	if !strings.Contains(submitted, "GKFS_BASE=/scratch/gkfs") {
		t.Errorf("expected gekkofs mount base injected, got:\n%s", submitted)
	}
	if !strings.Contains(submitted, "GKFS_MNT=/mnt/gkfs") {
		t.Errorf("expected gekkofs mount dir injected, got:\n%s", submitted)
	}
	if !strings.Contains(submitted, "wc -l") {
		t.Errorf("expected host-wait poll loop, got:\n%s", submitted)
	}
	// The here-doc body escapes '$', so sbatch itself receives $GKFS.
	if !strings.Contains(submitted, `export LD_PRELOAD=\$GKFS`) {
		t.Errorf("expected LD_PRELOAD export, got:\n%s", submitted)
	}
	if !strings.Contains(submitted, "export SRUN_CPUS_PER_TASK=2") {
		t.Errorf("expected original env var preserved alongside LD_PRELOAD, got:\n%s", submitted)
	}
}

func TestAdapterSubmitRejectsUnknownExtraDirective(t *testing.T) {
	fr := &fakeRunner{}
	a := &Adapter{Shell: "/bin/bash", run: fr}

	_, err := a.Submit(context.Background(), scheduler.JobConfig{
		Extra: map[string]string{"bogus_directive": "1"},
	})
	if err == nil {
		t.Fatal("expected error for unknown extra directive, got nil")
	}
}

func TestJobWaitMatchesStatus(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"PENDING\n", "RUNNING\n"}}
	j := &Job{id: "1", shell: "/bin/bash", run: fr}

	ok, err := j.Wait(context.Background(), scheduler.StatusRunning, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if !ok {
		t.Error("expected Wait() to report reaching RUNNING")
	}
	if len(fr.calls) != 2 {
		t.Fatalf("expected 2 polls, got %d", len(fr.calls))
	}
}

func TestJobWaitStopsWhenQueueEmpty(t *testing.T) {
	fr := &fakeRunner{outputs: []string{""}}
	j := &Job{id: "1", shell: "/bin/bash", run: fr}

	ok, err := j.Wait(context.Background(), scheduler.StatusRunning, time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if ok {
		t.Error("expected Wait() to report false when job left the queue")
	}
}

func TestJobIsRunning(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"RUNNING\n"}}
	j := &Job{id: "1", shell: "/bin/bash", run: fr}

	running, err := j.IsRunning(context.Background())
	if err != nil {
		t.Fatalf("IsRunning() error: %v", err)
	}
	if !running {
		t.Error("expected IsRunning() true")
	}
}

func TestJobHostname(t *testing.T) {
	fr := &fakeRunner{outputs: []string{"node042\n"}}
	j := &Job{id: "1", shell: "/bin/bash", run: fr}

	host, err := j.Hostname(context.Background())
	if err != nil {
		t.Fatalf("Hostname() error: %v", err)
	}
	if host != "node042" {
		t.Errorf("Hostname: got %q, want %q", host, "node042")
	}
}
