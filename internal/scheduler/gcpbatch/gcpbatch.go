// Package gcpbatch implements the scheduler.Adapter contract against Google
// Cloud Batch, for deployments that run worker pools on GCP instead of a
// Slurm cluster.
package gcpbatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	batch "cloud.google.com/go/batch/apiv1"
	"cloud.google.com/go/batch/apiv1/batchpb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
)

// Adapter submits worker pools as Cloud Batch jobs.
type Adapter struct {
	client    *batch.Client
	projectID string
	region    string
}

// New returns a Cloud-Batch-backed scheduler.Adapter.
func New(ctx context.Context, projectID, region string) (*Adapter, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("gcpbatch: project and region are required")
	}
	client, err := batch.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcpbatch: new client: %w", err)
	}
	return &Adapter{client: client, projectID: projectID, region: region}, nil
}

func (a *Adapter) Name() string { return "gcpbatch" }

func (a *Adapter) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", a.projectID, a.region)
}

// Submit maps cfg onto a single-runnable, single-task-group Cloud Batch job
// whose container runs cfg.Command, parallelized across cfg.NumWorkers tasks.
func (a *Adapter) Submit(ctx context.Context, cfg scheduler.JobConfig) (scheduler.Job, error) {
	runnable := &batchpb.Runnable{
		Executable: &batchpb.Runnable_Script_{
			Script: &batchpb.Runnable_Script{
				Command: &batchpb.Runnable_Script_CommandString{
					CommandString: strings.Join(cfg.Command, " "),
				},
			},
		},
	}
	if len(cfg.Env) > 0 {
		runnable.Environment = &batchpb.Environment{Variables: cfg.Env}
	}

	taskSpec := &batchpb.TaskSpec{
		Runnables: []*batchpb.Runnable{runnable},
		ComputeResource: &batchpb.ComputeResource{
			CpuMilli:  int64(cfg.CPUsPerWorker) * 1000,
			MemoryMib: int64(cfg.MemoryMB),
		},
	}
	if cfg.MaxTime > 0 {
		taskSpec.MaxRunDuration = durationpb.New(cfg.MaxTime)
	}

	taskCount := int64(cfg.NumWorkers)
	if taskCount < 1 {
		taskCount = 1
	}

	job := &batchpb.Job{
		TaskGroups: []*batchpb.TaskGroup{
			{TaskSpec: taskSpec, TaskCount: taskCount},
		},
		LogsPolicy: &batchpb.LogsPolicy{
			Destination: batchpb.LogsPolicy_CLOUD_LOGGING,
		},
	}

	req := &batchpb.CreateJobRequest{
		Parent: a.parent(),
		JobId:  jobID(cfg.Name),
		Job:    job,
	}

	created, err := a.client.CreateJob(ctx, req)
	if err != nil {
		return nil, &scheduler.SubmitError{Backend: "gcpbatch", Cause: err}
	}

	return &Job{client: a.client, name: created.Name}, nil
}

// JobFromID reconstructs a handle from a previously persisted Cloud Batch
// job resource name.
func (a *Adapter) JobFromID(ctx context.Context, id string) (scheduler.Job, error) {
	if _, err := a.client.GetJob(ctx, &batchpb.GetJobRequest{Name: id}); err != nil {
		return nil, fmt.Errorf("gcpbatch: job %s not found: %w", id, err)
	}
	return &Job{client: a.client, name: id}, nil
}

func jobID(name string) string {
	name = strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	if name == "" {
		return "hpc-worker-pool"
	}
	return "hpc-" + name
}

// Job is a handle to a Cloud Batch job.
type Job struct {
	client *batch.Client
	name   string
}

func (j *Job) ID() string { return j.name }

func (j *Job) status(ctx context.Context) (scheduler.Status, error) {
	got, err := j.client.GetJob(ctx, &batchpb.GetJobRequest{Name: j.name})
	if err != nil {
		return scheduler.StatusUnknown, fmt.Errorf("gcpbatch: get job %s: %w", j.name, err)
	}
	return mapStatus(got.GetStatus().GetState()), nil
}

// Wait polls the job's state until it matches want or timeout elapses.
func (j *Job) Wait(ctx context.Context, want scheduler.Status, poll time.Duration, timeout time.Duration) (bool, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		st, err := j.status(ctx)
		if err != nil {
			return false, err
		}
		if st == want {
			return true, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Hostname is not meaningful for Cloud Batch, which manages node placement
// internally; callers that need a direct address should not use this
// backend.
func (j *Job) Hostname(ctx context.Context) (string, error) {
	return "", fmt.Errorf("gcpbatch: hostname not exposed by Cloud Batch jobs")
}

func (j *Job) IsRunning(ctx context.Context) (bool, error) {
	st, err := j.status(ctx)
	if err != nil {
		return false, err
	}
	return st == scheduler.StatusRunning, nil
}

func (j *Job) Cancel(ctx context.Context) error {
	op, err := j.client.DeleteJob(ctx, &batchpb.DeleteJobRequest{Name: j.name})
	if err != nil {
		return fmt.Errorf("gcpbatch: delete job %s: %w", j.name, err)
	}
	if err := op.Wait(ctx); err != nil {
		return fmt.Errorf("gcpbatch: delete job %s: wait: %w", j.name, err)
	}
	return nil
}

func mapStatus(state batchpb.JobStatus_State) scheduler.Status {
	switch state {
	case batchpb.JobStatus_QUEUED:
		return scheduler.StatusPending
	case batchpb.JobStatus_SCHEDULED:
		return scheduler.StatusPending
	case batchpb.JobStatus_RUNNING:
		return scheduler.StatusRunning
	case batchpb.JobStatus_SUCCEEDED:
		return scheduler.StatusCompleted
	case batchpb.JobStatus_FAILED:
		return scheduler.StatusFailed
	case batchpb.JobStatus_DELETION_IN_PROGRESS:
		return scheduler.StatusCancelled
	default:
		return scheduler.StatusUnknown
	}
}
