// Package controller implements the client-side half of the HPC backend:
// deploying and tearing down worker pools, chunking and publishing job
// invocations, and extracting runtime metadata. It depends only on the
// broker.Broker, scheduler.Adapter, and registry.Registry seams — never on
// a concrete RabbitMQ/Slurm/GCS implementation.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/neardata-eu/lithops-hpc/internal/audit"
	"github.com/neardata-eu/lithops-hpc/internal/broker"
	"github.com/neardata-eu/lithops-hpc/internal/config"
	"github.com/neardata-eu/lithops-hpc/internal/envelope"
	"github.com/neardata-eu/lithops-hpc/internal/registry"
	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
	"github.com/neardata-eu/lithops-hpc/internal/workerentry"
)

// Error kinds surfaced fatally per spec §4.4/§7.
var (
	ErrUnknownRuntime      = errors.New("controller: unknown runtime")
	ErrWorkerPoolFailed    = errors.New("controller: worker pool did not reach running state")
	ErrMetadataUnavailable = errors.New("controller: metadata probe unavailable")
)

const (
	manageQueueSuffix = "_manage"
	returnQueueSuffix = "_return"

	// deployRunningTimeout bounds how long Deploy waits for the scheduler
	// job to reach RUNNING before declaring worker-pool-failed.
	deployRunningTimeout = 5 * time.Minute
	runningPollInterval  = 5 * time.Second

	// workerWarmup is the short grace sleep between the job reaching
	// RUNNING and the metadata probe, giving worker processes time to
	// declare their queues.
	workerWarmup = 10 * time.Second

	// metadataTimeout bounds the return-queue poll in probeMetadata.
	metadataTimeout = 10 * time.Minute

	// stopGrace bounds how long Delete waits for a pool to leave RUNNING
	// after publishing stop messages.
	stopGrace = 2 * time.Minute

	// backendVersion namespaces the registry key so a wire-incompatible
	// rollout of this backend never reads a previous rollout's persisted
	// job id.
	backendVersion = "v1-go1.24"
)

// RuntimeInfo is one entry of a List result.
type RuntimeInfo struct {
	Name    string
	Memory  int
	Version string
}

// Controller holds everything needed to deploy, invoke, stop, and list HPC
// runtimes: configuration, a broker connection, a scheduler adapter, the
// job-id registry, and an optional audit trail.
type Controller struct {
	cfg      *config.Config
	broker   broker.Broker
	sched    scheduler.Adapter
	registry *registry.Registry
	audit    *audit.Client // nil disables the audit trail

	// Timing knobs, defaulted by New and shortened by tests that construct
	// a Controller literal directly (same package) to avoid real sleeps.
	warmup          time.Duration
	deployTimeout   time.Duration
	metadataTimeout time.Duration
	stopGrace       time.Duration
	pollInterval    time.Duration
}

// New returns a Controller. auditClient may be nil.
func New(cfg *config.Config, brk broker.Broker, sched scheduler.Adapter, reg *registry.Registry, auditClient *audit.Client) *Controller {
	return &Controller{
		cfg: cfg, broker: brk, sched: sched, registry: reg, audit: auditClient,
		warmup:          workerWarmup,
		deployTimeout:   deployRunningTimeout,
		metadataTimeout: metadataTimeout,
		stopGrace:       stopGrace,
		pollInterval:    runningPollInterval,
	}
}

func manageQueue(runtimeName string) string { return runtimeName + manageQueueSuffix }

func taskQueue(rt config.Runtime, runtimeName string) string {
	if rt.RMQQueue != "" {
		return rt.RMQQueue
	}
	return runtimeName
}

func runtimeKey(runtimeName string) string {
	return fmt.Sprintf("%s/%s", backendVersion, runtimeName)
}

func (c *Controller) recordTransition(ctx context.Context, runtimeName string, from *string, to, note string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.RecordTransition(ctx, runtimeName, from, to, note); err != nil {
		log.Printf("controller: audit record transition for %s: %v", runtimeName, err)
	}
}

// Deploy declares the runtime's queues, submits its worker pool to the
// scheduler, waits for it to reach RUNNING, persists the resulting job id,
// and probes the pool for its runtime metadata.
func (c *Controller) Deploy(ctx context.Context, runtimeName string) (*workerentry.RuntimeMetadata, error) {
	rt, ok := c.cfg.Runtimes[runtimeName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRuntime, runtimeName)
	}

	mgmt := manageQueue(runtimeName)
	task := taskQueue(rt, runtimeName)

	if err := c.broker.DeclareQueue(ctx, mgmt); err != nil {
		return nil, fmt.Errorf("controller: declare management queue: %w", err)
	}
	if err := c.broker.DeclareQueue(ctx, task); err != nil {
		return nil, fmt.Errorf("controller: declare task queue: %w", err)
	}

	jobCfg, err := c.jobConfig(runtimeName, rt, mgmt, task)
	if err != nil {
		return nil, err
	}

	job, err := c.sched.Submit(ctx, jobCfg)
	if err != nil {
		return nil, err
	}
	c.recordTransition(ctx, runtimeName, nil, "SUBMITTED", "job "+job.ID())

	running, err := job.Wait(ctx, scheduler.StatusRunning, c.pollInterval, c.deployTimeout)
	if err != nil {
		return nil, fmt.Errorf("controller: wait for running: %w", err)
	}
	if !running {
		return nil, fmt.Errorf("%w: runtime %s (job %s)", ErrWorkerPoolFailed, runtimeName, job.ID())
	}

	if err := sleepCtx(ctx, c.warmup); err != nil {
		return nil, err
	}

	if err := c.registry.Save(ctx, runtimeKey(runtimeName), job.ID()); err != nil {
		return nil, fmt.Errorf("controller: persist job id: %w", err)
	}
	submitted := "SUBMITTED"
	c.recordTransition(ctx, runtimeName, &submitted, "RUNNING", "job "+job.ID())

	return c.probeMetadata(ctx, mgmt)
}

// jobConfig builds the scheduler.JobConfig for runtimeName's worker pool:
// N parallel hpc-worker processes, SRUN_CPUS_PER_TASK set to the runtime's
// cpus_worker (the same value submitted as CPUsPerWorker), a SIGUSR1@20
// signal hook, and an optional GekkoFS
// co-launch when the runtime opts into "gkfs" mode.
func (c *Controller) jobConfig(runtimeName string, rt config.Runtime, mgmt, task string) (scheduler.JobConfig, error) {
	maxTime, err := config.ParseMaxTime(rt.MaxTime)
	if err != nil {
		return scheduler.JobConfig{}, err
	}

	extra := make(map[string]string, len(rt.ExtraSlurmArgs)+2)
	for k, v := range rt.ExtraSlurmArgs {
		extra[k] = v
	}
	extra["signal"] = "USR1@20"
	if rt.GPUsWorker > 0 {
		extra["gres"] = fmt.Sprintf("gpu:%d", rt.GPUsWorker)
	}

	jobCfg := scheduler.JobConfig{
		Name:          runtimeName,
		NumWorkers:    rt.NumWorkers,
		CPUsPerWorker: rt.CPUsWorker,
		MaxTime:       maxTime,
		Account:       rt.Account,
		QOS:           rt.QOS,
		Command: []string{
			"hpc-worker",
			"--broker", c.cfg.RabbitMQ.AMQPURL,
			"--management-queue", mgmt,
			"--task-queue", task,
			"--max-tasks-worker", strconv.Itoa(rt.MaxTasksWorker),
		},
		Env:   map[string]string{"SRUN_CPUS_PER_TASK": strconv.Itoa(rt.CPUsWorker)},
		Extra: extra,
	}

	if strings.Contains(rt.Mode, "gkfs") && c.cfg.GekkoFS != nil {
		jobCfg.GekkoFS = &scheduler.GekkoFSRequest{
			MountBase: c.cfg.GekkoFS.MountBase,
			MountDir:  c.cfg.GekkoFS.MountDir,
		}
	}

	return jobCfg, nil
}

// probeMetadata publishes a get_metadata message on mgmt and waits up to
// metadataTimeout for a response on the derived return queue.
func (c *Controller) probeMetadata(ctx context.Context, mgmt string) (*workerentry.RuntimeMetadata, error) {
	returnQueue := mgmt + returnQueueSuffix
	if err := c.broker.DeclareQueue(ctx, returnQueue); err != nil {
		return nil, fmt.Errorf("controller: declare return queue: %w", err)
	}

	body, err := envelope.Encode(envelope.ActionGetMetadata, envelope.JobPayload{LogLevel: "INFO"})
	if err != nil {
		return nil, fmt.Errorf("controller: encode metadata request: %w", err)
	}
	if err := c.broker.Publish(ctx, mgmt, body); err != nil {
		return nil, fmt.Errorf("controller: publish metadata request: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	deliveries, tag, err := c.broker.Consume(pctx, returnQueue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}
	defer c.broker.Cancel(context.Background(), tag)

	select {
	case d, ok := <-deliveries:
		if !ok {
			return nil, fmt.Errorf("%w: consumer closed before delivery", ErrMetadataUnavailable)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(d.Body, &fields); err != nil {
			d.Nack(false)
			return nil, fmt.Errorf("%w: malformed body: %v", ErrMetadataUnavailable, err)
		}
		if _, ok := fields["preinstalls"]; !ok {
			d.Nack(false)
			return nil, fmt.Errorf("%w: missing preinstalls field", ErrMetadataUnavailable)
		}
		var meta workerentry.RuntimeMetadata
		if err := json.Unmarshal(d.Body, &meta); err != nil {
			d.Nack(false)
			return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
		}
		d.Ack()
		return &meta, nil
	case <-pctx.Done():
		return nil, fmt.Errorf("%w: timed out after %s", ErrMetadataUnavailable, c.metadataTimeout)
	}
}

// Invoke chunks job into consecutive sub-payloads of size
// config.WorkerProcesses (the last possibly shorter), publishes one
// send_task message per chunk on the runtime's task queue, and returns the
// activation id derived from the job key.
func (c *Controller) Invoke(ctx context.Context, runtimeName string, job envelope.JobPayload) (string, error) {
	rt, ok := c.cfg.Runtimes[runtimeName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRuntime, runtimeName)
	}
	task := taskQueue(rt, runtimeName)

	granularity := c.cfg.WorkerProcesses
	if granularity <= 0 {
		granularity = config.DefaultWorkerProcesses
	}

	for start := 0; start < job.TotalCalls; start += granularity {
		end := start + granularity
		if end > job.TotalCalls {
			end = job.TotalCalls
		}
		chunk := job.Slice(start, end)
		body, err := envelope.Encode(envelope.ActionSendTask, chunk)
		if err != nil {
			return "", fmt.Errorf("controller: encode chunk [%d,%d): %w", start, end, err)
		}
		if err := c.broker.Publish(ctx, task, body); err != nil {
			return "", fmt.Errorf("controller: publish chunk [%d,%d): %w", start, end, err)
		}
	}

	return "lithops-" + strings.ToLower(job.JobKey), nil
}

// Delete stops runtimeName's worker pool (if running) and always deletes
// its persisted job id. Absence of a persisted job id is not an error.
func (c *Controller) Delete(ctx context.Context, runtimeName string) error {
	rt, ok := c.cfg.Runtimes[runtimeName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRuntime, runtimeName)
	}

	key := runtimeKey(runtimeName)
	jobID, err := c.registry.Load(ctx, key)
	if err != nil {
		if errors.Is(err, registry.ErrNotDeployed) {
			log.Printf("controller: delete %s: no deployed job id on record", runtimeName)
			return nil
		}
		return fmt.Errorf("controller: load job id: %w", err)
	}

	job, err := c.sched.JobFromID(ctx, jobID)
	if err != nil {
		log.Printf("controller: delete %s: job %s no longer resolvable: %v", runtimeName, jobID, err)
		return c.registry.Delete(ctx, key)
	}

	running, err := job.IsRunning(ctx)
	if err != nil {
		log.Printf("controller: delete %s: query job state: %v", runtimeName, err)
		running = false
	}
	if running {
		mgmt := manageQueue(runtimeName)
		stopBody, err := envelope.Encode(envelope.ActionStop, struct{}{})
		if err != nil {
			return fmt.Errorf("controller: encode stop message: %w", err)
		}
		for i := 0; i < rt.NumWorkers; i++ {
			if err := c.broker.Publish(ctx, mgmt, stopBody); err != nil {
				log.Printf("controller: publish stop message %d/%d: %v", i+1, rt.NumWorkers, err)
			}
		}
		waitLeaveRunning(ctx, job, c.stopGrace, c.pollInterval)
	}

	runningState := "RUNNING"
	c.recordTransition(ctx, runtimeName, &runningState, "STOPPED", "")

	return c.registry.Delete(ctx, key)
}

// waitLeaveRunning polls job until it is no longer RUNNING or grace
// elapses, whichever comes first. Best-effort: errors just end the wait,
// since Delete always deletes the persisted job id regardless.
func waitLeaveRunning(ctx context.Context, job scheduler.Job, grace, poll time.Duration) {
	deadline := time.Now().Add(grace)
	for {
		running, err := job.IsRunning(ctx)
		if err != nil || !running {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}
	}
}

// Clean deletes every declared runtime, then its three broker queues.
func (c *Controller) Clean(ctx context.Context) error {
	var errs []error
	for name, rt := range c.cfg.Runtimes {
		if err := c.Delete(ctx, name); err != nil {
			errs = append(errs, err)
			continue
		}
		mgmt := manageQueue(name)
		task := taskQueue(rt, name)
		ret := mgmt + returnQueueSuffix
		for _, q := range []string{task, mgmt, ret} {
			if err := c.broker.DeleteQueue(ctx, q); err != nil {
				errs = append(errs, fmt.Errorf("controller: delete queue %s: %w", q, err))
			}
		}
	}
	return errors.Join(errs...)
}

// List returns the declared runtimes with a persisted job id: either a
// single named runtime, or every runtime when runtimeName is "all".
func (c *Controller) List(ctx context.Context, runtimeName string) ([]RuntimeInfo, error) {
	var names []string
	if runtimeName == "" || runtimeName == "all" {
		for name := range c.cfg.Runtimes {
			names = append(names, name)
		}
	} else {
		if _, ok := c.cfg.Runtimes[runtimeName]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRuntime, runtimeName)
		}
		names = append(names, runtimeName)
	}
	sort.Strings(names)

	var out []RuntimeInfo
	for _, name := range names {
		if _, err := c.registry.Load(ctx, runtimeKey(name)); err != nil {
			if errors.Is(err, registry.ErrNotDeployed) {
				continue
			}
			return nil, fmt.Errorf("controller: load job id for %s: %w", name, err)
		}
		out = append(out, RuntimeInfo{Name: name, Memory: 0, Version: backendVersion})
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
