package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neardata-eu/lithops-hpc/internal/broker"
	"github.com/neardata-eu/lithops-hpc/internal/config"
	"github.com/neardata-eu/lithops-hpc/internal/envelope"
	"github.com/neardata-eu/lithops-hpc/internal/registry"
	"github.com/neardata-eu/lithops-hpc/internal/scheduler"
	"github.com/neardata-eu/lithops-hpc/internal/storage"
)

// fakeBroker is an in-memory broker.Broker sufficient to drive the
// controller without a real RabbitMQ connection.
type fakeBroker struct {
	mu        sync.Mutex
	queues    map[string]bool
	published map[string][][]byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: map[string]bool{}, published: map[string][][]byte{}}
}

func (b *fakeBroker) DeclareQueue(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[name] = true
	return nil
}

func (b *fakeBroker) DeleteQueue(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, name)
	return nil
}

func (b *fakeBroker) Publish(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte(nil), body...)
	b.published[queue] = append(b.published[queue], cp)
	return nil
}

func (b *fakeBroker) Consume(ctx context.Context, queue string) (<-chan broker.Delivery, string, error) {
	out := make(chan broker.Delivery, 1)
	b.mu.Lock()
	msgs := b.published[queue]
	b.mu.Unlock()
	if len(msgs) > 0 {
		body := msgs[0]
		out <- broker.Delivery{
			Body: body,
			Ack:  func() error { return nil },
			Nack: func(requeue bool) error { return nil },
		}
	}
	return out, "tag-" + queue, nil
}

func (b *fakeBroker) Cancel(ctx context.Context, tag string) error { return nil }
func (b *fakeBroker) Qos(prefetch int) error                      { return nil }
func (b *fakeBroker) Close() error                                 { return nil }

func (b *fakeBroker) countPublished(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[queue])
}

// fakeJob is a scheduler.Job stub that reports RUNNING until Cancel runs.
type fakeJob struct {
	id      string
	running bool
}

func (j *fakeJob) ID() string { return j.id }
func (j *fakeJob) Wait(ctx context.Context, want scheduler.Status, poll, timeout time.Duration) (bool, error) {
	return want == scheduler.StatusRunning && j.running, nil
}
func (j *fakeJob) Hostname(ctx context.Context) (string, error) { return "node0", nil }
func (j *fakeJob) IsRunning(ctx context.Context) (bool, error)  { return j.running, nil }
func (j *fakeJob) Cancel(ctx context.Context) error             { j.running = false; return nil }

// fakeAdapter is a scheduler.Adapter stub.
type fakeAdapter struct {
	submitted []scheduler.JobConfig
	job       *fakeJob
	submitErr error
}

func (a *fakeAdapter) Name() string { return "fake" }
func (a *fakeAdapter) Submit(ctx context.Context, cfg scheduler.JobConfig) (scheduler.Job, error) {
	if a.submitErr != nil {
		return nil, a.submitErr
	}
	a.submitted = append(a.submitted, cfg)
	a.job = &fakeJob{id: "job-1", running: true}
	return a.job, nil
}
func (a *fakeAdapter) JobFromID(ctx context.Context, id string) (scheduler.Job, error) {
	if a.job == nil {
		return nil, errors.New("no job submitted")
	}
	return a.job, nil
}

func testConfig() *config.Config {
	return &config.Config{
		RabbitMQ:        config.RabbitMQConfig{AMQPURL: "amqp://guest@localhost/"},
		WorkerProcesses: 100,
		MaxWorkers:      100,
		MaxTime:         "03:00:00",
		Runtimes: map[string]config.Runtime{
			"myruntime": {
				Account: "acct1", QOS: "normal",
				NumWorkers: 5, CPUsWorker: 4, MaxTasksWorker: 4,
				MaxTime: "01:00:00",
			},
		},
	}
}

func newTestController(t *testing.T, brk *fakeBroker, sched *fakeAdapter) *Controller {
	t.Helper()
	bucket := newMemBucket()
	reg := registry.New(bucket)
	c := New(testConfig(), brk, sched, reg, nil)
	// Shrink every timing knob so tests don't block on real sleeps/polls.
	c.warmup = time.Millisecond
	c.deployTimeout = 50 * time.Millisecond
	c.metadataTimeout = 50 * time.Millisecond
	c.stopGrace = 20 * time.Millisecond
	c.pollInterval = time.Millisecond
	return c
}

type memBucket struct {
	objects map[string][]byte
}

func newMemBucket() *memBucket { return &memBucket{objects: make(map[string][]byte)} }

func (m *memBucket) Put(ctx context.Context, key string, value []byte) error {
	m.objects[key] = append([]byte(nil), value...)
	return nil
}
func (m *memBucket) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return v, nil
}
func (m *memBucket) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

// Scenario F: invoke chunking at worker_processes=100 with total_calls=250
// yields three messages sized 100, 100, 50.
func TestInvokeChunksByWorkerProcesses(t *testing.T) {
	brk := newFakeBroker()
	c := newTestController(t, brk, &fakeAdapter{})

	callIDs := make([]string, 250)
	ranges := make([]envelope.ByteRange, 250)
	for i := range callIDs {
		callIDs[i] = "call-" + string(rune('a'+i%26))
		ranges[i] = envelope.ByteRange{int64(i), int64(i + 1)}
	}
	job := envelope.JobPayload{
		TotalCalls:     250,
		CallIDs:        callIDs,
		DataByteRanges: ranges,
		JobKey:         "MyJobKey",
	}

	actID, err := c.Invoke(context.Background(), "myruntime", job)
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if actID != "lithops-myjobkey" {
		t.Errorf("activation id: got %q, want %q", actID, "lithops-myjobkey")
	}

	if got := brk.countPublished("myruntime"); got != 3 {
		t.Fatalf("published messages: got %d, want 3", got)
	}

	wantSizes := []int{100, 100, 50}
	for i, body := range brk.published["myruntime"] {
		msg, err := envelope.Decode(body)
		if err != nil {
			t.Fatalf("decode message %d: %v", i, err)
		}
		var payload envelope.JobPayload
		if err := msg.DecodePayload(&payload); err != nil {
			t.Fatalf("decode payload %d: %v", i, err)
		}
		if payload.TotalCalls != wantSizes[i] {
			t.Errorf("chunk %d total_calls: got %d, want %d", i, payload.TotalCalls, wantSizes[i])
		}
		if len(payload.CallIDs) != wantSizes[i] || len(payload.DataByteRanges) != wantSizes[i] {
			t.Errorf("chunk %d: call_ids/data_byte_ranges length mismatch with total_calls %d", i, payload.TotalCalls)
		}
	}
}

func TestInvokeUnknownRuntime(t *testing.T) {
	c := newTestController(t, newFakeBroker(), &fakeAdapter{})
	_, err := c.Invoke(context.Background(), "nope", envelope.JobPayload{TotalCalls: 1, CallIDs: []string{"a"}, DataByteRanges: []envelope.ByteRange{{0, 1}}})
	if !errors.Is(err, ErrUnknownRuntime) {
		t.Fatalf("expected ErrUnknownRuntime, got %v", err)
	}
}

// Scenario D-adjacent: deploy persists the job id and probeMetadata returns
// the pre-seeded management-return queue body.
func TestDeployPersistsJobIDAndReturnsMetadata(t *testing.T) {
	brk := newFakeBroker()
	sched := &fakeAdapter{}
	c := newTestController(t, brk, sched)

	// Seed the management-return queue before Deploy publishes the probe,
	// since the fake broker serves whatever is already queued.
	body, _ := json.Marshal(map[string]any{"preinstalls": []string{"numpy", "scipy"}, "go_version": "go1.24"})
	brk.published["myruntime_manage_return"] = [][]byte{body}

	meta, err := c.Deploy(context.Background(), "myruntime")
	if err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}
	if len(meta.Preinstalls) != 2 {
		t.Errorf("preinstalls: got %v", meta.Preinstalls)
	}

	jobID, err := c.registry.Load(context.Background(), runtimeKey("myruntime"))
	if err != nil {
		t.Fatalf("expected persisted job id, got error: %v", err)
	}
	if jobID != "job-1" {
		t.Errorf("persisted job id: got %q, want %q", jobID, "job-1")
	}
}

func TestDeployUnknownRuntime(t *testing.T) {
	c := newTestController(t, newFakeBroker(), &fakeAdapter{})
	_, err := c.Deploy(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownRuntime) {
		t.Fatalf("expected ErrUnknownRuntime, got %v", err)
	}
}

// Testable property 4: deploy-then-list contains the runtime;
// deploy-then-stop-then-list does not.
func TestDeployListStopList(t *testing.T) {
	brk := newFakeBroker()
	sched := &fakeAdapter{}
	c := newTestController(t, brk, sched)

	body, _ := json.Marshal(map[string]any{"preinstalls": []string{"numpy"}})
	brk.published["myruntime_manage_return"] = [][]byte{body}

	if _, err := c.Deploy(context.Background(), "myruntime"); err != nil {
		t.Fatalf("Deploy() error: %v", err)
	}

	list, err := c.List(context.Background(), "all")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 1 || list[0].Name != "myruntime" {
		t.Fatalf("expected [myruntime], got %v", list)
	}

	if err := c.Delete(context.Background(), "myruntime"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	// Scenario E: at least num_workers (5) stop messages published.
	if got := brk.countPublished("myruntime_manage"); got < 5 {
		t.Errorf("stop messages published: got %d, want >= 5", got)
	}

	list, err = c.List(context.Background(), "all")
	if err != nil {
		t.Fatalf("List() after delete error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %v", list)
	}
}
