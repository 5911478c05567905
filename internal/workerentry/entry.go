// Package workerentry implements the worker-side process that consumes
// task and management messages off the broker, admits work against the
// node's free call-slot budget, and dispatches it to a function handler.
package workerentry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/neardata-eu/lithops-hpc/internal/broker"
	"github.com/neardata-eu/lithops-hpc/internal/envelope"
	"github.com/neardata-eu/lithops-hpc/internal/functionhandler"
)

// returnQueueSuffix names the queue a worker publishes get_metadata
// responses on, derived from the management queue name.
const returnQueueSuffix = "_return"

// RuntimeMetadata is published on the management return queue in response
// to ActionGetMetadata, letting the controller learn what a deployed
// worker pool can run before sending it real work.
type RuntimeMetadata struct {
	Preinstalls []string `json:"preinstalls"`
	GoVersion   string   `json:"go_version"`
}

// Config configures a Worker.
type Config struct {
	Broker           broker.Broker
	Handler          functionhandler.Handler
	TaskQueue        string
	ManagementQueue  string
	Concurrency      int
	Preinstalls      []string
}

// Worker consumes the task and management queues for one worker pool node
// and dispatches admitted work to a functionhandler.Handler.
type Worker struct {
	cfg       Config
	admission *admission

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc

	mgmtTag, taskTag string
}

// New returns a Worker ready to Run. Concurrency is the number of call
// slots the node starts with — the same value the original passed as
// task_concurrency on the command line.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg, admission: newAdmission(cfg.Concurrency)}
}

// Run declares the task and management queues, sets prefetch to 1, and
// consumes both until ctx is cancelled or a stop message arrives. It
// returns once all in-flight handler goroutines have completed.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer cancel()

	if err := w.cfg.Broker.Qos(1); err != nil {
		return fmt.Errorf("workerentry: qos: %w", err)
	}
	if err := w.cfg.Broker.DeclareQueue(ctx, w.cfg.ManagementQueue); err != nil {
		return fmt.Errorf("workerentry: declare management queue: %w", err)
	}
	if err := w.cfg.Broker.DeclareQueue(ctx, w.cfg.TaskQueue); err != nil {
		return fmt.Errorf("workerentry: declare task queue: %w", err)
	}

	mgmtDeliveries, mgmtTag, err := w.cfg.Broker.Consume(ctx, w.cfg.ManagementQueue)
	if err != nil {
		return fmt.Errorf("workerentry: consume management queue: %w", err)
	}
	w.mgmtTag = mgmtTag

	taskDeliveries, taskTag, err := w.cfg.Broker.Consume(ctx, w.cfg.TaskQueue)
	if err != nil {
		return fmt.Errorf("workerentry: consume task queue: %w", err)
	}
	w.taskTag = taskTag

	log.Printf("workerentry: listening on %s (management) and %s (task), concurrency=%d",
		w.cfg.ManagementQueue, w.cfg.TaskQueue, w.cfg.Concurrency)

	for mgmtDeliveries != nil || taskDeliveries != nil {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return nil
		case d, ok := <-mgmtDeliveries:
			if !ok {
				mgmtDeliveries = nil
				continue
			}
			w.dispatch(ctx, d)
		case d, ok := <-taskDeliveries:
			if !ok {
				taskDeliveries = nil
				continue
			}
			w.dispatch(ctx, d)
		}
	}

	w.wg.Wait()
	return nil
}

// RunningTaskCount reports how many call slots are currently in use, for a
// local status print (e.g. on SIGUSR1) — there is no HTTP listener here to
// expose a /health endpoint the way the teacher's worker does.
func (w *Worker) RunningTaskCount() int {
	return w.cfg.Concurrency - w.admission.snapshot()
}

// Stop cancels both consumers, causing Run to drain and return. Safe to
// call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
}

func (w *Worker) dispatch(ctx context.Context, d broker.Delivery) {
	msg, err := envelope.Decode(d.Body)
	if err != nil {
		log.Printf("workerentry: decode message: %v", err)
		d.Nack(false)
		return
	}

	switch msg.Action {
	case envelope.ActionGetMetadata:
		w.handleGetMetadata(ctx, d)
	case envelope.ActionSendTask:
		w.handleSendTask(ctx, msg, d)
	case envelope.ActionStop:
		w.handleStop(ctx, d)
	default:
		log.Printf("workerentry: unknown action %q", msg.Action)
		d.Nack(false)
	}
}

func (w *Worker) handleGetMetadata(ctx context.Context, d broker.Delivery) {
	meta := RuntimeMetadata{
		Preinstalls: w.cfg.Preinstalls,
		GoVersion:   runtime.Version(),
	}
	body, err := json.Marshal(meta)
	if err != nil {
		log.Printf("workerentry: marshal metadata: %v", err)
		d.Nack(false)
		return
	}
	returnQueue := w.cfg.ManagementQueue + returnQueueSuffix
	if err := w.cfg.Broker.Publish(ctx, returnQueue, body); err != nil {
		log.Printf("workerentry: publish metadata: %v", err)
		d.Nack(true)
		return
	}
	d.Ack()
}

// handleSendTask is the dispatch/split/backpressure algorithm: admit as
// much of the batch as free call slots allow, requeue the remainder as a
// fresh task message, and nack-without-ack when nothing can be admitted at
// all so the broker redelivers it later.
func (w *Worker) handleSendTask(ctx context.Context, msg envelope.Message, d broker.Delivery) {
	var payload envelope.JobPayload
	if err := msg.DecodePayload(&payload); err != nil {
		log.Printf("workerentry: decode task payload: %v", err)
		d.Nack(false)
		return
	}

	admitted, ok := w.admission.decide(payload.TotalCalls)
	if !ok {
		d.Nack(true)
		time.Sleep(500 * time.Millisecond)
		return
	}

	toRun := payload
	if admitted < payload.TotalCalls {
		remainder := payload.Slice(admitted, payload.TotalCalls)
		body, err := envelope.Encode(envelope.ActionSendTask, remainder)
		if err == nil {
			err = w.cfg.Broker.Publish(ctx, w.cfg.TaskQueue, body)
		}
		if err != nil {
			// The remainder could not be requeued: give the slots back and
			// let the broker redeliver the whole message instead.
			log.Printf("workerentry: requeue split remainder: %v", err)
			w.admission.release(admitted)
			d.Nack(true)
			return
		}
		toRun = payload.Slice(0, admitted)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.cfg.Handler.Handle(ctx, toRun); err != nil {
			log.Printf("workerentry: handler failed: %v", err)
		}
		w.admission.release(admitted)
	}()

	d.Ack()
}

func (w *Worker) handleStop(ctx context.Context, d broker.Delivery) {
	d.Ack()
	if err := w.cfg.Broker.Cancel(ctx, w.mgmtTag); err != nil {
		log.Printf("workerentry: cancel management consumer: %v", err)
	}
	if err := w.cfg.Broker.Cancel(ctx, w.taskTag); err != nil {
		log.Printf("workerentry: cancel task consumer: %v", err)
	}
	w.Stop()
}
