// Command hpc-worker is the worker-side entry point: one process per Slurm
// task (or srun rank), parameterized entirely by flags the controller fills
// in at submission time — broker URL, the two queue names, and the free
// call-slot budget to start with.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/neardata-eu/lithops-hpc/internal/broker/rabbitmq"
	"github.com/neardata-eu/lithops-hpc/internal/functionhandler"
	"github.com/neardata-eu/lithops-hpc/internal/workerentry"
)

func main() {
	brokerURL := flag.String("broker", os.Getenv("HPC_BROKER_URL"), "AMQP broker URL")
	mgmtQueue := flag.String("management-queue", "", "management queue name")
	taskQueueName := flag.String("task-queue", "", "task queue name")
	maxTasksWorker := flag.Int("max-tasks-worker", 1, "free call slots this worker node starts with")
	flag.Parse()

	if *brokerURL == "" || *mgmtQueue == "" || *taskQueueName == "" {
		log.Fatal("hpc-worker: --broker, --management-queue, and --task-queue are required")
	}
	if *maxTasksWorker < 1 {
		log.Fatalf("hpc-worker: --max-tasks-worker must be positive, got %d", *maxTasksWorker)
	}

	log.Printf("hpc-worker: starting, management=%s task=%s max_tasks_worker=%d",
		*mgmtQueue, *taskQueueName, *maxTasksWorker)

	client := rabbitmq.New(*brokerURL)
	defer client.Close()

	worker := workerentry.New(workerentry.Config{
		Broker:          client,
		Handler:         functionhandler.HandlerFunc(runUserCalls),
		TaskQueue:       *taskQueueName,
		ManagementQueue: *mgmtQueue,
		Concurrency:     *maxTasksWorker,
		Preinstalls:     localPreinstalls(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusCh := make(chan os.Signal, 1)
	signal.Notify(statusCh, syscall.SIGUSR1)
	go reportStatusOnSignal(ctx, statusCh, worker, *maxTasksWorker)

	if err := worker.Run(ctx); err != nil {
		log.Fatalf("hpc-worker: %v", err)
	}
	log.Println("hpc-worker: stopped")
}

// reportStatusOnSignal prints the worker's current call-slot usage every
// time it receives SIGUSR1, a local stand-in for the teacher's /health
// HTTP endpoint since this process has no listener to poll.
func reportStatusOnSignal(ctx context.Context, sigs <-chan os.Signal, worker *workerentry.Worker, capacity int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			log.Printf("hpc-worker: status running=%d/%d", worker.RunningTaskCount(), capacity)
		}
	}
}
