package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// TaskQueue is the name of the task queue to poll.
	TaskQueue string

	// MaxConcurrentActivityExecutionSize is the maximum concurrent activity executions.
	// Default: 100
	MaxConcurrentActivityExecutionSize int

	// MaxConcurrentWorkflowTaskExecutionSize is the maximum concurrent workflow task executions.
	// Default: 50
	MaxConcurrentWorkflowTaskExecutionSize int

	// MaxConcurrentActivityTaskPollers is the number of activity task pollers.
	// Default: 4
	MaxConcurrentActivityTaskPollers int

	// MaxConcurrentWorkflowTaskPollers is the number of workflow task pollers.
	// Default: 2
	MaxConcurrentWorkflowTaskPollers int
}

// DefaultWorkerConfig returns a WorkerConfig with default values.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              taskQueue,
		MaxConcurrentActivityExecutionSize:     100,
		MaxConcurrentWorkflowTaskExecutionSize: 50,
		MaxConcurrentActivityTaskPollers:       4,
		MaxConcurrentWorkflowTaskPollers:       2,
	}
}

// workerOptionsFromConfig fills zero-valued fields with the defaults.
func workerOptionsFromConfig(config WorkerConfig) worker.Options {
	def := DefaultWorkerConfig(config.TaskQueue)
	pick := func(v, fallback int) int {
		if v == 0 {
			return fallback
		}
		return v
	}
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     pick(config.MaxConcurrentActivityExecutionSize, def.MaxConcurrentActivityExecutionSize),
		MaxConcurrentWorkflowTaskExecutionSize: pick(config.MaxConcurrentWorkflowTaskExecutionSize, def.MaxConcurrentWorkflowTaskExecutionSize),
		MaxConcurrentActivityTaskPollers:       pick(config.MaxConcurrentActivityTaskPollers, def.MaxConcurrentActivityTaskPollers),
		MaxConcurrentWorkflowTaskPollers:       pick(config.MaxConcurrentWorkflowTaskPollers, def.MaxConcurrentWorkflowTaskPollers),
	}
}

// WorkerManager owns a Temporal worker and what is registered on it.
type WorkerManager struct {
	worker    worker.Worker
	taskQueue string
}

// NewWorkerManager creates a worker polling config.TaskQueue.
func NewWorkerManager(c client.Client, config WorkerConfig) (*WorkerManager, error) {
	if config.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}
	return &WorkerManager{
		worker:    worker.New(c, config.TaskQueue, workerOptionsFromConfig(config)),
		taskQueue: config.TaskQueue,
	}, nil
}

// RegisterRunWorkflow registers the keyword run workflow under RunWorkflowName.
func (m *WorkerManager) RegisterRunWorkflow(wf any) {
	m.worker.RegisterWorkflowWithOptions(wf, workflow.RegisterOptions{Name: RunWorkflowName})
}

// RegisterActivity registers an activity function or a struct whose
// exported methods are activities.
func (m *WorkerManager) RegisterActivity(activity any) {
	m.worker.RegisterActivity(activity)
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker until ctx is cancelled.
func (m *WorkerManager) Start(ctx context.Context) error {
	return StartWorker(ctx, m.worker)
}

// StartWorker runs w and blocks until ctx is cancelled or w stops.
func StartWorker(ctx context.Context, w worker.Worker) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
