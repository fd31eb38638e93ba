package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig("keyword-hunter-runs")

	assert.Equal(t, "keyword-hunter-runs", cfg.TaskQueue)
	assert.Equal(t, 100, cfg.MaxConcurrentActivityExecutionSize)
	assert.Equal(t, 50, cfg.MaxConcurrentWorkflowTaskExecutionSize)
	assert.Equal(t, 4, cfg.MaxConcurrentActivityTaskPollers)
	assert.Equal(t, 2, cfg.MaxConcurrentWorkflowTaskPollers)
}

func TestWorkerOptionsFromConfig(t *testing.T) {
	t.Run("zero values take defaults", func(t *testing.T) {
		opts := workerOptionsFromConfig(WorkerConfig{TaskQueue: "q"})

		assert.Equal(t, 100, opts.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 50, opts.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 4, opts.MaxConcurrentActivityTaskPollers)
		assert.Equal(t, 2, opts.MaxConcurrentWorkflowTaskPollers)
	})

	t.Run("custom values are kept", func(t *testing.T) {
		opts := workerOptionsFromConfig(WorkerConfig{
			TaskQueue:                              "q",
			MaxConcurrentActivityExecutionSize:     8,
			MaxConcurrentWorkflowTaskExecutionSize: 4,
			MaxConcurrentActivityTaskPollers:       1,
			MaxConcurrentWorkflowTaskPollers:       1,
		})

		assert.Equal(t, 8, opts.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 4, opts.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 1, opts.MaxConcurrentActivityTaskPollers)
		assert.Equal(t, 1, opts.MaxConcurrentWorkflowTaskPollers)
	})
}

func TestNewWorkerManager_RequiresTaskQueue(t *testing.T) {
	_, err := NewWorkerManager(nil, WorkerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task queue is required")
}
