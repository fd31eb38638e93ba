package runner

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/keyword-hunter/internal/domain"
	"github.com/helixir/keyword-hunter/internal/events"
)

// ExecuteFunc executes one run.
type ExecuteFunc func(ctx context.Context, runID uuid.UUID) error

// LocalDispatcher executes runs in background goroutines of this process.
type LocalDispatcher struct {
	ctx     context.Context
	execute ExecuteFunc
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

// NewLocalDispatcher creates a dispatcher whose runs live as long as ctx.
func NewLocalDispatcher(ctx context.Context, execute ExecuteFunc, logger zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{
		ctx:     ctx,
		execute: execute,
		logger:  logger.With().Str("component", "local_dispatcher").Logger(),
	}
}

// Dispatch starts the run and returns immediately. The request context is
// not used for execution since it ends with the request.
func (d *LocalDispatcher) Dispatch(_ context.Context, runID uuid.UUID) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.execute(d.ctx, runID); err != nil {
			d.logger.Debug().Err(err).Str("run_id", runID.String()).Msg("run finished with error")
		}
	}()
	return nil
}

// Wait blocks until every dispatched run returns.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

// KafkaDispatcher publishes run.requested events for cmd/worker to consume.
type KafkaDispatcher struct {
	publisher events.Publisher
}

// NewKafkaDispatcher creates a dispatcher over the requests topic publisher.
func NewKafkaDispatcher(p events.Publisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: p}
}

// Dispatch publishes the request.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, runID uuid.UUID) error {
	ev, err := domain.NewRunEvent(domain.EventTypeRunRequested, runID, domain.RunRequestedPayload{RunID: runID})
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, ev)
}
