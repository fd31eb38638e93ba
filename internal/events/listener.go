package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/domain"
)

// RunHandler executes one requested run.
type RunHandler func(ctx context.Context, runID uuid.UUID) error

// messageReader is the subset of *kafka.Reader the listener uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Listener consumes run.requested events and hands each run to a RunHandler.
// Offsets are committed after the handler returns, so a crash mid-run leads
// to the run being delivered again.
type Listener struct {
	reader  messageReader
	handler RunHandler
	logger  zerolog.Logger
}

// NewKafkaReader builds a consumer-group reader for the requests topic.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.RequestsTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
}

// NewListener creates a listener over r.
func NewListener(r messageReader, handler RunHandler, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:  r,
		handler: handler,
		logger:  logger.With().Str("component", "run_listener").Logger(),
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting run request listener")

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("run request listener stopped")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to fetch message from Kafka")
			continue
		}

		l.handle(ctx, msg)

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

func (l *Listener) handle(ctx context.Context, msg kafka.Message) {
	log := l.logger.With().Int("partition", msg.Partition).Int64("offset", msg.Offset).Logger()

	ev, err := DecodeMessage(msg)
	if err != nil {
		log.Error().Err(err).Str("raw_value", string(msg.Value)).Msg("dropping undecodable message")
		return
	}
	if ev.EventType != domain.EventTypeRunRequested {
		log.Debug().Str("event_type", ev.EventType).Msg("ignoring event")
		return
	}

	var payload domain.RunRequestedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.RunID == uuid.Nil {
		log.Error().Err(err).Str("event_id", ev.EventID).Msg("dropping run request without run id")
		return
	}

	log = log.With().Str("run_id", payload.RunID.String()).Logger()
	log.Info().Msg("run requested")

	if err := l.handler(ctx, payload.RunID); err != nil {
		// Failed runs are recorded by the handler; redelivery would repeat them.
		if errors.Is(err, context.Canceled) {
			log.Warn().Msg("run interrupted by shutdown")
			return
		}
		log.Error().Err(err).Msg("run failed")
	}
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing run request listener")
	return l.reader.Close()
}
