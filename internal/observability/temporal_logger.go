package observability

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

var _ log.Logger = (*TemporalLogger)(nil)

// TemporalLogger routes Temporal SDK logs through zerolog.
type TemporalLogger struct {
	logger zerolog.Logger
}

// NewTemporalLogger tags every entry with component=temporal-sdk.
func NewTemporalLogger(logger zerolog.Logger) *TemporalLogger {
	return &TemporalLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...any) {
	l.logger.Debug().Fields(keyvalFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...any) {
	l.logger.Info().Fields(keyvalFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...any) {
	l.logger.Warn().Fields(keyvalFields(keyvals)).Msg(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...any) {
	l.logger.Error().Fields(keyvalFields(keyvals)).Msg(msg)
}

// keyvalFields pairs up alternating keys and values. A trailing key without
// a value is dropped.
func keyvalFields(keyvals []any) map[string]any {
	m := make(map[string]any, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		m[key] = keyvals[i+1]
	}
	return m
}
