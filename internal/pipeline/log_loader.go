package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
)

// LogLoader writes events to the logger. It is the sink when Kafka is disabled.
type LogLoader struct {
	logger *slog.Logger
}

// NewLogLoader creates a LogLoader.
func NewLogLoader(logger *slog.Logger) *LogLoader {
	return &LogLoader{logger: logger}
}

func (l *LogLoader) LoadBatch(ctx context.Context, events []domain.AmbianceEvent) error {
	for _, e := range events {
		l.logger.InfoContext(ctx, "ambiance event",
			"id", e.ID,
			"session_id", e.SessionID,
			"type", e.Type,
			"effect", e.Effect,
			"day_key", e.DayKey,
			"occurred_at", e.OccurredAt,
		)
	}
	return nil
}
