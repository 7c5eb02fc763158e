package observability

import (
	"log/slog"

	"peerescrow/core/events"
	"peerescrow/observability/logging"
)

// EventSink logs every emitted event and counts it by type.
type EventSink struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewEventSink returns an emitter feeding logger and metrics. Either may be
// nil.
func NewEventSink(logger *slog.Logger, metrics *Metrics) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{logger: logger, metrics: metrics}
}

func (s *EventSink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	payload := events.PayloadOf(evt)
	s.metrics.RecordEvent(payload.Type)
	s.logger.Info("escrow event",
		slog.String("event", payload.Type),
		slog.Group("attributes", logging.MaskAttrs(payload.Attributes)...),
	)
}
