package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/pkg/middleware/requestid"
)

// EventSink receives booking desk events.
type EventSink interface {
	RecordBookingEvent(event models.BookingEvent)
}

// LogEventSink writes booking events to the structured log.
type LogEventSink struct {
	logger *zap.Logger
}

// NewLogEventSink constructs LogEventSink.
func NewLogEventSink(logger *zap.Logger) *LogEventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEventSink{logger: logger}
}

// RecordBookingEvent implements EventSink.
func (s *LogEventSink) RecordBookingEvent(event models.BookingEvent) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.StudentID != 0 {
		fields = append(fields, zap.Int64("student_id", event.StudentID))
	}
	if event.DisciplineID != 0 {
		fields = append(fields, zap.Int64("discipline_id", event.DisciplineID))
	}
	if event.BookID != 0 {
		fields = append(fields, zap.Int64("book_id", event.BookID))
	}
	if event.Code != "" {
		fields = append(fields, zap.String("code", event.Code))
	}
	if event.Context != nil {
		fields = append(fields, zap.Any("context", event.Context))
	}
	if event.Accepted() {
		s.logger.Info("booking event", fields...)
		return
	}
	fields = append(fields, zap.String("reason", event.Reason))
	s.logger.Warn("booking rejected", fields...)
}

type eventPublisher struct {
	sinks []EventSink
	now   func() time.Time
}

func newEventPublisher(now func() time.Time, sinks ...EventSink) *eventPublisher {
	if now == nil {
		now = time.Now
	}
	return &eventPublisher{sinks: sinks, now: now}
}

func (p *eventPublisher) publish(ctx context.Context, event models.BookingEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	if id := requestid.FromContext(ctx); id != "" {
		if event.Context == nil {
			event.Context = map[string]interface{}{}
		} else {
			event.Context = copyContext(event.Context)
		}
		event.Context["request_id"] = id
	}
	for _, sink := range p.sinks {
		if sink != nil {
			sink.RecordBookingEvent(event)
		}
	}
}

func copyContext(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
