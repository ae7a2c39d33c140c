package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// ObjectWriter stores a JSON document under key.
type ObjectWriter interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// AuditSink writes one JSON object per event under audit/YYYY/MM/DD/.
// Without a writer it only logs the event.
type AuditSink struct {
	writer ObjectWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditSink creates an audit sink. writer may be nil.
func NewAuditSink(writer ObjectWriter, logger *slog.Logger) *AuditSink {
	return &AuditSink{
		writer: writer,
		logger: logger.With("component", "notify_audit"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Deliver implements Deliverer.
func (s *AuditSink) Deliver(ctx context.Context, eventType string, payload any) error {
	if s.writer == nil {
		s.logger.Info("audit event", "type", eventType)
		return nil
	}
	key := AuditKey(s.now(), eventType, ulid.Make().String())
	if err := s.writer.PutJSON(ctx, key, envelope{Type: eventType, Data: payload}); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// AuditKey builds the object key for one audit record.
func AuditKey(at time.Time, eventType, id string) string {
	return fmt.Sprintf("audit/%s/%s-%s.json", at.UTC().Format("2006/01/02"), eventType, id)
}
