package ports

import (
	"context"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// AuditRecorder persists audit events.
type AuditRecorder interface {
	Record(ctx context.Context, event *domain.AuditEvent) error
}

// AuditSink accepts events for asynchronous recording. Enqueue never blocks
// the calling request; a saturated sink drops the event.
type AuditSink interface {
	Enqueue(event domain.AuditEvent)
}
