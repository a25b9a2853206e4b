package worker

import (
	"context"
	"log/slog"

	audit "mutuelle/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them until the
// channel is closed. A failed append is logged and the worker moves on; one
// bad event must not stall the trail behind it.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains inbox. It returns when inbox is closed and empty. Cancelling
// ctx only affects the store calls.
func (w *Worker) Run(ctx context.Context) {
	for event := range w.inbox {
		if err := w.store.Append(ctx, event); err != nil {
			w.logger.ErrorContext(ctx, "failed to persist audit event",
				"action", event.Action,
				"member_id", event.MemberID,
				"error", err,
			)
		}
	}
}
