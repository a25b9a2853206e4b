// Package publisher enriches audit events with request metadata and hands
// them to a store, either inline or through a bounded background queue.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	id "mutuelle/pkg/domain"
	audit "mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/audit/worker"
	"mutuelle/pkg/requestcontext"
)

var errBufferFull = errors.New("audit buffer full")

// MemberLister is implemented by stores that can read back a member's trail.
type MemberLister interface {
	ListByMember(ctx context.Context, memberID id.MemberID) ([]audit.Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking: events are queued on a buffer of
// size n and persisted by a background worker. When the buffer is full the
// event is dropped and Emit returns an error.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			w.Run(context.Background())
		}()
	}
	return p
}

// Emit enriches event from ctx and persists it.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event = enrich(ctx, event)

	if p.inbox == nil {
		if err := p.store.Append(ctx, event); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("audit publisher closed")
	}
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"member_id", event.MemberID,
		)
		return errBufferFull
	}
}

// List returns the trail for one member when the store supports it.
func (p *Publisher) List(ctx context.Context, memberID id.MemberID) ([]audit.Event, error) {
	lister, ok := p.store.(MemberLister)
	if !ok {
		return nil, fmt.Errorf("audit store %T cannot list events", p.store)
	}
	return lister.ListByMember(ctx, memberID)
}

// Close stops accepting async events and waits for the queue to drain.
// Safe to call more than once and on a synchronous publisher.
func (p *Publisher) Close() {
	if p.inbox == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()
	<-p.done
}

func enrich(ctx context.Context, event audit.Event) audit.Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.OperatorID.IsNil() {
		event.OperatorID = requestcontext.OperatorID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Terminal == "" {
		event.Terminal = describeTerminal(requestcontext.UserAgent(ctx))
	}
	return event
}

// describeTerminal condenses a User-Agent into "Browser on OS", with a
// "(mobile)" suffix for handheld readers.
func describeTerminal(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = raw
	}
	desc := name
	if os := ua.OS(); os != "" {
		desc += " on " + os
	}
	if ua.Mobile() {
		desc += " (mobile)"
	}
	return desc
}
