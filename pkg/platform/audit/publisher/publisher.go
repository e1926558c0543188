// Package publisher fans domain audit events into an audit.Store, either
// synchronously or through a buffered channel drained by a worker.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "endorser/pkg/platform/audit"
	"endorser/pkg/platform/audit/worker"
)

// Publisher emits audit events.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger
	now    func() time.Time

	inbox  chan audit.Event
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.inbox)
		go func() {
			defer close(p.done)
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("audit worker stopped", "error", err)
			}
		}()
	}
	return p
}

// Emit records event. In async mode a full buffer drops the event with a log
// line rather than blocking ingestion.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event", "action", event.Action)
	}
	return nil
}

// List returns events recorded for subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Close drains pending events and stops the worker.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		<-p.done
		p.cancel()
	})
}
