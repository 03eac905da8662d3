// Package notify delivers best-effort user notifications to one or more
// sinks. Delivery never blocks or fails the operation that triggered it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campusrent/campusrent/internal/metrics"
)

// Notification kinds.
const (
	KindRequestCreated   = "request_created"
	KindRequestAccepted  = "request_accepted"
	KindRequestRejected  = "request_rejected"
	KindRequestCancelled = "request_cancelled"
	KindRequestActive    = "request_active"
	KindRequestCompleted = "request_completed"
	KindNewMessage       = "new_message"
	KindNewReview        = "new_review"
)

// Notification is a message for one user.
type Notification struct {
	UserID    int64             `json:"user_id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sink delivers notifications somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier is what services depend on.
type Notifier interface {
	Notify(n Notification)
}

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Dispatcher fans notifications out to its sinks, one goroutine per sink and
// notification. Failures are logged and counted, never retried.
type Dispatcher struct {
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher over sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger, timeout: DefaultTimeout}
}

// Notify queues n for delivery and returns immediately.
func (d *Dispatcher) Notify(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	for _, s := range d.sinks {
		d.wg.Add(1)
		go func(s Sink) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := s.Send(ctx, n); err != nil {
				metrics.NotificationsSent.WithLabelValues(s.Name(), "failed").Inc()
				d.logger.Warn("notification delivery failed",
					"sink", s.Name(), "user_id", n.UserID, "kind", n.Kind, "error", err)
				return
			}
			metrics.NotificationsSent.WithLabelValues(s.Name(), "sent").Inc()
		}(s)
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Notification) {}

// LogSink writes notifications to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Send implements Sink.
func (s LogSink) Send(ctx context.Context, n Notification) error {
	s.Logger.InfoContext(ctx, "notification",
		"user_id", n.UserID, "kind", n.Kind, "title", n.Title)
	return nil
}
