// Package activity dispatches best-effort activity-log events
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Activity actions emitted for client mutations
const (
	ActionClientCreated = "client_created"
	ActionClientUpdated = "client_updated"
	ActionClientDeleted = "client_deleted"
)

// Event is one activity-log entry
type Event struct {
	UserID   uuid.UUID  `json:"user_id"`
	Action   string     `json:"action"`
	Details  string     `json:"details"`
	ClientID *uuid.UUID `json:"client_id,omitempty"`
}

// Emitter delivers an event to the activity log
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// Notifier is what engines depend on. Notify must never block the caller.
type Notifier interface {
	Notify(e Event)
}

// Dispatcher sends each event on its own goroutine with a bounded timeout.
// Failures are logged and counted, never returned.
type Dispatcher struct {
	emitter Emitter
	timeout time.Duration
	logger  *zap.Logger
	outcome *prometheus.CounterVec
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil registerer skips metric registration.
func NewDispatcher(emitter Emitter, timeout time.Duration, logger *zap.Logger, reg prometheus.Registerer) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	outcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_events_total",
		Help: "Activity-log events by action and delivery outcome.",
	}, []string{"action", "outcome"})
	if reg != nil {
		reg.MustRegister(outcome)
	}
	return &Dispatcher{
		emitter: emitter,
		timeout: timeout,
		logger:  logger,
		outcome: outcome,
	}
}

// Notify implements Notifier
func (d *Dispatcher) Notify(e Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.outcome.WithLabelValues(e.Action, "panic").Inc()
				d.logger.Warn("activity emitter panicked", zap.Any("panic", r), zap.String("action", e.Action))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.emitter.Emit(ctx, e); err != nil {
			d.outcome.WithLabelValues(e.Action, "failed").Inc()
			d.logger.Warn("activity log delivery failed",
				zap.Error(err),
				zap.String("action", e.Action),
				zap.String("user_id", e.UserID.String()),
			)
			return
		}
		d.outcome.WithLabelValues(e.Action, "sent").Inc()
	}()
}

// Wait blocks until all in-flight events finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
