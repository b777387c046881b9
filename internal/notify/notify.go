// Package notify delivers domain events to sinks outside the request path.
package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

// Kind names an event type.
type Kind string

// Event kinds.
const (
	KindProblemReport  Kind = "problem_report"
	KindItemRemoved    Kind = "item_removed"
	KindReturnReminder Kind = "return_reminder"
)

// Event is a notification about a reservation.
type Event struct {
	Kind            Kind      `json:"kind"`
	At              time.Time `json:"at"`
	ReservationID   uuid.UUID `json:"reservation_id"`
	ReservationName string    `json:"reservation_name"`
	UserID          string    `json:"user_id"`
	TeamID          *string   `json:"team_id,omitempty"`
	Contact         string    `json:"contact"`
	ActorID         string    `json:"actor_id,omitempty"`

	// Set for problem reports and removals.
	ItemID  *uuid.UUID   `json:"item_id,omitempty"`
	Action  model.Action `json:"action,omitempty"`
	Comment *string      `json:"comment,omitempty"`

	// Set for reminders.
	End         *model.Day `json:"end,omitempty"`
	DaysOverdue int        `json:"days_overdue,omitempty"`
}

// Sink receives events drained by a Dispatcher.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Dispatcher buffers events on a bounded channel and hands them to its
// sinks from a single goroutine.
type Dispatcher struct {
	events  chan Event
	sinks   []Sink
	dropped atomic.Int64
}

// NewDispatcher returns a dispatcher holding at most buffer pending events.
func NewDispatcher(buffer int, sinks ...Sink) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		events: make(chan Event, buffer),
		sinks:  sinks,
	}
}

// Publish enqueues e without blocking. It reports false and drops the event
// when the buffer is full.
func (d *Dispatcher) Publish(e Event) bool {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case d.events <- e:
		return true
	default:
		d.dropped.Add(1)
		slog.Warn("notification dropped, queue full", "kind", e.Kind, "reservation", e.ReservationID)
		return false
	}
}

// Dropped returns the number of events dropped so far.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is cancelled, then flushes what is still
// buffered. Sink errors are logged and the event is not retried.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.events:
			d.deliver(ctx, e)
		case <-ctx.Done():
			d.flush()
			return nil
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-d.events:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, e); err != nil {
			slog.Error("notification delivery failed", "sink", s.Name(), "kind", e.Kind, "reservation", e.ReservationID, "error", err)
		}
	}
}
