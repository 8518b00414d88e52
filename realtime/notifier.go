// Package realtime pushes lifecycle events to connected principals.
// Delivery is best effort: clients must re-fetch authoritative state.
package realtime

import (
	"context"
	"sync"
	"time"
)

// Event types emitted after a committed state change
const (
	EventJobCreated      = "job.created"
	EventJobUpdated      = "job.updated"
	EventJobDeleted      = "job.deleted"
	EventOfferCreated    = "offer.created"
	EventOfferAccepted   = "offer.accepted"
	EventOfferRejected   = "offer.rejected"
	EventOfferWithdrawn  = "offer.withdrawn"
	EventReviewCreated   = "review.created"
	EventMessageReceived = "message.received"
	EventComplaintFiled  = "complaint.filed"
	EventComplaintClosed = "complaint.closed"
	EventWithdrawal      = "withdrawal.updated"
)

// Event is addressed to a set of user ids
type Event struct {
	Type       string                 `json:"type"`
	Recipients []uint                 `json:"-"`
	JobID      uint                   `json:"job_id,omitempty"`
	OfferID    uint                   `json:"offer_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	At         time.Time              `json:"at"`
}

// Notifier publishes events. Implementations must not block on slow receivers.
type Notifier interface {
	Publish(ctx context.Context, evt Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory, for tests
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of everything published so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// Recipients builds a recipient list skipping nil and duplicate ids
func Recipients(ids ...*uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		out = append(out, *id)
	}
	return out
}
