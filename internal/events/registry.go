// Package events fans verified webhook events out to in-process subscribers.
// Delivery is at-most-once per process: there is no durable queue and no
// cross-process fan-out.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/phxgg/kickbridge/internal/domain"
	"github.com/phxgg/kickbridge/internal/metrics"
)

// Event is one verified webhook delivery handed to a subscriber. Payload is
// the raw body so subscribers can decode into their own concrete types.
type Event struct {
	Type    domain.EventType
	Payload json.RawMessage
}

const subscriberBuffer = 64

// Subscriber is a single in-process listener bound to one subject id.
type Subscriber struct {
	events    chan Event
	closeOnce sync.Once
}

func NewSubscriber() *Subscriber {
	return &Subscriber{events: make(chan Event, subscriberBuffer)}
}

// Events is the subscriber's receive side. It is closed when the subject is
// destroyed or replaced.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.events) })
}

// Registry maps subject ids to their current subscriber. Entries live for the
// duration of a client connection: registered when a session attaches,
// destroyed when it disconnects. Inject one instance per process; tests get a
// fresh one each.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscriber)}
}

// Register binds a subscriber to a subject id. Re-registering replaces (and
// closes) the previous subscriber without touching other subjects.
func (r *Registry) Register(subjectID string, sub *Subscriber) {
	r.mu.Lock()
	prev := r.subs[subjectID]
	r.subs[subjectID] = sub
	r.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// Destroy closes and removes the subject's subscriber, releasing every
// listener reference. Destroying an unknown subject is a no-op.
func (r *Registry) Destroy(subjectID string) {
	r.mu.Lock()
	sub := r.subs[subjectID]
	delete(r.subs, subjectID)
	r.mu.Unlock()

	if sub != nil {
		sub.close()
	}
}

// Deregister removes the subject's subscriber only if it is still the given
// one. A connection replaced by a newer registration must not tear down its
// successor on the way out.
func (r *Registry) Deregister(subjectID string, sub *Subscriber) {
	r.mu.Lock()
	current := r.subs[subjectID]
	if current == sub {
		delete(r.subs, subjectID)
	}
	r.mu.Unlock()

	sub.close()
}

// Emit delivers an event to the subject's subscriber. Unknown subjects are a
// silent no-op: deliveries arrive whether or not anyone local cares. A full
// subscriber drops the event rather than blocking the webhook path.
func (r *Registry) Emit(subjectID string, eventType domain.EventType, payload json.RawMessage) {
	r.mu.RLock()
	sub := r.subs[subjectID]
	r.mu.RUnlock()

	if sub == nil {
		return
	}

	select {
	case sub.events <- Event{Type: eventType, Payload: payload}:
	default:
		metrics.EventsDropped.Inc()
		slog.Warn("Dropping event for slow subscriber", "subject_id", subjectID, "event_type", eventType)
	}
}

// Len reports the number of registered subjects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
