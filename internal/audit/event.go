package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"caseshare.org/internal/ids"
)

// Outcome records whether the audited operation was allowed or denied.
type Outcome string

const (
	OutcomeAllowed Outcome = "ALLOWED"
	OutcomeDenied  Outcome = "DENIED"
)

// Event is one append-only audit record. Once written it is never mutated
// or deleted; references to entities are by id only.
type Event struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	Verb       string            `json:"verb"`
	ObjectType string            `json:"object_type"`
	ObjectID   string            `json:"object_id"`
	OrgContext string            `json:"org_context"`
	Timestamp  time.Time         `json:"timestamp"`
	Outcome    Outcome           `json:"outcome"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// stamp fills the id and timestamp if the caller left them empty. Ids are
// ULIDs minted at the event timestamp, so id order is (timestamp, sequence)
// order and serves as the export pagination cursor.
func (e *Event) stamp(now time.Time) {
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.ID == "" {
		e.ID = ids.NewAt(e.Timestamp)
	}
}

// Filter narrows an export. Zero values mean "no constraint".
type Filter struct {
	From       time.Time
	To         time.Time
	Verb       string
	ObjectType string
}

func (f Filter) matches(e Event) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Verb != "" && e.Verb != f.Verb {
		return false
	}
	if f.ObjectType != "" && e.ObjectType != f.ObjectType {
		return false
	}
	return true
}

// Sink is the durable append-only event store.
type Sink interface {
	Append(ctx context.Context, e Event) error
	// Export returns up to limit matching events with id greater than
	// afterID, ordered by id (and therefore timestamp) ascending.
	Export(ctx context.Context, f Filter, afterID string, limit int) ([]Event, error)
}

// MemorySink implements Sink in process. The durable variant lives in the
// pg store.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event // ordered by id ascending
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.events), func(i int) bool { return s.events[i].ID >= e.ID })
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e
	return nil
}

func (s *MemorySink) Export(ctx context.Context, f Filter, afterID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.ID <= afterID {
			continue
		}
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored events. Test helper.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
