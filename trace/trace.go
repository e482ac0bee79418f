package trace

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Trace is the immutable ordered sequence of events of one simulation.
type Trace struct {
	events []Event
}

// New returns a Trace over a copy of events.
func New(events ...Event) *Trace {
	return &Trace{events: append([]Event(nil), events...)}
}

// Len returns the number of events.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.events)
}

// At returns the i-th event.
func (t *Trace) At(i int) Event {
	return t.events[i]
}

// Events returns a copy of the events.
func (t *Trace) Events() []Event {
	if t == nil {
		return nil
	}
	return append([]Event(nil), t.events...)
}

// Each calls fn for every event in order and stops at the first error.
func (t *Trace) Each(fn func(i int, ev *Event) error) error {
	if t == nil {
		return nil
	}
	for i := range t.events {
		ev := t.events[i]
		if err := fn(i, &ev); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trace) MarshalJSON() ([]byte, error) {
	if t == nil || t.events == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.events)
}

func (t *Trace) UnmarshalJSON(data []byte) error {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	for i, ev := range events {
		if ev.Depth < 1 {
			return fmt.Errorf("event %d: depth must be positive, got %d", i, ev.Depth)
		}
	}
	t.events = events
	return nil
}
