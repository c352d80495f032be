package event

import (
	"context"

	"predictsim/internal/amm"
)

// Log is an append-only event sequence. Order of append is the total order.
type Log struct {
	events []Event
}

func NewLog() *Log { return &Log{} }

// Append records payload on day and returns the stored event.
func (l *Log) Append(day int, p Payload) Event {
	e := Event{Day: day, Payload: p}
	l.events = append(l.events, e)
	return e
}

// Extend appends already-built events, preserving their order.
func (l *Log) Extend(events ...Event) {
	l.events = append(l.events, events...)
}

func (l *Log) Len() int { return len(l.events) }

// Events returns a copy of the whole log.
func (l *Log) Events() []Event {
	return append([]Event(nil), l.events...)
}

// Filter returns the events of type t in log order.
func (l *Log) Filter(t Type) []Event {
	return Filter(l.events, t)
}

func Filter(events []Event, t Type) []Event {
	var out []Event
	for _, e := range events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

// Sink receives batches of appended events, e.g. for streaming to
// downstream consumers.
type Sink interface {
	Publish(ctx context.Context, gameID string, events []Event) error
}

// ReplayState is what can be rebuilt from a log alone.
type ReplayState struct {
	Markets  map[uint64]amm.Market
	Outcomes map[uint64]bool
	LastDay  int
}

// Replay folds events into the final market and outcome state.
func Replay(events []Event) ReplayState {
	rs := ReplayState{Markets: make(map[uint64]amm.Market), Outcomes: make(map[uint64]bool)}
	for _, e := range events {
		rs.LastDay = max(rs.LastDay, e.Day)
		switch p := e.Payload.(type) {
		case MarketUpdatedPayload:
			rs.Markets[p.QuestionID] = p.Market()
		case OutcomeRevealedPayload:
			rs.Outcomes[p.QuestionID] = p.Outcome
		}
	}
	return rs
}
