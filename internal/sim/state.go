// Package sim advances the simulation one day at a time.
package sim

import (
	"context"
	"maps"

	"predictsim/internal/amm"
	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/question"
)

// Horizon pins a question's trading window to simulation days instead of
// its calendar dates. The complete-game runner uses it to stretch one
// question across the whole game.
type Horizon struct {
	StartDay int `json:"startDay"`
	EndDay   int `json:"endDay"`
}

// State is everything one day needs. RunDay never mutates the State it is
// given; it returns a new one.
type State struct {
	GameID       string                `json:"gameId"`
	Seed         uint64                `json:"seed"`
	Day          int                   `json:"day"`  // the next day to run
	Date         string                `json:"date"` // calendar date of Day
	Questions    []question.Question   `json:"questions"`
	Markets      map[uint64]amm.Market `json:"markets"`
	Agents       []domain.Agent        `json:"agents"`
	NextID       uint64                `json:"nextId"`
	Horizons     map[uint64]Horizon    `json:"horizons,omitempty"`
	RecentEvents []string              `json:"recentEvents,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Questions = make([]question.Question, len(s.Questions))
	for i, q := range s.Questions {
		if q.ResolvedOutcome != nil {
			v := *q.ResolvedOutcome
			q.ResolvedOutcome = &v
		}
		out.Questions[i] = q
	}
	out.Markets = maps.Clone(s.Markets)
	if out.Markets == nil {
		out.Markets = make(map[uint64]amm.Market)
	}
	out.Agents = domain.CloneAgents(s.Agents)
	out.Horizons = maps.Clone(s.Horizons)
	out.RecentEvents = append([]string(nil), s.RecentEvents...)
	return out
}

// Active returns the active questions in creation order.
func (s State) Active() []question.Question {
	return question.ActiveOnly(s.Questions)
}

// Question looks up a question by id.
func (s State) Question(id uint64) (question.Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return question.Question{}, false
}

func (s *State) replaceQuestion(q question.Question) {
	for i := range s.Questions {
		if s.Questions[i].ID == q.ID {
			s.Questions[i] = q
			return
		}
	}
}

// DayResult is what RunDay produced.
type DayResult struct {
	State  State
	Events []event.Event
}

// Persistence stores state snapshots and the append-only event log.
type Persistence interface {
	SaveSnapshot(ctx context.Context, s State) error
	AppendEvents(ctx context.Context, gameID string, events []event.Event) error
}
