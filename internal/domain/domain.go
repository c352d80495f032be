// Package domain holds the value types shared by the disclosure, decision,
// execution and settlement components.
package domain

import (
	"sort"

	"predictsim/internal/amm"
)

// Role separates agents by how early and how strongly they learn the truth.
type Role string

const (
	Insider  Role = "insider"
	Outsider Role = "outsider"
)

// Clue is a timed, strength-scored hint about a question's hidden outcome.
type Clue struct {
	QuestionID   uint64  `json:"questionId"`
	Content      string  `json:"content"`
	Strength     float64 `json:"strength"`
	PointsToward bool    `json:"pointsToward"`
	RevealDay    int     `json:"revealDay"`
}

// Position is one agent's holding in one question. Positions are closed at
// settlement, never deleted.
type Position struct {
	QuestionID uint64   `json:"questionId"`
	Side       amm.Side `json:"side"`
	Shares     float64  `json:"shares"`
	CostBasis  float64  `json:"costBasis"`
	Closed     bool     `json:"closed"`
	Payout     float64  `json:"payout"`
}

// Agent is a trading participant.
type Agent struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Role            Role                 `json:"role"`
	Knowledge       []Clue               `json:"knowledge"`
	Balance         float64              `json:"balance"`
	StartingBalance float64              `json:"startingBalance"`
	RiskThreshold   float64              `json:"riskThreshold"`
	Positions       map[uint64]*Position `json:"positions"`
}

// Clone returns a deep copy so callers can mutate it without touching the
// original state.
func (a Agent) Clone() Agent {
	out := a
	out.Knowledge = append([]Clue(nil), a.Knowledge...)
	out.Positions = make(map[uint64]*Position, len(a.Positions))
	for id, p := range a.Positions {
		cp := *p
		out.Positions[id] = &cp
	}
	return out
}

// OpenPosition returns the agent's open position on questionID, if any.
func (a Agent) OpenPosition(questionID uint64) (*Position, bool) {
	p, ok := a.Positions[questionID]
	if !ok || p.Closed || p.Shares <= 0 {
		return nil, false
	}
	return p, true
}

// CluesFor returns the clues the agent holds about questionID, in reveal order.
func (a Agent) CluesFor(questionID uint64) []Clue {
	var out []Clue
	for _, c := range a.Knowledge {
		if c.QuestionID == questionID {
			out = append(out, c)
		}
	}
	return out
}

// ReputationDelta is produced by settlement for an external reputation
// collaborator.
type ReputationDelta struct {
	AgentID        string  `json:"agentId"`
	QuestionID     uint64  `json:"questionId"`
	OutcomeCorrect bool    `json:"outcomeCorrect"`
	Magnitude      float64 `json:"magnitude"`
}

// CloneAgents deep-copies a roster.
func CloneAgents(agents []Agent) []Agent {
	out := make([]Agent, len(agents))
	for i, a := range agents {
		out[i] = a.Clone()
	}
	return out
}

// SortedQuestionIDs returns the keys of a position map in ascending order.
func SortedQuestionIDs(positions map[uint64]*Position) []uint64 {
	ids := make([]uint64, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
