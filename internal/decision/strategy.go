// Package decision turns an agent's accumulated clues and public market
// prices into trade intents.
package decision

import (
	"context"

	"predictsim/internal/amm"
	"predictsim/internal/domain"
	"predictsim/internal/question"
)

// Action is the direction of a trade intent.
type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// Signal is a trade intent produced by a strategy for one agent.
type Signal struct {
	AgentID    string
	QuestionID uint64
	Action     Action
	Side       amm.Side
	Confidence float64 // agent's estimated probability that Side wins
	MarketProb float64 // current price of Side
	Edge       float64 // Confidence - MarketProb
	Strategy   string
	Reason     string
}

// View is the read-only slice of simulation state one agent decides from.
type View struct {
	Agent     domain.Agent
	Questions []question.Question
	Markets   map[uint64]amm.Market
}

// Strategy is the interface agent decision strategies implement.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, v View) ([]Signal, error)
	Enabled() bool
}
