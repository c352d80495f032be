// Package settlement pays out resolved markets and scores agents for the
// reputation system.
package settlement

import (
	"context"
	"math"
	"sort"

	"predictsim/internal/amm"
	"predictsim/internal/domain"
	"predictsim/internal/question"
)

// PayoutPerShare is what one winning share redeems for.
const PayoutPerShare = 1.0

// Reputation records settlement deltas in an external reputation system.
type Reputation interface {
	Record(ctx context.Context, deltas []domain.ReputationDelta) error
}

// Result is the outcome of settling one question.
type Result struct {
	Question question.Question
	Agents   []domain.Agent
	Payouts  map[string]float64
	Deltas   []domain.ReputationDelta
	Settled  bool
}

// Settle resolves q with outcome and pays every open position on it. The
// agents slice is not modified; Result.Agents carries the settled copies.
// Settling a question that is no longer active is a no-op with
// Settled=false, so repeated calls never pay twice.
func Settle(q question.Question, outcome bool, agents []domain.Agent) Result {
	if !q.IsActive() {
		return Result{Question: q, Agents: agents}
	}

	res := Result{
		Question: question.Resolve(q, outcome),
		Agents:   domain.CloneAgents(agents),
		Payouts:  make(map[string]float64),
		Settled:  true,
	}
	winning := amm.SideOf(outcome)
	res.Deltas = Deltas(q.ID, outcome, agents)

	for i := range res.Agents {
		a := &res.Agents[i]
		pos, ok := a.Positions[q.ID]
		if !ok || pos.Closed {
			continue
		}

		payout := 0.0
		if pos.Side == winning {
			payout = pos.Shares * PayoutPerShare
		}
		a.Balance += payout
		pos.Payout = payout
		pos.Closed = true
		res.Payouts[a.ID] = payout
	}
	return res
}

// Deltas scores every agent with non-zero net exposure on questionID
// against outcome, in roster order.
func Deltas(questionID uint64, outcome bool, agents []domain.Agent) []domain.ReputationDelta {
	var out []domain.ReputationDelta
	for _, a := range agents {
		pos, ok := a.Positions[questionID]
		if !ok {
			continue
		}
		net := NetExposure(*pos)
		if net == 0 {
			continue
		}
		out = append(out, domain.ReputationDelta{
			AgentID:        a.ID,
			QuestionID:     questionID,
			OutcomeCorrect: (net > 0) == outcome,
			Magnitude:      math.Abs(net),
		})
	}
	return out
}

// NetExposure is YES shares minus NO shares held in pos.
func NetExposure(pos domain.Position) float64 {
	if pos.Side == amm.No {
		return -pos.Shares
	}
	return pos.Shares
}

// Winners returns the sorted, distinct ids of agents whose exposure matched
// the outcome.
func Winners(deltas []domain.ReputationDelta) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range deltas {
		if d.OutcomeCorrect && !seen[d.AgentID] {
			seen[d.AgentID] = true
			out = append(out, d.AgentID)
		}
	}
	sort.Strings(out)
	return out
}
