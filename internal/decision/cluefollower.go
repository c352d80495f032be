package decision

import (
	"context"
	"fmt"
	"math"

	"predictsim/internal/amm"
	"predictsim/internal/domain"
)

// ClueFollower bets when the agent's clue-derived belief diverges from the
// market price by more than the agent's risk threshold.
type ClueFollower struct{}

func NewClueFollower() *ClueFollower { return &ClueFollower{} }

func (c *ClueFollower) Name() string  { return "clue_follower" }
func (c *ClueFollower) Enabled() bool { return true }

func (c *ClueFollower) Evaluate(ctx context.Context, v View) ([]Signal, error) {
	var signals []Signal
	for _, q := range v.Questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !q.IsActive() {
			continue
		}
		m, ok := v.Markets[q.ID]
		if !ok {
			continue
		}
		clues := v.Agent.CluesFor(q.ID)
		if len(clues) == 0 {
			continue
		}

		belief := Confidence(clues)
		price := amm.CurrentPrice(m, amm.Yes)
		gap := belief - price
		if math.Abs(gap) <= v.Agent.RiskThreshold {
			continue
		}

		favoured := amm.SideOf(gap > 0)
		if held, ok := v.Agent.OpenPosition(q.ID); ok && held.Side == favoured.Opposite() {
			signals = append(signals, c.signal(v.Agent.ID, q.ID, Sell, held.Side, belief, m,
				fmt.Sprintf("exiting %s: belief %.3f vs price %.3f", held.Side, belief, price)))
			continue
		}
		signals = append(signals, c.signal(v.Agent.ID, q.ID, Buy, favoured, belief, m,
			fmt.Sprintf("belief %.3f vs price %.3f from %d clues", belief, price, len(clues))))
	}
	return signals, nil
}

func (c *ClueFollower) signal(agentID string, qid uint64, action Action, side amm.Side, yesBelief float64, m amm.Market, reason string) Signal {
	conf := yesBelief
	if side == amm.No {
		conf = 1 - yesBelief
	}
	prob := amm.CurrentPrice(m, side)
	return Signal{
		AgentID:    agentID,
		QuestionID: qid,
		Action:     action,
		Side:       side,
		Confidence: conf,
		MarketProb: prob,
		Edge:       conf - prob,
		Strategy:   c.Name(),
		Reason:     reason,
	}
}

// Confidence returns the agent's belief that the outcome is YES: the
// strength-weighted average of direction-signed clue strengths, mapped from
// [-1, 1] onto [0, 1].
func Confidence(clues []domain.Clue) float64 {
	var num, den float64
	for _, c := range clues {
		dir := -1.0
		if c.PointsToward {
			dir = 1
		}
		num += c.Strength * dir * c.Strength
		den += c.Strength
	}
	if den == 0 {
		return 0.5
	}
	return 0.5 + 0.5*num/den
}
