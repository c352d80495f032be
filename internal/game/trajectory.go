package game

import (
	"predictsim/internal/amm"
	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/risk"
	"predictsim/internal/sim"
)

// ActionHold marks a day on which an agent made no trade.
const ActionHold = "hold"

// EnvironmentState is an agent's view of the game at the end of a day.
type EnvironmentState struct {
	Balance       float64 `json:"agentBalance"`
	PnL           float64 `json:"agentPnl"`
	OpenPositions int     `json:"openPositions"`
	ActiveMarkets int     `json:"activeMarkets"`
}

// Action is what an agent did on one day. Type is the action of its
// trades, "mixed" when it both bought and sold, or ActionHold.
type Action struct {
	Type   string  `json:"actionType"`
	Trades int     `json:"trades"`
	Amount float64 `json:"amount"`
	Posts  int     `json:"posts"`
}

type TrajectoryStep struct {
	Step        int              `json:"stepNumber"`
	Day         int              `json:"day"`
	Environment EnvironmentState `json:"environmentState"`
	Action      Action           `json:"action"`
	Reward      float64          `json:"reward"` // change in pnl over the day
}

// Trajectory is one agent's day-by-day record of a game.
type Trajectory struct {
	AgentID        string           `json:"agentId"`
	Role           domain.Role      `json:"role"`
	Steps          []TrajectoryStep `json:"steps"`
	TotalReward    float64          `json:"totalReward"`
	FinalPnL       float64          `json:"finalPnl"`
	FinalBalance   float64          `json:"finalBalance"`
	TradesExecuted int              `json:"tradesExecuted"`
	PostsCreated   int              `json:"postsCreated"`
}

// PnLStats summarizes final pnl across a game's agents.
type PnLStats struct {
	AgentCount   int     `json:"agentCount"`
	TotalActions int     `json:"totalActions"`
	Avg          float64 `json:"avgPnl"`
	Min          float64 `json:"minPnl"`
	Max          float64 `json:"maxPnl"`
}

// PnL is an agent's mark-to-market gain over its starting balance.
func PnL(a domain.Agent, markets map[uint64]amm.Market) float64 {
	return risk.PortfolioOf(a, markets).TotalValue - a.StartingBalance
}

// recorder builds trajectories from the state and events of each day.
type recorder struct {
	places  int32
	order   []string
	trajs   map[string]*Trajectory
	lastPnL map[string]float64
}

func newRecorder(agents []domain.Agent, places int32) *recorder {
	r := &recorder{
		places:  places,
		trajs:   make(map[string]*Trajectory, len(agents)),
		lastPnL: make(map[string]float64, len(agents)),
	}
	for _, a := range agents {
		r.order = append(r.order, a.ID)
		r.trajs[a.ID] = &Trajectory{AgentID: a.ID, Role: a.Role, Steps: []TrajectoryStep{}}
	}
	return r
}

// record appends one step per agent for day, given the state after the day
// ran and the events it produced.
func (r *recorder) record(day int, st sim.State, events []event.Event) {
	actions := make(map[string]*Action)
	actionOf := func(id string) *Action {
		a, ok := actions[id]
		if !ok {
			a = &Action{Type: ActionHold}
			actions[id] = a
		}
		return a
	}
	for _, e := range events {
		switch p := e.Payload.(type) {
		case event.AgentBetPayload:
			a := actionOf(p.AgentID)
			switch {
			case a.Trades == 0:
				a.Type = p.Bet.Action
			case a.Type != p.Bet.Action:
				a.Type = "mixed"
			}
			a.Trades++
			a.Amount += p.Bet.Amount
		case event.AgentPostPayload:
			actionOf(p.AgentID).Posts++
		}
	}

	active := len(st.Active())
	for _, ag := range st.Agents {
		t, ok := r.trajs[ag.ID]
		if !ok {
			continue
		}
		pnl := PnL(ag, st.Markets)
		open := 0
		for _, id := range domain.SortedQuestionIDs(ag.Positions) {
			if _, ok := ag.OpenPosition(id); ok {
				open++
			}
		}
		action := Action{Type: ActionHold}
		if a, ok := actions[ag.ID]; ok {
			action = *a
			action.Amount = amm.Round(action.Amount, r.places)
		}
		reward := pnl - r.lastPnL[ag.ID]
		r.lastPnL[ag.ID] = pnl

		t.Steps = append(t.Steps, TrajectoryStep{
			Step: len(t.Steps),
			Day:  day,
			Environment: EnvironmentState{
				Balance:       amm.Round(ag.Balance, r.places),
				PnL:           amm.Round(pnl, r.places),
				OpenPositions: open,
				ActiveMarkets: active,
			},
			Action: action,
			Reward: amm.Round(reward, r.places),
		})
		t.TradesExecuted += action.Trades
		t.PostsCreated += action.Posts
		t.FinalPnL = amm.Round(pnl, r.places)
		t.FinalBalance = amm.Round(ag.Balance, r.places)
		t.TotalReward = t.FinalPnL
	}
}

// trajectories returns the recorded trajectories in roster order.
func (r *recorder) trajectories() []Trajectory {
	out := make([]Trajectory, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.trajs[id])
	}
	return out
}

// Stats computes pnl statistics over trajs. An empty game reports zeros.
func Stats(trajs []Trajectory) PnLStats {
	s := PnLStats{AgentCount: len(trajs)}
	if len(trajs) == 0 {
		return s
	}
	s.Min, s.Max = trajs[0].FinalPnL, trajs[0].FinalPnL
	var sum float64
	for _, t := range trajs {
		s.TotalActions += t.TradesExecuted + t.PostsCreated
		sum += t.FinalPnL
		s.Min = min(s.Min, t.FinalPnL)
		s.Max = max(s.Max, t.FinalPnL)
	}
	s.Avg = sum / float64(len(trajs))
	return s
}
