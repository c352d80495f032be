package game

import (
	"context"
	"errors"
	"math"
	"testing"

	"predictsim/internal/amm"
	"predictsim/internal/config"
	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/question"
	"predictsim/internal/sim"
	"predictsim/internal/simerr"
)

func newTestRunner() *Runner {
	cfg := config.DefaultConfig()
	cfg.Agents.DecisionWorkers = 2
	return NewRunner(cfg, sim.Deps{})
}

func newTestGameConfig(outcome bool) GameConfig {
	return GameConfig{Outcome: outcome, NumAgents: 10, Duration: 30, InsiderPercentage: 0.3}
}

func TestRunCompleteGame_EventOrdering(t *testing.T) {
	res, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Events) < 3 {
		t.Fatalf("expected a full event log, got %d events", len(res.Events))
	}
	if res.Events[0].Type() != event.GameStarted {
		t.Errorf("expected game:started first, got %s", res.Events[0].Type())
	}
	last := res.Events[len(res.Events)-1]
	if last.Type() != event.GameEnded {
		t.Errorf("expected game:ended last, got %s", last.Type())
	}
	if got := len(event.Filter(res.Events, event.DayChanged)); got != 30 {
		t.Errorf("expected 30 day:changed events, got %d", got)
	}
	prev := 0
	for _, e := range res.Events {
		if e.Day < prev {
			t.Fatalf("event day went backwards: %d after %d", e.Day, prev)
		}
		prev = e.Day
	}
}

func TestRunCompleteGame_ResolvesToConfiguredOutcome(t *testing.T) {
	for _, outcome := range []bool{true, false} {
		res, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(outcome))
		if err != nil {
			t.Fatal(err)
		}
		revealed := event.Filter(res.Events, event.OutcomeRevealed)
		if len(revealed) != 1 {
			t.Fatalf("expected one outcome:revealed, got %d", len(revealed))
		}
		if p := revealed[0].Payload.(event.OutcomeRevealedPayload); p.Outcome != outcome {
			t.Errorf("expected revealed outcome %v, got %v", outcome, p.Outcome)
		}
		if revealed[0].Day != 29 {
			t.Errorf("expected resolution on the last day, got day %d", revealed[0].Day)
		}
		if len(res.Outcomes) != 1 || res.Outcomes[0].Outcome != string(amm.SideOf(outcome)) {
			t.Errorf("unexpected outcomes %+v", res.Outcomes)
		}
	}
}

func TestRunCompleteGame_PriceMovesTowardTruth(t *testing.T) {
	yes, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	if p := yes.Outcomes[0].FinalProbability; p <= 0.5 {
		t.Errorf("expected YES game to end above 0.5, got %f", p)
	}

	no, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(false))
	if err != nil {
		t.Fatal(err)
	}
	if p := no.Outcomes[0].FinalProbability; p >= 0.5 {
		t.Errorf("expected NO game to end below 0.5, got %f", p)
	}
}

func TestRunCompleteGame_InsidersHearFirst(t *testing.T) {
	res, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	roles := make(map[string]string)
	for _, a := range res.Agents {
		roles[a.ID] = string(a.Role)
	}
	first := map[string]int{"insider": -1, "outsider": -1}
	for _, e := range event.Filter(res.Events, event.ClueDistributed) {
		p := e.Payload.(event.ClueDistributedPayload)
		if !p.PointsToward {
			t.Fatal("expected every clue to point toward YES")
		}
		if r := roles[p.AgentID]; first[r] < 0 {
			first[r] = e.Day
		}
	}
	if first["insider"] != 0 {
		t.Errorf("expected insiders to hear on day 0, got %d", first["insider"])
	}
	if first["outsider"] <= first["insider"] {
		t.Errorf("expected outsiders after insiders, got %d", first["outsider"])
	}
}

func TestRunCompleteGame_WinnersHoldWinningSide(t *testing.T) {
	res, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	held := make(map[string]bool)
	for _, a := range res.Agents {
		if p, ok := a.Positions[1]; ok && p.Side == amm.Yes && p.Shares > 0 {
			held[a.ID] = true
		}
	}
	if len(res.Winners) == 0 {
		t.Fatal("expected some winners")
	}
	for _, w := range res.Winners {
		if !held[w] {
			t.Errorf("winner %s holds no YES shares", w)
		}
	}
	ended := event.Filter(res.Events, event.GameEnded)[0].Payload.(event.GameEndedPayload)
	if len(ended.Winners) != len(res.Winners) {
		t.Error("game:ended winners differ from result")
	}
}

func TestRunCompleteGame_QuestionOverride(t *testing.T) {
	gc := newTestGameConfig(true)
	gc.Question = "Will the festival sell out?"
	gc.StartDate = "2025-10-15"
	res, err := newTestRunner().RunCompleteGame(context.Background(), gc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Question != gc.Question || res.Outcomes[0].Question != gc.Question {
		t.Errorf("expected question override, got %q", res.Question)
	}
	started := res.Events[0].Payload.(event.GameStartedPayload)
	if started.ID != res.ID.String() || started.Question != gc.Question {
		t.Errorf("unexpected game:started payload %+v", started)
	}
	if res.StartDate != "2025-10-15" {
		t.Errorf("expected start date override, got %s", res.StartDate)
	}
}

func TestRunCompleteGame_RejectsBadConfig(t *testing.T) {
	bad := []GameConfig{
		{NumAgents: 0, Duration: 30, InsiderPercentage: 0.3},
		{NumAgents: 10, Duration: 2, InsiderPercentage: 0.3},
		{NumAgents: 10, Duration: 30, InsiderPercentage: 1.5},
	}
	for _, gc := range bad {
		_, err := newTestRunner().RunCompleteGame(context.Background(), gc)
		if !errors.Is(err, ErrInvalidGame) || !errors.Is(err, simerr.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", gc, err)
		}
	}
}

func TestRunCompleteGame_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestRunner().RunCompleteGame(ctx, newTestGameConfig(true)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOutcomes_RoundsProbability(t *testing.T) {
	m := amm.Market{YesShares: 1300.4, NoShares: 699.6}
	yes := true
	out := Outcomes(
		[]question.Question{{ID: 1, Text: "q", Status: question.Resolved, ResolvedOutcome: &yes}},
		map[uint64]amm.Market{1: m},
		2,
	)
	if out[0].FinalProbability != 0.65 || out[0].Outcome != OutcomeYes {
		t.Errorf("unexpected outcome %+v", out[0])
	}
}

func TestOutcomes_Unresolved(t *testing.T) {
	m, _ := amm.InitializeMarket(1000)
	out := Outcomes(
		[]question.Question{{ID: 1, Text: "open", Status: question.Active}, {ID: 2, Text: "no market"}},
		map[uint64]amm.Market{1: m},
		4,
	)
	if len(out) != 1 || out[0].Outcome != OutcomeUnresolved || out[0].FinalProbability != 0.5 {
		t.Errorf("unexpected outcomes %+v", out)
	}
}

// failOncePersistence rejects the first append that carries an
// outcome:revealed event, then accepts everything.
type failOncePersistence struct {
	failed bool
	stored []event.Event
}

func (p *failOncePersistence) AppendEvents(_ context.Context, _ string, events []event.Event) error {
	if !p.failed && len(event.Filter(events, event.OutcomeRevealed)) > 0 {
		p.failed = true
		return errors.New("database is locked")
	}
	p.stored = append(p.stored, events...)
	return nil
}

func (p *failOncePersistence) SaveSnapshot(context.Context, sim.State) error { return nil }

func TestRunCompleteGame_FinalDayWriteFailureKeepsLog(t *testing.T) {
	p := &failOncePersistence{}
	cfg := config.DefaultConfig()
	cfg.Agents.DecisionWorkers = 2
	gc := newTestGameConfig(true)
	gc.Duration = 5

	res, err := NewRunner(cfg, sim.Deps{Persistence: p}).RunCompleteGame(context.Background(), gc)
	if err != nil {
		t.Fatal(err)
	}
	if !p.failed {
		t.Fatal("expected the final day's write to fail once")
	}
	if len(p.stored) != len(res.Events) {
		t.Fatalf("expected %d persisted events, got %d", len(res.Events), len(p.stored))
	}
	for i := range res.Events {
		if p.stored[i].Type() != res.Events[i].Type() || p.stored[i].Day != res.Events[i].Day {
			t.Fatalf("event %d: persisted %s on day %d, expected %s on day %d",
				i, p.stored[i].Type(), p.stored[i].Day, res.Events[i].Type(), res.Events[i].Day)
		}
	}
	if len(event.Filter(p.stored, event.OutcomeRevealed)) != 1 {
		t.Error("expected outcome:revealed to be persisted")
	}
}

func TestRunCompleteGame_RecordsTrajectories(t *testing.T) {
	res, err := newTestRunner().RunCompleteGame(context.Background(), newTestGameConfig(true))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trajectories) != len(res.Agents) {
		t.Fatalf("expected %d trajectories, got %d", len(res.Agents), len(res.Trajectories))
	}

	trades, posts := 0, 0
	for i, tr := range res.Trajectories {
		a := res.Agents[i]
		if tr.AgentID != a.ID || tr.Role != a.Role {
			t.Fatalf("trajectory %d belongs to %s, expected %s", i, tr.AgentID, a.ID)
		}
		if len(tr.Steps) != 30 {
			t.Fatalf("%s: expected 30 steps, got %d", tr.AgentID, len(tr.Steps))
		}
		var reward float64
		for day, s := range tr.Steps {
			if s.Day != day || s.Step != day {
				t.Fatalf("%s: step %d recorded for day %d", tr.AgentID, s.Step, s.Day)
			}
			if s.Action.Trades == 0 && s.Action.Type != ActionHold {
				t.Errorf("%s day %d: expected hold, got %s", tr.AgentID, day, s.Action.Type)
			}
			reward += s.Reward
		}
		last := tr.Steps[len(tr.Steps)-1]
		if last.Environment.OpenPositions != 0 || last.Environment.ActiveMarkets != 0 {
			t.Errorf("%s: expected everything settled on the last day, got %+v", tr.AgentID, last.Environment)
		}
		if math.Abs(tr.FinalPnL-(a.Balance-a.StartingBalance)) > 1e-3 {
			t.Errorf("%s: final pnl %f does not match balance change", tr.AgentID, tr.FinalPnL)
		}
		if math.Abs(reward-tr.FinalPnL) > 1e-2 {
			t.Errorf("%s: rewards sum to %f, final pnl %f", tr.AgentID, reward, tr.FinalPnL)
		}
		trades += tr.TradesExecuted
		posts += tr.PostsCreated
	}
	if want := len(event.Filter(res.Events, event.AgentBet)); trades != want {
		t.Errorf("expected %d trades across trajectories, got %d", want, trades)
	}
	if want := len(event.Filter(res.Events, event.AgentPost)); posts != want {
		t.Errorf("expected %d posts across trajectories, got %d", want, posts)
	}

	s := res.PnL
	if s.AgentCount != 10 || s.TotalActions != trades+posts {
		t.Errorf("unexpected pnl stats %+v", s)
	}
	if s.Min > s.Avg || s.Avg > s.Max {
		t.Errorf("expected min <= avg <= max, got %+v", s)
	}
}

func TestRecorder_ActionsAndReward(t *testing.T) {
	agents := []domain.Agent{
		{ID: "agent-001", Role: domain.Insider, Balance: 960, StartingBalance: 1000, Positions: map[uint64]*domain.Position{
			1: {QuestionID: 1, Side: amm.Yes, Shares: 100, CostBasis: 40},
		}},
		{ID: "agent-002", Role: domain.Outsider, Balance: 1000, StartingBalance: 1000, Positions: map[uint64]*domain.Position{}},
		{ID: "agent-003", Role: domain.Outsider, Balance: 1000, StartingBalance: 1000, Positions: map[uint64]*domain.Position{}},
	}
	st, err := sim.NewState("g", 1, "2025-10-01", agents)
	if err != nil {
		t.Fatal(err)
	}
	st.Questions = []question.Question{{ID: 1, Status: question.Active, CreatedDate: "2025-10-01", ResolutionDate: "2025-10-05"}}
	st.Markets[1] = amm.Market{YesShares: 1000, NoShares: 1000}

	events := []event.Event{
		{Payload: event.AgentBetPayload{AgentID: "agent-001", Bet: event.Bet{QuestionID: 1, Action: "buy", Amount: 20}}},
		{Payload: event.AgentBetPayload{AgentID: "agent-001", Bet: event.Bet{QuestionID: 1, Action: "buy", Amount: 20}}},
		{Payload: event.AgentPostPayload{AgentID: "agent-001", Post: "YES looks cheap"}},
		{Payload: event.AgentBetPayload{AgentID: "agent-002", Bet: event.Bet{QuestionID: 1, Action: "buy", Amount: 5}}},
		{Payload: event.AgentBetPayload{AgentID: "agent-002", Bet: event.Bet{QuestionID: 1, Action: "sell", Amount: 5}}},
	}

	rec := newRecorder(st.Agents, 4)
	rec.record(0, st, events)
	rec.record(1, st, nil)
	trajs := rec.trajectories()

	first := trajs[0].Steps[0]
	if first.Action.Type != "buy" || first.Action.Trades != 2 || first.Action.Amount != 40 || first.Action.Posts != 1 {
		t.Errorf("unexpected insider action %+v", first.Action)
	}
	// 960 cash plus 100 YES shares at 0.5.
	if first.Environment.PnL != 10 || first.Reward != 10 {
		t.Errorf("expected pnl and reward 10, got %+v", first)
	}
	if first.Environment.OpenPositions != 1 || first.Environment.ActiveMarkets != 1 {
		t.Errorf("unexpected environment %+v", first.Environment)
	}
	if next := trajs[0].Steps[1]; next.Reward != 0 || next.Action.Type != ActionHold {
		t.Errorf("expected an idle second day, got %+v", next)
	}
	if got := trajs[1].Steps[0].Action.Type; got != "mixed" {
		t.Errorf("expected mixed action, got %s", got)
	}
	if got := trajs[2].Steps[0].Action.Type; got != ActionHold {
		t.Errorf("expected hold, got %s", got)
	}
	if trajs[0].TradesExecuted != 2 || trajs[0].PostsCreated != 1 || trajs[1].TradesExecuted != 2 {
		t.Errorf("unexpected counts %d/%d/%d", trajs[0].TradesExecuted, trajs[0].PostsCreated, trajs[1].TradesExecuted)
	}
}

func TestStats(t *testing.T) {
	if s := Stats(nil); s != (PnLStats{}) {
		t.Errorf("expected zero stats for no agents, got %+v", s)
	}
	s := Stats([]Trajectory{
		{FinalPnL: 30, TradesExecuted: 2, PostsCreated: 1},
		{FinalPnL: -60, TradesExecuted: 1},
		{FinalPnL: 0},
	})
	if s.AgentCount != 3 || s.TotalActions != 4 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Avg != -10 || s.Min != -60 || s.Max != 30 {
		t.Errorf("expected avg -10 in [-60, 30], got %+v", s)
	}
}
