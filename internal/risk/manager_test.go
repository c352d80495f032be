package risk

import (
	"math"
	"testing"

	"predictsim/internal/amm"
	"predictsim/internal/config"
	"predictsim/internal/decision"
	"predictsim/internal/domain"
)

func newTestManager() *Manager {
	return NewManager(config.RiskConfig{
		KellyFraction:  0.25,
		MaxPositionPct: 0.2,
		MinBetAmount:   1.0,
		MinEdge:        0.05,
	})
}

func newTestAgent(balance float64) domain.Agent {
	return domain.Agent{
		ID:              "agent-001",
		Balance:         balance,
		StartingBalance: 1000,
		Positions:       map[uint64]*domain.Position{},
	}
}

func buySignal(qid uint64, conf, prob float64) decision.Signal {
	return decision.Signal{
		AgentID:    "agent-001",
		QuestionID: qid,
		Action:     decision.Buy,
		Side:       amm.Yes,
		Confidence: conf,
		MarketProb: prob,
		Edge:       conf - prob,
	}
}

func TestSizeSignals_RejectsLowEdge(t *testing.T) {
	sized := newTestManager().SizeSignals(newTestAgent(1000), []decision.Signal{buySignal(1, 0.52, 0.50)})
	if len(sized) != 0 {
		t.Errorf("expected 0 sized signals for low edge, got %d", len(sized))
	}
}

func TestSizeSignals_FractionalKelly(t *testing.T) {
	sized := newTestManager().SizeSignals(newTestAgent(1000), []decision.Signal{buySignal(1, 0.70, 0.50)})
	if len(sized) != 1 {
		t.Fatalf("expected 1 sized signal, got %d", len(sized))
	}
	// b = 1, f* = 0.4, quarter Kelly of 1000 = 100.
	if math.Abs(sized[0].Amount-100) > 1e-9 {
		t.Errorf("expected amount 100, got %f", sized[0].Amount)
	}
}

func TestSizeSignals_CapsAtMaxPosition(t *testing.T) {
	sized := newTestManager().SizeSignals(newTestAgent(1000), []decision.Signal{buySignal(1, 0.99, 0.10)})
	if len(sized) != 1 {
		t.Fatalf("expected 1 sized signal, got %d", len(sized))
	}
	if sized[0].Amount > 200 {
		t.Errorf("expected amount <= 200 (20%% of starting balance), got %f", sized[0].Amount)
	}
}

func TestSizeSignals_CountsExistingCostBasis(t *testing.T) {
	a := newTestAgent(1000)
	a.Positions[1] = &domain.Position{QuestionID: 1, Side: amm.Yes, Shares: 300, CostBasis: 190}

	sized := newTestManager().SizeSignals(a, []decision.Signal{buySignal(1, 0.90, 0.50), buySignal(2, 0.90, 0.50)})
	var q1, q2 float64
	for _, s := range sized {
		if s.Signal.QuestionID == 1 {
			q1 = s.Amount
		} else {
			q2 = s.Amount
		}
	}
	if q1 > 10+1e-9 {
		t.Errorf("expected question 1 capped to the remaining 10, got %f", q1)
	}
	if q2 <= q1 {
		t.Errorf("expected uncapped question 2 to size larger, got %f vs %f", q2, q1)
	}
}

func TestSizeSignals_NeverExceedsBalance(t *testing.T) {
	sized := newTestManager().SizeSignals(newTestAgent(30), []decision.Signal{
		buySignal(1, 0.95, 0.20),
		buySignal(2, 0.95, 0.20),
		buySignal(3, 0.95, 0.20),
	})
	var total float64
	for _, s := range sized {
		total += s.Amount
	}
	if total > 30+1e-9 {
		t.Errorf("expected total sized <= balance 30, got %f", total)
	}
}

func TestSizeSignals_SellsFullPosition(t *testing.T) {
	a := newTestAgent(0)
	a.Positions[1] = &domain.Position{QuestionID: 1, Side: amm.No, Shares: 42, CostBasis: 20}

	sig := decision.Signal{AgentID: a.ID, QuestionID: 1, Action: decision.Sell, Side: amm.No}
	sized := newTestManager().SizeSignals(a, []decision.Signal{sig})
	if len(sized) != 1 || sized[0].Shares != 42 {
		t.Fatalf("expected full 42-share sell, got %+v", sized)
	}

	sig.Side = amm.Yes
	if sized := newTestManager().SizeSignals(a, []decision.Signal{sig}); len(sized) != 0 {
		t.Error("expected sell of an unheld side to be dropped")
	}
}

func TestPortfolioOf_MarksToMarket(t *testing.T) {
	a := newTestAgent(500)
	a.Positions[1] = &domain.Position{QuestionID: 1, Side: amm.Yes, Shares: 100}
	a.Positions[2] = &domain.Position{QuestionID: 2, Side: amm.No, Shares: 50, Closed: true}

	m, _ := amm.InitializeMarket(1000)
	p := PortfolioOf(a, map[uint64]amm.Market{1: m, 2: m})
	if p.InvestmentValue != 50 {
		t.Errorf("expected investment value 50, got %f", p.InvestmentValue)
	}
	if p.TotalValue != 550 {
		t.Errorf("expected total 550, got %f", p.TotalValue)
	}
}
