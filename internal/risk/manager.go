package risk

import (
	"log/slog"

	"predictsim/internal/config"
	"predictsim/internal/decision"
	"predictsim/internal/domain"
)

// Manager sizes trade intents so no agent over-leverages a single question.
type Manager struct {
	cfg config.RiskConfig
}

func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{cfg: cfg}
}

// SizedSignal is a Signal that has been approved and sized. Buys carry a
// dollar Amount; sells carry the Shares to sell.
type SizedSignal struct {
	Signal decision.Signal
	Amount float64
	Shares float64
}

// SizeSignals sizes an agent's signals against its balance and existing
// exposure. Rejected signals are dropped.
func (m *Manager) SizeSignals(a domain.Agent, signals []decision.Signal) []SizedSignal {
	if a.Balance <= 0 && !hasSell(signals) {
		return nil
	}

	// Budget committed within this pass, so two signals on the same question
	// cannot jointly exceed the cap.
	balance := a.Balance
	cycleExposure := make(map[uint64]float64)

	sized := make([]SizedSignal, 0, len(signals))
	for _, sig := range signals {
		if sig.Action == decision.Sell {
			if p, ok := a.OpenPosition(sig.QuestionID); ok && p.Side == sig.Side {
				sized = append(sized, SizedSignal{Signal: sig, Shares: p.Shares})
			}
			continue
		}

		amount := m.sizePosition(sig, balance)

		maxPosition := m.cfg.MaxPositionPct * a.StartingBalance
		existing := cycleExposure[sig.QuestionID]
		if p, ok := a.OpenPosition(sig.QuestionID); ok {
			existing += p.CostBasis
		}
		if remaining := maxPosition - existing; amount > remaining {
			amount = remaining
		}

		if amount >= m.cfg.MinBetAmount && amount > 0 {
			balance -= amount
			cycleExposure[sig.QuestionID] += amount
			sized = append(sized, SizedSignal{Signal: sig, Amount: amount})
		} else {
			slog.Debug("signal rejected by risk manager",
				"agent", sig.AgentID,
				"question", sig.QuestionID,
				"edge", sig.Edge,
				"confidence", sig.Confidence,
				"market_prob", sig.MarketProb,
				"side", sig.Side,
				"computed_amount", amount,
			)
		}
	}
	return sized
}

func (m *Manager) sizePosition(sig decision.Signal, balance float64) float64 {
	if sig.Edge < m.cfg.MinEdge || sig.Edge <= 0 {
		return 0
	}

	// Kelly criterion: f* = (bp - q) / b, with b the net odds paid by a
	// share bought at the side's price.
	price := sig.MarketProb
	if price <= 0 || price >= 1 {
		return 0
	}
	b := 1.0/price - 1.0
	p := sig.Confidence

	kellyFraction := (b*p - (1 - p)) / b
	if kellyFraction <= 0 {
		return 0
	}

	amount := kellyFraction * m.cfg.KellyFraction * balance
	if amount > balance {
		amount = balance
	}
	return amount
}

func hasSell(signals []decision.Signal) bool {
	for _, s := range signals {
		if s.Action == decision.Sell {
			return true
		}
	}
	return false
}
