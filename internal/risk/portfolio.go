package risk

import (
	"predictsim/internal/amm"
	"predictsim/internal/domain"
)

// Portfolio is an agent's balance and mark-to-market investment value.
type Portfolio struct {
	AgentID         string
	Balance         float64
	InvestmentValue float64
	TotalValue      float64
}

// PortfolioOf marks an agent's open positions at current market prices.
func PortfolioOf(a domain.Agent, markets map[uint64]amm.Market) Portfolio {
	p := Portfolio{AgentID: a.ID, Balance: a.Balance}
	for _, id := range domain.SortedQuestionIDs(a.Positions) {
		pos, ok := a.OpenPosition(id)
		if !ok {
			continue
		}
		m, ok := markets[id]
		if !ok {
			continue
		}
		p.InvestmentValue += pos.Shares * amm.CurrentPrice(m, pos.Side)
	}
	p.TotalValue = p.Balance + p.InvestmentValue
	return p
}
