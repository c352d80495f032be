// Package agent builds the trading population.
package agent

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/brianvoe/gofakeit"

	"predictsim/internal/config"
	"predictsim/internal/domain"
)

// NewRoster creates cfg.Count agents, the first round(Count*InsiderPct) of
// them insiders. Display names come from gofakeit seeded from rng, so a roster
// is reproducible for a given seed.
func NewRoster(cfg config.AgentsConfig, rng *rand.Rand) []domain.Agent {
	if cfg.Count <= 0 {
		return nil
	}
	insiders := InsiderCount(cfg.Count, cfg.InsiderPct)

	gofakeit.Seed(rng.Int64())

	agents := make([]domain.Agent, cfg.Count)
	for i := range agents {
		role := domain.Outsider
		if i < insiders {
			role = domain.Insider
		}
		threshold := cfg.RiskThresholdMin
		if span := cfg.RiskThresholdMax - cfg.RiskThresholdMin; span > 0 {
			threshold += rng.Float64() * span
		}
		agents[i] = domain.Agent{
			ID:              ID(i + 1),
			Name:            gofakeit.Name(),
			Role:            role,
			Balance:         cfg.StartingBalance,
			StartingBalance: cfg.StartingBalance,
			RiskThreshold:   threshold,
			Positions:       make(map[uint64]*domain.Position),
		}
	}
	return agents
}

// InsiderCount is the number of insiders in a roster of n.
func InsiderCount(n int, pct float64) int {
	k := int(math.Round(float64(n) * pct))
	return min(max(k, 0), n)
}

func ID(n int) string {
	return fmt.Sprintf("agent-%03d", n)
}

// ByRole splits a roster into insiders and outsiders, preserving order.
func ByRole(agents []domain.Agent) (insiders, outsiders []domain.Agent) {
	for _, a := range agents {
		if a.Role == domain.Insider {
			insiders = append(insiders, a)
		} else {
			outsiders = append(outsiders, a)
		}
	}
	return insiders, outsiders
}
