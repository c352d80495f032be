package agent

import (
	"math/rand/v2"
	"testing"

	"predictsim/internal/config"
)

func newTestAgentsConfig() config.AgentsConfig {
	return config.AgentsConfig{
		Count:            10,
		InsiderPct:       0.3,
		StartingBalance:  1000,
		RiskThresholdMin: 0.05,
		RiskThresholdMax: 0.15,
	}
}

func TestNewRoster_SplitsRoles(t *testing.T) {
	agents := NewRoster(newTestAgentsConfig(), rand.New(rand.NewPCG(1, 1)))
	if len(agents) != 10 {
		t.Fatalf("expected 10 agents, got %d", len(agents))
	}
	insiders, outsiders := ByRole(agents)
	if len(insiders) != 3 || len(outsiders) != 7 {
		t.Errorf("expected 3/7 split, got %d/%d", len(insiders), len(outsiders))
	}
	if agents[0].ID != "agent-001" || agents[9].ID != "agent-010" {
		t.Errorf("unexpected ids %s..%s", agents[0].ID, agents[9].ID)
	}
}

func TestNewRoster_InitialState(t *testing.T) {
	for _, a := range NewRoster(newTestAgentsConfig(), rand.New(rand.NewPCG(2, 2))) {
		if a.Balance != 1000 || a.StartingBalance != 1000 {
			t.Errorf("%s: expected balance 1000, got %v", a.ID, a.Balance)
		}
		if a.RiskThreshold < 0.05 || a.RiskThreshold > 0.15 {
			t.Errorf("%s: threshold %v out of range", a.ID, a.RiskThreshold)
		}
		if a.Name == "" {
			t.Errorf("%s: expected a display name", a.ID)
		}
		if a.Positions == nil {
			t.Errorf("%s: expected an empty position map", a.ID)
		}
	}
}

func TestNewRoster_Reproducible(t *testing.T) {
	a := NewRoster(newTestAgentsConfig(), rand.New(rand.NewPCG(9, 9)))
	b := NewRoster(newTestAgentsConfig(), rand.New(rand.NewPCG(9, 9)))
	for i := range a {
		if a[i].Name != b[i].Name || a[i].RiskThreshold != b[i].RiskThreshold {
			t.Fatalf("agent %d differs between identical seeds", i)
		}
	}
}

func TestInsiderCount(t *testing.T) {
	cases := []struct {
		n    int
		pct  float64
		want int
	}{
		{10, 0.3, 3},
		{5, 0.5, 3},
		{4, 0, 0},
		{4, 1, 4},
		{3, 2, 3},
	}
	for _, c := range cases {
		if got := InsiderCount(c.n, c.pct); got != c.want {
			t.Errorf("InsiderCount(%d, %v) = %d, want %d", c.n, c.pct, got, c.want)
		}
	}
}
