package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonnyspicer/mango"

	"predictsim/internal/question"
	"predictsim/internal/simerr"
)

// marketSearcher is the slice of *mango.Client the importer uses.
type marketSearcher interface {
	SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error)
}

// ManifoldSource turns open binary Manifold markets into seed scenarios.
type ManifoldSource struct {
	client marketSearcher
	limit  int64
}

func NewManifoldSource(client *mango.Client, limit int64) *ManifoldSource {
	return &ManifoldSource{client: client, limit: limit}
}

// Scenarios fetches the most liquid open binary markets.
func (s *ManifoldSource) Scenarios(ctx context.Context) ([]question.Scenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	markets, err := s.client.SearchMarkets(mango.SearchMarketsRequest{
		Filter:       "open",
		ContractType: "BINARY",
		Sort:         "liquidity",
		Limit:        s.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: searching manifold markets: %w", simerr.ErrCollaborator, err)
	}
	if markets == nil {
		return nil, nil
	}

	result := make([]question.Scenario, 0, len(*markets))
	for _, m := range *markets {
		if m.IsResolved || strings.TrimSpace(m.Question) == "" {
			continue
		}
		result = append(result, fullMarketToScenario(m))
	}
	slog.Info("imported manifold scenarios", "count", len(result))
	return result, nil
}

func fullMarketToScenario(m mango.FullMarket) question.Scenario {
	return question.Scenario{
		ID:          "manifold:" + m.Id,
		Title:       strings.TrimSuffix(strings.TrimSpace(m.Question), "?"),
		Description: m.Url,
	}
}
