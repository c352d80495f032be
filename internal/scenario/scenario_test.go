package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonnyspicer/mango"

	"predictsim/internal/question"
	"predictsim/internal/simerr"
)

const testCatalogue = `
actors: [Dana Whitfield, Omar Reyes]
organizations: [Helios Labs]
scenarios:
  - id: launch
    title: the Helios satellite launch
    outcome_hint: true
  - id: merger
    title: the Northwind merger
    actors: [Priya Natarajan]
`

func TestParse_MergesSharedLists(t *testing.T) {
	c, err := Parse([]byte(testCatalogue))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Scenarios) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(c.Scenarios))
	}
	launch := c.Scenarios[0]
	if launch.OutcomeHint == nil || !*launch.OutcomeHint {
		t.Error("expected outcome_hint true on launch")
	}
	if len(launch.Actors) != 2 || launch.Organizations[0] != "Helios Labs" {
		t.Errorf("expected shared lists merged, got %+v", launch)
	}
	merger := c.Scenarios[1]
	if merger.OutcomeHint != nil {
		t.Error("expected no outcome hint on merger")
	}
	if len(merger.Actors) != 1 || merger.Actors[0] != "Priya Natarajan" {
		t.Errorf("expected own actors kept, got %v", merger.Actors)
	}
}

func TestParse_RejectsBadEntries(t *testing.T) {
	bad := `
scenarios:
  - id: a
    title: first
  - id: a
    title: again
  - title: no id
`
	_, err := Parse([]byte(bad))
	if !errors.Is(err, ErrInvalidCatalogue) {
		t.Fatalf("expected ErrInvalidCatalogue, got %v", err)
	}
	if !errors.Is(err, simerr.ErrValidation) {
		t.Error("expected a validation error")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(testCatalogue), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := FileSource{Path: path}.Scenarios(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 scenarios, got %d", len(list))
	}

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}).Scenarios(context.Background()); err == nil {
		t.Error("expected error for a missing file")
	}
}

type countingSource struct {
	calls int
	err   error
	list  []question.Scenario
}

func (s *countingSource) Scenarios(context.Context) ([]question.Scenario, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func TestCache_ServesWithinTTL(t *testing.T) {
	src := &countingSource{list: []question.Scenario{{ID: "a", Title: "A"}}}
	c := NewCache(src, time.Minute)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Scenarios(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if src.calls != 1 {
		t.Errorf("expected 1 fetch within TTL, got %d", src.calls)
	}

	now = now.Add(2 * time.Minute)
	c.Scenarios(context.Background())
	if src.calls != 2 {
		t.Errorf("expected refresh after TTL, got %d fetches", src.calls)
	}

	c.Invalidate()
	c.Scenarios(context.Background())
	if src.calls != 3 {
		t.Errorf("expected refresh after Invalidate, got %d fetches", src.calls)
	}
}

func TestCache_ServesStaleOnFailure(t *testing.T) {
	src := &countingSource{list: []question.Scenario{{ID: "a", Title: "A"}}}
	c := NewCache(src, time.Minute)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Scenarios(context.Background())
	src.err = errors.New("api down")
	now = now.Add(time.Hour)

	list, err := c.Scenarios(context.Background())
	if err != nil {
		t.Fatalf("expected stale list, got %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 stale scenario, got %d", len(list))
	}
}

func TestCache_FailsWithoutStaleList(t *testing.T) {
	c := NewCache(&countingSource{err: errors.New("api down")}, time.Minute)
	if _, err := c.Scenarios(context.Background()); err == nil {
		t.Error("expected error with nothing cached")
	}
}

func TestMulti_SkipsFailingSource(t *testing.T) {
	m := Multi{
		&countingSource{err: errors.New("down")},
		Static{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}},
		Static{{ID: "a", Title: "A again"}},
	}
	list, err := m.Scenarios(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 distinct scenarios, got %d", len(list))
	}

	if _, err := (Multi{&countingSource{err: errors.New("down")}}).Scenarios(context.Background()); err == nil {
		t.Error("expected error when every source fails")
	}
}

type stubSearcher struct {
	req     mango.SearchMarketsRequest
	markets []mango.FullMarket
	err     error
}

func (s *stubSearcher) SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &s.markets, nil
}

func TestManifoldSource_ConvertsOpenBinaryMarkets(t *testing.T) {
	stub := &stubSearcher{markets: []mango.FullMarket{
		{Id: "m1", Question: "Will the bridge reopen by June?", Url: "https://manifold.markets/x/bridge"},
		{Id: "m2", Question: "Resolved already?", IsResolved: true},
		{Id: "m3", Question: "  "},
	}}
	src := &ManifoldSource{client: stub, limit: 25}

	list, err := src.Scenarios(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stub.req.ContractType != "BINARY" || stub.req.Filter != "open" || stub.req.Limit != 25 {
		t.Errorf("unexpected request %+v", stub.req)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(list))
	}
	if list[0].ID != "manifold:m1" || list[0].Title != "Will the bridge reopen by June" {
		t.Errorf("unexpected scenario %+v", list[0])
	}
}

func TestManifoldSource_WrapsErrors(t *testing.T) {
	src := &ManifoldSource{client: &stubSearcher{err: errors.New("429")}, limit: 10}
	if _, err := src.Scenarios(context.Background()); !errors.Is(err, simerr.ErrCollaborator) {
		t.Errorf("expected collaborator error, got %v", err)
	}
}
