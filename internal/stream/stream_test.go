package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"predictsim/internal/domain"
	"predictsim/internal/event"
	"predictsim/internal/simerr"
)

type stubAdder struct {
	added  []*redis.XAddArgs
	failAt int
}

func (s *stubAdder) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	s.added = append(s.added, a)
	if s.failAt > 0 && len(s.added) == s.failAt {
		return redis.NewStringResult("", errors.New("connection reset"))
	}
	return redis.NewStringResult("1-0", nil)
}

func newTestPublisher(rdb streamAdder) *Publisher {
	return &Publisher{rdb: rdb, stream: "predictsim:test", maxLen: 100}
}

func TestPublish_AddsOneEntryPerEvent(t *testing.T) {
	stub := &stubAdder{}
	p := newTestPublisher(stub)

	events := []event.Event{
		{Day: 3, Payload: event.DayChangedPayload{Day: 3, Date: "2025-10-04"}},
		{Day: 3, Payload: event.AgentPostPayload{AgentID: "agent-002", Post: "hmm", QuestionID: 1}},
	}
	if err := p.Publish(context.Background(), "g1", events); err != nil {
		t.Fatal(err)
	}
	if len(stub.added) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(stub.added))
	}

	first := stub.added[0]
	if first.Stream != "predictsim:test" || first.MaxLen != 100 || !first.Approx {
		t.Errorf("unexpected stream args %+v", first)
	}
	values := first.Values.(map[string]interface{})
	if values["game"] != "g1" || values["type"] != string(event.DayChanged) || values["day"] != 3 {
		t.Errorf("unexpected values %v", values)
	}
	if stub.added[1].Values.(map[string]interface{})["type"] != string(event.AgentPost) {
		t.Error("expected events in order")
	}
}

func TestPublish_HoldsBackClues(t *testing.T) {
	stub := &stubAdder{}
	p := newTestPublisher(stub)

	events := []event.Event{
		{Day: 2, Payload: event.ClueDistributedPayload{AgentID: "agent-001", Clue: domain.Clue{QuestionID: 1, Strength: 0.8, PointsToward: true}, PointsToward: true}},
		{Day: 2, Payload: event.DayChangedPayload{Day: 2, Date: "2025-10-03"}},
	}
	if err := p.Publish(context.Background(), "g1", events); err != nil {
		t.Fatal(err)
	}
	if len(stub.added) != 1 {
		t.Fatalf("expected only the day change published, got %d entries", len(stub.added))
	}
	if typ := stub.added[0].Values.(map[string]interface{})["type"]; typ != string(event.DayChanged) {
		t.Errorf("expected day:changed, got %v", typ)
	}
}

func TestPublish_StopsOnFailure(t *testing.T) {
	stub := &stubAdder{failAt: 1}
	p := newTestPublisher(stub)

	events := []event.Event{
		{Payload: event.DayChangedPayload{}},
		{Payload: event.DayChangedPayload{Day: 1}},
	}
	err := p.Publish(context.Background(), "g1", events)
	if !errors.Is(err, simerr.ErrCollaborator) {
		t.Errorf("expected collaborator error, got %v", err)
	}
	if len(stub.added) != 1 {
		t.Errorf("expected publishing to stop after the failure, got %d calls", len(stub.added))
	}
}
