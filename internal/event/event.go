// Package event defines the typed, append-only record of everything a
// simulation does.
package event

import (
	"encoding/json"
	"fmt"

	"predictsim/internal/amm"
	"predictsim/internal/domain"
	"predictsim/internal/simerr"
)

// Type names an event variant on the wire.
type Type string

const (
	GameStarted     Type = "game:started"
	DayChanged      Type = "day:changed"
	ClueDistributed Type = "clue:distributed"
	AgentBet        Type = "agent:bet"
	AgentPost       Type = "agent:post"
	AgentDM         Type = "agent:dm"
	MarketUpdated   Type = "market:updated"
	OutcomeRevealed Type = "outcome:revealed"
	GameEnded       Type = "game:ended"
)

// Types lists every variant in declaration order.
var Types = []Type{
	GameStarted, DayChanged, ClueDistributed, AgentBet, AgentPost,
	AgentDM, MarketUpdated, OutcomeRevealed, GameEnded,
}

var ErrUnknownType = fmt.Errorf("%w: unknown event type", simerr.ErrValidation)

// Payload is implemented only by the payload types in this package.
type Payload interface {
	EventType() Type
	sealed()
}

type GameStartedPayload struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

type DayChangedPayload struct {
	Day  int    `json:"day"`
	Date string `json:"date,omitempty"`
}

type ClueDistributedPayload struct {
	AgentID      string      `json:"agentId"`
	Clue         domain.Clue `json:"clue"`
	PointsToward bool        `json:"pointsToward"`
}

// Bet is the trade carried by an agent:bet event.
type Bet struct {
	QuestionID uint64  `json:"questionId"`
	Action     string  `json:"action"`
	Amount     float64 `json:"amount"`
	Shares     float64 `json:"shares"`
	Price      float64 `json:"price"`
	Fee        float64 `json:"fee"`
}

type AgentBetPayload struct {
	AgentID  string   `json:"agentId"`
	Bet      Bet      `json:"bet"`
	Position amm.Side `json:"position"`
}

type AgentPostPayload struct {
	AgentID    string `json:"agentId"`
	Post       string `json:"post"`
	QuestionID uint64 `json:"questionId,omitempty"`
}

type AgentDMPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

type MarketUpdatedPayload struct {
	QuestionID     uint64  `json:"questionId"`
	YesShares      float64 `json:"yesShares"`
	NoShares       float64 `json:"noShares"`
	FeeAccumulator float64 `json:"feeAccumulator"`
	YesPrice       float64 `json:"yesPrice"`
}

// MarketUpdate builds the payload for market m of question id. The price is
// rounded to places; the pools stay exact so the log replays the market.
func MarketUpdate(id uint64, m amm.Market, places int32) MarketUpdatedPayload {
	return MarketUpdatedPayload{
		QuestionID:     id,
		YesShares:      m.YesShares,
		NoShares:       m.NoShares,
		FeeAccumulator: m.FeeAccumulator,
		YesPrice:       amm.Round(amm.CurrentPrice(m, amm.Yes), places),
	}
}

func (p MarketUpdatedPayload) Market() amm.Market {
	return amm.Market{YesShares: p.YesShares, NoShares: p.NoShares, FeeAccumulator: p.FeeAccumulator}
}

type OutcomeRevealedPayload struct {
	QuestionID uint64 `json:"questionId"`
	Outcome    bool   `json:"outcome"`
	Proof      string `json:"proof,omitempty"`
}

type GameEndedPayload struct {
	Outcome bool     `json:"outcome"`
	Winners []string `json:"winners"`
}

func (GameStartedPayload) EventType() Type     { return GameStarted }
func (DayChangedPayload) EventType() Type      { return DayChanged }
func (ClueDistributedPayload) EventType() Type { return ClueDistributed }
func (AgentBetPayload) EventType() Type        { return AgentBet }
func (AgentPostPayload) EventType() Type       { return AgentPost }
func (AgentDMPayload) EventType() Type         { return AgentDM }
func (MarketUpdatedPayload) EventType() Type   { return MarketUpdated }
func (OutcomeRevealedPayload) EventType() Type { return OutcomeRevealed }
func (GameEndedPayload) EventType() Type       { return GameEnded }

func (GameStartedPayload) sealed()     {}
func (DayChangedPayload) sealed()      {}
func (ClueDistributedPayload) sealed() {}
func (AgentBetPayload) sealed()        {}
func (AgentPostPayload) sealed()       {}
func (AgentDMPayload) sealed()         {}
func (MarketUpdatedPayload) sealed()   {}
func (OutcomeRevealedPayload) sealed() {}
func (GameEndedPayload) sealed()       {}

// Event is one immutable log entry.
type Event struct {
	Day     int
	Payload Payload
}

func (e Event) Type() Type { return e.Payload.EventType() }

type wireEvent struct {
	Type    Type            `json:"type"`
	Day     int             `json:"day"`
	Payload json.RawMessage `json:"payload"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("marshaling event on day %d: nil payload", e.Day)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", e.Type(), err)
	}
	return json.Marshal(wireEvent{Type: e.Type(), Day: e.Day, Payload: payload})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding event: %w", err)
	}
	p, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	e.Day = w.Day
	e.Payload = p
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case GameStarted:
		return decodeAs[GameStartedPayload](t, raw)
	case DayChanged:
		return decodeAs[DayChangedPayload](t, raw)
	case ClueDistributed:
		return decodeAs[ClueDistributedPayload](t, raw)
	case AgentBet:
		return decodeAs[AgentBetPayload](t, raw)
	case AgentPost:
		return decodeAs[AgentPostPayload](t, raw)
	case AgentDM:
		return decodeAs[AgentDMPayload](t, raw)
	case MarketUpdated:
		return decodeAs[MarketUpdatedPayload](t, raw)
	case OutcomeRevealed:
		return decodeAs[OutcomeRevealedPayload](t, raw)
	case GameEnded:
		return decodeAs[GameEndedPayload](t, raw)
	}
	return nil, fmt.Errorf("decoding %q: %w", t, ErrUnknownType)
}

func decodeAs[P Payload](t Type, raw json.RawMessage) (Payload, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return p, nil
}
