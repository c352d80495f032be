// Package execution applies sized trade intents to markets and agent
// positions, one at a time.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"predictsim/internal/amm"
	"predictsim/internal/decision"
	"predictsim/internal/domain"
	"predictsim/internal/risk"
	"predictsim/internal/simerr"
)

var (
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", simerr.ErrCapacity)
	ErrInsufficientShares  = fmt.Errorf("%w: insufficient shares", simerr.ErrCapacity)
	ErrMarketClosed        = fmt.Errorf("%w: market is not open", simerr.ErrCapacity)
	ErrNoEdge              = fmt.Errorf("%w: edge gone at live price", simerr.ErrCapacity)
	ErrOppositePosition    = fmt.Errorf("%w: agent holds the opposite side", simerr.ErrCapacity)
)

// Book is the shared market state trades are applied against.
type Book struct {
	Markets map[uint64]amm.Market
	Open    map[uint64]bool
}

// Fill records one applied trade.
type Fill struct {
	AgentID    string          `json:"agentId"`
	QuestionID uint64          `json:"questionId"`
	Action     decision.Action `json:"action"`
	Side       amm.Side        `json:"side"`
	Amount     float64         `json:"amount"` // gross spent on buys, net received on sells
	Shares     float64         `json:"shares"`
	Price      float64         `json:"price"`
	Fee        amm.FeeSplit    `json:"fee"`
	Market     amm.Market      `json:"-"`
}

// Rounded returns a copy of f with its amounts rounded for reporting.
func (f Fill) Rounded(places int32) Fill {
	f.Amount = amm.Round(f.Amount, places)
	f.Shares = amm.Round(f.Shares, places)
	f.Price = amm.Round(f.Price, places)
	f.Fee = amm.FeeSplit{
		Total:    amm.Round(f.Fee.Total, places),
		Platform: amm.Round(f.Fee.Platform, places),
		Referrer: amm.Round(f.Fee.Referrer, places),
	}
	return f
}

// Executor is the single point through which trades mutate a Book. Apply
// holds a lock for the whole quote-check-mutate sequence, so every trade
// sees the full price impact of the one before it.
type Executor struct {
	mu   sync.Mutex
	fees amm.FeeConfig
}

func NewExecutor(fees amm.FeeConfig) *Executor {
	return &Executor{fees: fees}
}

// ExecutionResult records what happened when a signal was executed.
type ExecutionResult struct {
	Signal risk.SizedSignal
	Fill   Fill
	Error  error
}

func (r ExecutionResult) Success() bool { return r.Error == nil }

// Apply executes one sized signal for agent a against book. On error
// neither the book nor the agent is modified.
func (e *Executor) Apply(book *Book, a *domain.Agent, sig risk.SizedSignal) ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		fill Fill
		err  error
	)
	qid := sig.Signal.QuestionID
	m, ok := book.Markets[qid]
	if !ok || !book.Open[qid] {
		err = ErrMarketClosed
	} else if sig.Signal.Action == decision.Sell {
		fill, err = e.sell(m, a, sig)
	} else {
		fill, err = e.buy(m, a, sig)
	}

	if err != nil {
		level := slog.LevelInfo
		if errors.Is(err, simerr.ErrInvariant) || !simerr.Recoverable(err) {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "trade skipped",
			"agent", a.ID,
			"question", qid,
			"action", sig.Signal.Action,
			"side", sig.Signal.Side,
			"kind", simerr.KindOf(err),
			"error", err,
		)
		return ExecutionResult{Signal: sig, Error: err}
	}

	book.Markets[qid] = fill.Market
	return ExecutionResult{Signal: sig, Fill: fill}
}

func (e *Executor) buy(m amm.Market, a *domain.Agent, sig risk.SizedSignal) (Fill, error) {
	side := sig.Signal.Side
	if sig.Signal.Confidence <= amm.CurrentPrice(m, side) {
		return Fill{}, ErrNoEdge
	}
	if sig.Amount > a.Balance {
		return Fill{}, fmt.Errorf("buying %.2f with %.2f: %w", sig.Amount, a.Balance, ErrInsufficientBalance)
	}
	pos := a.Positions[sig.Signal.QuestionID]
	if pos != nil && !pos.Closed && pos.Shares > 0 && pos.Side != side {
		return Fill{}, ErrOppositePosition
	}

	q, err := amm.QuoteBuyWithFees(m, side, sig.Amount, e.fees, false)
	if err != nil {
		return Fill{}, err
	}
	next := amm.ApplyBuy(m, q.BuyQuote, q.Fee.Total)
	if amm.Invariant(next) < amm.Invariant(m) {
		return Fill{}, amm.ErrPoolDrained
	}

	a.Balance -= sig.Amount
	if pos == nil || pos.Closed || pos.Shares <= 0 {
		pos = &domain.Position{QuestionID: sig.Signal.QuestionID, Side: side}
		if a.Positions == nil {
			a.Positions = make(map[uint64]*domain.Position)
		}
		a.Positions[sig.Signal.QuestionID] = pos
	}
	pos.Shares += q.SharesOut
	pos.CostBasis += sig.Amount

	return Fill{
		AgentID:    a.ID,
		QuestionID: sig.Signal.QuestionID,
		Action:     decision.Buy,
		Side:       side,
		Amount:     sig.Amount,
		Shares:     q.SharesOut,
		Price:      q.AvgPrice,
		Fee:        q.Fee,
		Market:     next,
	}, nil
}

func (e *Executor) sell(m amm.Market, a *domain.Agent, sig risk.SizedSignal) (Fill, error) {
	side := sig.Signal.Side
	pos, ok := a.OpenPosition(sig.Signal.QuestionID)
	if !ok || pos.Side != side || sig.Shares > pos.Shares {
		return Fill{}, ErrInsufficientShares
	}

	q, err := amm.QuoteSellWithFees(m, side, sig.Shares, e.fees, false)
	if err != nil {
		return Fill{}, err
	}
	next := amm.ApplySell(m, q.SellQuote, q.Fee.Total)
	if amm.Invariant(next) < amm.Invariant(m) {
		return Fill{}, amm.ErrPoolDrained
	}

	a.Balance += q.NetProceeds
	remaining := pos.Shares - sig.Shares
	if remaining <= 0 {
		pos.Shares, pos.CostBasis = 0, 0
	} else {
		pos.CostBasis *= remaining / pos.Shares
		pos.Shares = remaining
	}

	return Fill{
		AgentID:    a.ID,
		QuestionID: sig.Signal.QuestionID,
		Action:     decision.Sell,
		Side:       side,
		Amount:     q.NetProceeds,
		Shares:     sig.Shares,
		Price:      q.AvgPrice,
		Fee:        q.Fee,
		Market:     next,
	}, nil
}
