// Package amm implements constant-product pricing for binary YES/NO markets.
//
// Every function is pure: a Market goes in, quotes and new Market values come
// out. Buying a side adds the spent amount to that side's pool and rebalances
// the other pool so that k = YesShares * NoShares never decreases. The buyer
// receives the newly minted shares plus the shares released by the other
// pool, so the price of the bought side always rises.
package amm

import (
	"fmt"
	"math"
	"strings"

	"predictsim/internal/simerr"
)

// DefaultLiquidity seeds both pools of a new market.
const DefaultLiquidity = 1000.0

// MinReserveRatio is the smallest allowed ratio between the thinner and the
// thicker pool. Trades that would cross it are rejected, which keeps
// CurrentPrice strictly inside (0, 1).
const MinReserveRatio = 1e-6

var (
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive and finite", simerr.ErrValidation)
	ErrInvalidSide   = fmt.Errorf("%w: side must be YES or NO", simerr.ErrValidation)
	ErrInvalidMarket = fmt.Errorf("%w: market pools must be positive", simerr.ErrValidation)
	ErrPoolDrained   = fmt.Errorf("%w: trade would drain a pool", simerr.ErrInvariant)
)

// Side is a binary outcome.
type Side string

const (
	Yes Side = "YES"
	No  Side = "NO"
)

// ParseSide accepts "yes"/"no" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Yes):
		return Yes, nil
	case string(No):
		return No, nil
	}
	return "", fmt.Errorf("parsing side %q: %w", s, ErrInvalidSide)
}

// SideOf maps an outcome to the side that wins under it.
func SideOf(outcome bool) Side {
	if outcome {
		return Yes
	}
	return No
}

func (s Side) Valid() bool { return s == Yes || s == No }

func (s Side) Opposite() Side {
	if s == Yes {
		return No
	}
	return Yes
}

// Market holds the two outcome pools and the fees collected on them.
type Market struct {
	YesShares      float64 `json:"yesShares"`
	NoShares       float64 `json:"noShares"`
	FeeAccumulator float64 `json:"feeAccumulator"`
}

// InitializeMarket seeds both pools with liquidity, giving a 50/50 price.
func InitializeMarket(liquidity float64) (Market, error) {
	if !positiveFinite(liquidity) {
		return Market{}, fmt.Errorf("initializing market with %v: %w", liquidity, ErrInvalidAmount)
	}
	return Market{YesShares: liquidity, NoShares: liquidity}, nil
}

// Invariant returns k = YesShares * NoShares.
func Invariant(m Market) float64 {
	return m.YesShares * m.NoShares
}

// CurrentPrice returns the probability-price of side. An invalid side yields 0.
func CurrentPrice(m Market, side Side) float64 {
	total := m.YesShares + m.NoShares
	if total <= 0 {
		return 0
	}
	yes := m.YesShares / total
	switch side {
	case Yes:
		return yes
	case No:
		return 1 - yes
	}
	return 0
}

// Validate checks that both pools are positive and finite.
func Validate(m Market) error {
	if !positiveFinite(m.YesShares) || !positiveFinite(m.NoShares) {
		return ErrInvalidMarket
	}
	return nil
}

// BuyQuote describes the outcome of spending Amount on Side.
type BuyQuote struct {
	Side        Side    `json:"side"`
	Amount      float64 `json:"amount"`
	SharesOut   float64 `json:"sharesOut"`
	NewYes      float64 `json:"newYes"`
	NewNo       float64 `json:"newNo"`
	AvgPrice    float64 `json:"avgPrice"`
	PriceImpact float64 `json:"priceImpact"`
}

// SellQuote describes the outcome of selling Shares of Side.
type SellQuote struct {
	Side        Side    `json:"side"`
	Shares      float64 `json:"shares"`
	Proceeds    float64 `json:"proceeds"`
	NewYes      float64 `json:"newYes"`
	NewNo       float64 `json:"newNo"`
	AvgPrice    float64 `json:"avgPrice"`
	PriceImpact float64 `json:"priceImpact"`
}

// QuoteBuy prices spending usd on side.
func QuoteBuy(m Market, side Side, usd float64) (BuyQuote, error) {
	if !side.Valid() {
		return BuyQuote{}, fmt.Errorf("quoting buy: %w", ErrInvalidSide)
	}
	if !positiveFinite(usd) {
		return BuyQuote{}, fmt.Errorf("quoting buy of %v: %w", usd, ErrInvalidAmount)
	}
	if err := Validate(m); err != nil {
		return BuyQuote{}, fmt.Errorf("quoting buy: %w", err)
	}

	k := Invariant(m)
	var newYes, newNo, released float64
	if side == Yes {
		newYes = m.YesShares + usd
		newNo = rebalance(newYes, k)
		released = m.NoShares - newNo
	} else {
		newNo = m.NoShares + usd
		newYes = rebalance(newNo, k)
		released = m.YesShares - newYes
	}
	if drained(newYes, newNo) {
		return BuyQuote{}, fmt.Errorf("quoting buy of %v %s: %w", usd, side, ErrPoolDrained)
	}

	shares := usd + released
	after := Market{YesShares: newYes, NoShares: newNo}
	return BuyQuote{
		Side:        side,
		Amount:      usd,
		SharesOut:   shares,
		NewYes:      newYes,
		NewNo:       newNo,
		AvgPrice:    usd / shares,
		PriceImpact: CurrentPrice(after, side) - CurrentPrice(m, side),
	}, nil
}

// QuoteSell prices selling shares of side back to the pool. It only checks
// pool-level feasibility; whether the seller owns the shares is the caller's
// concern.
func QuoteSell(m Market, side Side, shares float64) (SellQuote, error) {
	if !side.Valid() {
		return SellQuote{}, fmt.Errorf("quoting sell: %w", ErrInvalidSide)
	}
	if !positiveFinite(shares) {
		return SellQuote{}, fmt.Errorf("quoting sell of %v shares: %w", shares, ErrInvalidAmount)
	}
	if err := Validate(m); err != nil {
		return SellQuote{}, fmt.Errorf("quoting sell: %w", err)
	}

	// Inverse of the buy: removing p from pool A and rebalancing pool B must
	// burn exactly `shares`, i.e. (shares + B - p)(A - p) = k. The smaller
	// root in its cancellation-free form.
	k := Invariant(m)
	a, b := m.YesShares, m.NoShares
	if side == No {
		a, b = b, a
	}
	sum := shares + b
	proceeds := 2 * shares * a / ((sum + a) + math.Sqrt((sum-a)*(sum-a)+4*k))

	newA := a - proceeds
	if !positiveFinite(newA) {
		return SellQuote{}, fmt.Errorf("quoting sell of %v %s: %w", shares, side, ErrPoolDrained)
	}
	newB := rebalance(newA, k)

	newYes, newNo := newA, newB
	if side == No {
		newYes, newNo = newB, newA
	}
	if drained(newYes, newNo) {
		return SellQuote{}, fmt.Errorf("quoting sell of %v %s: %w", shares, side, ErrPoolDrained)
	}

	after := Market{YesShares: newYes, NoShares: newNo}
	return SellQuote{
		Side:        side,
		Shares:      shares,
		Proceeds:    proceeds,
		NewYes:      newYes,
		NewNo:       newNo,
		AvgPrice:    proceeds / shares,
		PriceImpact: CurrentPrice(after, side) - CurrentPrice(m, side),
	}, nil
}

// ApplyBuy returns the market after q, crediting fee to the accumulator.
func ApplyBuy(m Market, q BuyQuote, fee float64) Market {
	return Market{YesShares: q.NewYes, NoShares: q.NewNo, FeeAccumulator: m.FeeAccumulator + fee}
}

// ApplySell returns the market after q, crediting fee to the accumulator.
func ApplySell(m Market, q SellQuote, fee float64) Market {
	return Market{YesShares: q.NewYes, NoShares: q.NewNo, FeeAccumulator: m.FeeAccumulator + fee}
}

// rebalance returns the smallest pool size b with a*b >= k, so rounding can
// only ever grow the invariant.
func rebalance(a, k float64) float64 {
	b := k / a
	for a*b < k {
		b = math.Nextafter(b, math.Inf(1))
	}
	return b
}

func drained(yes, no float64) bool {
	if !positiveFinite(yes) || !positiveFinite(no) {
		return true
	}
	return math.Min(yes, no)/math.Max(yes, no) < MinReserveRatio
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
