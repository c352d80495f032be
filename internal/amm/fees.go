package amm

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"predictsim/internal/simerr"
)

var ErrInvalidFee = fmt.Errorf("%w: fee rate must be in [0, 1)", simerr.ErrValidation)

// FeeConfig controls trading fees.
type FeeConfig struct {
	Rate          float64 // fraction of the input (buy) or proceeds (sell)
	PlatformShare float64 // platform's fraction when a referrer is present
	MinFee        float64 // referrer portions below this fold into the platform share
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{Rate: 0.02, PlatformShare: 0.5, MinFee: 0.01}
}

func (c FeeConfig) validate() error {
	if c.Rate < 0 || c.Rate >= 1 || math.IsNaN(c.Rate) {
		return ErrInvalidFee
	}
	if c.PlatformShare < 0 || c.PlatformShare > 1 {
		return fmt.Errorf("%w: platform share must be in [0, 1]", simerr.ErrValidation)
	}
	return nil
}

// FeeSplit is a fee broken down by recipient.
type FeeSplit struct {
	Total    float64 `json:"total"`
	Platform float64 `json:"platform"`
	Referrer float64 `json:"referrer"`
}

// Split divides total between platform and referrer.
func (c FeeConfig) Split(total float64, hasReferrer bool) FeeSplit {
	split := FeeSplit{Total: total, Platform: total}
	if !hasReferrer || total < c.MinFee {
		return split
	}
	referrer := total * (1 - c.PlatformShare)
	if referrer < c.MinFee {
		return split
	}
	split.Referrer = referrer
	split.Platform = total - referrer
	return split
}

// FeeBuyQuote is a buy priced after deducting the fee from the input.
type FeeBuyQuote struct {
	BuyQuote
	Gross float64  `json:"gross"`
	Fee   FeeSplit `json:"fee"`
}

// FeeSellQuote is a sell with the fee deducted from the proceeds.
type FeeSellQuote struct {
	SellQuote
	NetProceeds float64  `json:"netProceeds"`
	Fee         FeeSplit `json:"fee"`
}

// QuoteBuyWithFees deducts the fee from usd and swaps the remainder.
func QuoteBuyWithFees(m Market, side Side, usd float64, cfg FeeConfig, hasReferrer bool) (FeeBuyQuote, error) {
	if err := cfg.validate(); err != nil {
		return FeeBuyQuote{}, fmt.Errorf("quoting buy with fees: %w", err)
	}
	if !positiveFinite(usd) {
		return FeeBuyQuote{}, fmt.Errorf("quoting buy with fees of %v: %w", usd, ErrInvalidAmount)
	}

	fee := usd * cfg.Rate
	q, err := QuoteBuy(m, side, usd-fee)
	if err != nil {
		return FeeBuyQuote{}, err
	}
	return FeeBuyQuote{BuyQuote: q, Gross: usd, Fee: cfg.Split(fee, hasReferrer)}, nil
}

// QuoteSellWithFees sells shares and deducts the fee from the proceeds.
func QuoteSellWithFees(m Market, side Side, shares float64, cfg FeeConfig, hasReferrer bool) (FeeSellQuote, error) {
	if err := cfg.validate(); err != nil {
		return FeeSellQuote{}, fmt.Errorf("quoting sell with fees: %w", err)
	}

	q, err := QuoteSell(m, side, shares)
	if err != nil {
		return FeeSellQuote{}, err
	}
	fee := q.Proceeds * cfg.Rate
	return FeeSellQuote{SellQuote: q, NetProceeds: q.Proceeds - fee, Fee: cfg.Split(fee, hasReferrer)}, nil
}

// Round rounds v half-away-from-zero to places decimals. It is for reporting
// only; pricing math never rounds intermediate values.
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
