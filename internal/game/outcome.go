package game

import (
	"predictsim/internal/amm"
	"predictsim/internal/question"
)

// Outcome labels used by the training export.
const (
	OutcomeYes        = "YES"
	OutcomeNo         = "NO"
	OutcomeUnresolved = "UNRESOLVED"
)

// MarketOutcome is one question's result in training-export form.
type MarketOutcome struct {
	QuestionID       uint64  `json:"questionId"`
	Question         string  `json:"question"`
	Outcome          string  `json:"outcome"`
	FinalProbability float64 `json:"finalProbability"`
}

// Outcomes summarizes every question with a market, in question order.
// Probabilities are rounded to places decimals.
func Outcomes(questions []question.Question, markets map[uint64]amm.Market, places int32) []MarketOutcome {
	out := make([]MarketOutcome, 0, len(questions))
	for _, q := range questions {
		m, ok := markets[q.ID]
		if !ok {
			continue
		}
		label := OutcomeUnresolved
		if q.Status == question.Resolved && q.ResolvedOutcome != nil {
			label = string(amm.SideOf(*q.ResolvedOutcome))
		}
		out = append(out, MarketOutcome{
			QuestionID:       q.ID,
			Question:         q.Text,
			Outcome:          label,
			FinalProbability: amm.Round(amm.CurrentPrice(m, amm.Yes), places),
		})
	}
	return out
}
