// Package question owns the lifecycle of prediction questions: creation under
// an active-question cap, due-date filtering and resolution.
package question

import (
	"fmt"
	"math"
	"time"

	"predictsim/internal/simerr"
)

// DateLayout is the calendar format used for every question date.
const DateLayout = "2006-01-02"

const (
	// MaxActive is the system-wide cap on simultaneously active questions.
	MaxActive = 20

	MinResolutionDays = 1
	MaxResolutionDays = 7

	// NoResolutionDate is returned by DaysUntilResolution for a question
	// without a resolution date. Well-formed questions never produce it.
	NoResolutionDate = 999
)

var ErrInvalidDate = fmt.Errorf("%w: date must be YYYY-MM-DD", simerr.ErrValidation)

// Status is a question's lifecycle state. Resolved and Cancelled are terminal.
type Status string

const (
	Active    Status = "active"
	Resolved  Status = "resolved"
	Cancelled Status = "cancelled"
)

// Question is a binary prediction question with a bounded trading window.
type Question struct {
	ID              uint64 `json:"id"`
	Text            string `json:"text"`
	Status          Status `json:"status"`
	ScenarioID      string `json:"scenarioId"`
	CreatedDate     string `json:"createdDate"`
	ResolutionDate  string `json:"resolutionDate"`
	ResolvedOutcome *bool  `json:"resolvedOutcome,omitempty"`

	// PredeterminedOutcome is the hidden truth. It is never serialized;
	// persistence stores it in its own column.
	PredeterminedOutcome bool `json:"-"`
}

// PublicQuestion is the externally visible view of a question.
type PublicQuestion struct {
	ID              uint64 `json:"id"`
	Text            string `json:"text"`
	Status          Status `json:"status"`
	CreatedDate     string `json:"createdDate"`
	ResolutionDate  string `json:"resolutionDate"`
	ResolvedOutcome *bool  `json:"resolvedOutcome,omitempty"`
}

func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:              q.ID,
		Text:            q.Text,
		Status:          q.Status,
		CreatedDate:     q.CreatedDate,
		ResolutionDate:  q.ResolutionDate,
		ResolvedOutcome: q.ResolvedOutcome,
	}
}

func (q Question) IsActive() bool { return q.Status == Active }

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, ErrInvalidDate)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// AddDays returns date shifted by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, n)), nil
}

// ClampDays clamps a requested resolution window into [1, 7] days.
func ClampDays(requested int) int {
	return min(max(requested, MinResolutionDays), MaxResolutionDays)
}

// ResolutionDate returns createdDate plus the clamped requested window.
func ResolutionDate(createdDate string, requestedDays int) (string, error) {
	return AddDays(createdDate, ClampDays(requestedDays))
}

// DueForResolution returns every active question whose resolution date is on
// or before currentDate.
func DueForResolution(active []Question, currentDate string) []Question {
	var due []Question
	for _, q := range active {
		if !q.IsActive() || q.ResolutionDate == "" {
			continue
		}
		// Fixed-width ISO dates compare correctly as strings.
		if q.ResolutionDate <= currentDate {
			due = append(due, q)
		}
	}
	return due
}

// Resolve returns q marked Resolved with outcome. A question that is not
// active is returned unchanged, so the outcome is only ever set once.
func Resolve(q Question, outcome bool) Question {
	if !q.IsActive() {
		return q
	}
	q.Status = Resolved
	q.ResolvedOutcome = &outcome
	return q
}

// Cancel returns q marked Cancelled. A question that is not active is
// returned unchanged.
func Cancel(q Question) Question {
	if !q.IsActive() {
		return q
	}
	q.Status = Cancelled
	return q
}

// DaysUntilResolution returns the whole days left until q resolves, floored
// at zero.
func DaysUntilResolution(q Question, currentDate string) int {
	if q.ResolutionDate == "" {
		return NoResolutionDate
	}
	end, err := ParseDate(q.ResolutionDate)
	if err != nil {
		return NoResolutionDate
	}
	now, err := ParseDate(currentDate)
	if err != nil {
		return NoResolutionDate
	}
	days := math.Ceil(end.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}

// Window returns the length in days of q's trading window.
func Window(q Question) int {
	start, err := ParseDate(q.CreatedDate)
	if err != nil {
		return 0
	}
	end, err := ParseDate(q.ResolutionDate)
	if err != nil {
		return 0
	}
	return int(math.Round(end.Sub(start).Hours() / 24))
}

// ActiveOnly filters qs down to the active questions.
func ActiveOnly(qs []Question) []Question {
	var out []Question
	for _, q := range qs {
		if q.IsActive() {
			out = append(out, q)
		}
	}
	return out
}
