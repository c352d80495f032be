// Package disclosure schedules the clues agents receive about a question's
// hidden outcome. Insiders hear first and louder; outsiders only start
// hearing once a third of the window has passed.
package disclosure

import (
	"fmt"

	"predictsim/internal/config"
	"predictsim/internal/domain"
	"predictsim/internal/question"
)

// Band is a third of a question's trading window.
type Band int

const (
	Early Band = iota
	Mid
	Late
)

func (b Band) String() string {
	switch b {
	case Early:
		return "early"
	case Mid:
		return "mid"
	}
	return "late"
}

// Timeline positions a day inside a trading window.
type Timeline struct {
	Window    int // total days from creation to resolution
	DaysUntil int // days left until resolution
}

// TimelineFor derives the timeline of q on date.
func TimelineFor(q question.Question, date string) Timeline {
	return Timeline{Window: question.Window(q), DaysUntil: question.DaysUntilResolution(q, date)}
}

// Elapsed returns the days since the window opened.
func (t Timeline) Elapsed() int {
	return max(t.Window-min(t.DaysUntil, t.Window), 0)
}

// Progress returns how far through the window the timeline is, in [0, 1].
func (t Timeline) Progress() float64 {
	if t.Window <= 0 {
		return 1
	}
	return float64(t.Elapsed()) / float64(t.Window)
}

func (t Timeline) Band() Band {
	if t.Window <= 0 {
		return Late
	}
	e := t.Elapsed()
	switch {
	case 3*e < t.Window:
		return Early
	case 3*e < 2*t.Window:
		return Mid
	}
	return Late
}

// Model computes clues. It is a pure function of its inputs and never reads
// agent balances or positions.
type Model struct {
	cfg config.DisclosureConfig
}

func NewModel(cfg config.DisclosureConfig) *Model {
	cfg.InsiderEveryDays = max(cfg.InsiderEveryDays, 1)
	cfg.OutsiderEveryDays = max(cfg.OutsiderEveryDays, 1)
	return &Model{cfg: cfg}
}

// Strength returns the clue strength a role would receive at timeline t, and
// false when the role is not yet eligible.
func (m *Model) Strength(t Timeline, role domain.Role) (float64, bool) {
	p := t.Progress()
	if role == domain.Insider {
		return clamp01(m.cfg.InsiderFloor + (1-m.cfg.InsiderFloor)*p), true
	}

	switch t.Band() {
	case Early:
		return 0, false
	case Mid:
		f := 3*p - 1
		return clamp01(m.cfg.OutsiderFloor + (m.cfg.OutsiderMidCeiling-m.cfg.OutsiderFloor)*f), true
	}
	f := 3*p - 2
	s := clamp01(m.cfg.OutsiderMidCeiling + (1-m.cfg.OutsiderMidCeiling)*f)
	// Windows too short for a mid band still open outsiders at the mid ceiling.
	if t.Elapsed() == m.outsiderStart(t.Window) {
		s = min(s, m.cfg.OutsiderMidCeiling)
	}
	return s, true
}

// ClueFor returns the clue role receives about q on the given day, if any.
// The clue always points toward the hidden outcome.
func (m *Model) ClueFor(q question.Question, t Timeline, day int, role domain.Role) (domain.Clue, bool) {
	if !q.IsActive() {
		return domain.Clue{}, false
	}
	strength, ok := m.Strength(t, role)
	if !ok || !m.onCadence(t, role) {
		return domain.Clue{}, false
	}

	return domain.Clue{
		QuestionID:   q.ID,
		Content:      content(q, strength),
		Strength:     strength,
		PointsToward: q.PredeterminedOutcome,
		RevealDay:    day,
	}, true
}

// FirstClueDay returns the first elapsed day on which role receives a clue
// in a window of the given length, or -1 if it never does.
func (m *Model) FirstClueDay(window int, role domain.Role) int {
	q := question.Question{Status: question.Active}
	for e := 0; e <= window; e++ {
		t := Timeline{Window: window, DaysUntil: window - e}
		if _, ok := m.ClueFor(q, t, e, role); ok {
			return e
		}
	}
	return -1
}

func (m *Model) onCadence(t Timeline, role domain.Role) bool {
	if role == domain.Insider {
		return t.Elapsed()%m.cfg.InsiderEveryDays == 0
	}
	start := m.outsiderStart(t.Window)
	return (t.Elapsed()-start)%m.cfg.OutsiderEveryDays == 0
}

// outsiderStart is the first elapsed day inside the mid band.
func (m *Model) outsiderStart(window int) int {
	for e := 0; e <= window; e++ {
		if (Timeline{Window: window, DaysUntil: window - e}).Band() != Early {
			return e
		}
	}
	return window
}

func content(q question.Question, strength float64) string {
	side := "NO"
	if q.PredeterminedOutcome {
		side = "YES"
	}
	switch {
	case strength >= 0.8:
		return fmt.Sprintf("Confirmed from multiple sources: %q is heading for %s.", q.Text, side)
	case strength >= 0.5:
		return fmt.Sprintf("People close to the matter lean %s on %q.", side, q.Text)
	}
	return fmt.Sprintf("Faint rumours hint at %s on %q.", side, q.Text)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
