package question

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"predictsim/internal/config"
)

// CreationParams is everything CreateQuestions draws from.
type CreationParams struct {
	Date          string
	Scenarios     []Scenario
	Actors        []string
	Organizations []string
	Active        []Question
	RecentEvents  []string
	NextID        uint64
}

// CreationResult is the outcome of one creation call. An empty Questions
// slice is a successful result; Reason says why nothing was produced.
type CreationResult struct {
	Questions []Question
	NextID    uint64
	Reason    string
}

const (
	ReasonAtCapacity = "at capacity"
	ReasonNoneDrawn  = "none drawn"
	ReasonBadDate    = "invalid date"
	ReasonDuplicate  = "duplicate question text"
)

// Manager creates questions. It holds no question state of its own.
type Manager struct {
	cfg      config.QuestionsConfig
	narrator Narrator
	fallback TemplateNarrator
}

// NewManager returns a Manager. A nil narrator uses the template narrator.
func NewManager(cfg config.QuestionsConfig, narrator Narrator) *Manager {
	if narrator == nil {
		narrator = TemplateNarrator{}
	}
	if cfg.MaxActive <= 0 || cfg.MaxActive > MaxActive {
		cfg.MaxActive = MaxActive
	}
	return &Manager{cfg: cfg, narrator: narrator}
}

// CreateQuestions produces between MinPerCall and MaxPerCall new questions,
// never letting the active count exceed the cap. It never fails: problems
// yield an empty result with a reason and leave NextID untouched.
func (m *Manager) CreateQuestions(ctx context.Context, p CreationParams, rng *rand.Rand) CreationResult {
	empty := func(reason string) CreationResult {
		return CreationResult{NextID: p.NextID, Reason: reason}
	}

	if _, err := ParseDate(p.Date); err != nil {
		slog.Warn("question creation skipped", "date", p.Date, "error", err)
		return empty(ReasonBadDate)
	}

	active := len(ActiveOnly(p.Active))
	room := m.cfg.MaxActive - active
	if room <= 0 {
		return empty(ReasonAtCapacity)
	}

	lo, hi := m.cfg.MinPerCall, max(m.cfg.MaxPerCall, m.cfg.MinPerCall)
	count := min(lo+rng.IntN(hi-lo+1), room)
	if count <= 0 {
		return empty(ReasonNoneDrawn)
	}

	seen := make(map[string]bool, active+count)
	existing := make([]string, 0, active+count)
	for _, q := range ActiveOnly(p.Active) {
		seen[Normalize(q.Text)] = true
		existing = append(existing, q.Text)
	}

	nextID := p.NextID
	drafts := make([]Question, 0, count)
	for i := 0; i < count; i++ {
		q, ok := m.draft(ctx, p, rng, nextID, existing, seen)
		if !ok {
			slog.Warn("question creation abandoned", "reason", ReasonDuplicate, "date", p.Date)
			return empty(ReasonDuplicate)
		}
		seen[Normalize(q.Text)] = true
		existing = append(existing, q.Text)
		drafts = append(drafts, q)
		nextID++
	}

	return CreationResult{Questions: drafts, NextID: nextID}
}

func (m *Manager) draft(ctx context.Context, p CreationParams, rng *rand.Rand, id uint64, existing []string, seen map[string]bool) (Question, bool) {
	var sc Scenario
	if len(p.Scenarios) > 0 {
		sc = p.Scenarios[rng.IntN(len(p.Scenarios))]
	}

	lo := max(m.cfg.MinResolutionDays, 0)
	hi := max(m.cfg.MaxResolutionDays, lo)
	requested := lo + rng.IntN(hi-lo+1)
	resolution, err := ResolutionDate(p.Date, requested)
	if err != nil {
		return Question{}, false
	}

	outcome := rng.IntN(2) == 0
	if sc.OutcomeHint != nil {
		outcome = *sc.OutcomeHint
	}

	req := TextRequest{
		Date:           p.Date,
		ResolutionDate: resolution,
		Scenario:       sc,
		Actor:          pick(rng, append(append([]string(nil), sc.Actors...), p.Actors...)),
		Organization:   pick(rng, append(append([]string(nil), sc.Organizations...), p.Organizations...)),
		Existing:       existing,
		RecentEvents:   p.RecentEvents,
		Variant:        int(id),
	}

	text, err := m.narrator.GenerateQuestionText(ctx, req)
	if err != nil || text == "" {
		if err != nil {
			slog.Warn("narrator failed, using template", "question", id, "error", err)
		}
		text, _ = m.fallback.GenerateQuestionText(ctx, req)
	}
	if seen[Normalize(text)] {
		req.Variant++
		text, _ = m.fallback.GenerateQuestionText(ctx, req)
		if seen[Normalize(text)] {
			return Question{}, false
		}
	}

	return Question{
		ID:                   id,
		Text:                 text,
		Status:               Active,
		ScenarioID:           sc.ID,
		CreatedDate:          p.Date,
		ResolutionDate:       resolution,
		PredeterminedOutcome: outcome,
	}, true
}

// ResolutionProof returns narrative text for a resolution, falling back to
// the template when the narrator fails.
func (m *Manager) ResolutionProof(ctx context.Context, q Question, outcome bool) string {
	text, err := m.narrator.GenerateResolutionProof(ctx, q, outcome)
	if err == nil && text != "" {
		return text
	}
	if err != nil {
		slog.Warn("narrator failed on resolution proof, using template", "question", q.ID, "error", err)
	}
	text, _ = m.fallback.GenerateResolutionProof(ctx, q, outcome)
	return text
}

func pick(rng *rand.Rand, xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[rng.IntN(len(xs))]
}
