package question

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Scenario is a storyline questions can be generated from.
type Scenario struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Description   string   `json:"description" yaml:"description"`
	Actors        []string `json:"actors" yaml:"actors"`
	Organizations []string `json:"organizations" yaml:"organizations"`
	// OutcomeHint pins the hidden outcome of questions drawn from this
	// scenario. Nil means the outcome is drawn at random.
	OutcomeHint *bool `json:"outcomeHint,omitempty" yaml:"outcome_hint,omitempty"`
}

// TextRequest is the context handed to a Narrator for one question.
type TextRequest struct {
	Date           string
	ResolutionDate string
	Scenario       Scenario
	Actor          string
	Organization   string
	Existing       []string
	RecentEvents   []string
	Variant        int
}

// Narrator produces human-readable text. Implementations may fail; callers
// fall back to the template narrator.
type Narrator interface {
	GenerateQuestionText(ctx context.Context, req TextRequest) (string, error)
	GenerateResolutionProof(ctx context.Context, q Question, outcome bool) (string, error)
}

// TemplateNarrator is the deterministic fallback. It never fails.
type TemplateNarrator struct{}

var questionTemplates = []string{
	"Will %s announce progress on %s before %s?",
	"Will %s publicly confirm %s by %s?",
	"Will %s and %s reach a deal on %s by %s?",
	"Will %s face setbacks on %s before %s?",
}

func (TemplateNarrator) GenerateQuestionText(_ context.Context, req TextRequest) (string, error) {
	actor := req.Actor
	if actor == "" {
		actor = "the lead team"
	}
	topic := req.Scenario.Title
	if topic == "" {
		topic = "the project"
	}
	org := req.Organization
	if org == "" {
		org = "its partners"
	}

	i := req.Variant % len(questionTemplates)
	if i < 0 {
		i = -i
	}
	if i == 2 {
		return fmt.Sprintf(questionTemplates[i], actor, org, topic, req.ResolutionDate), nil
	}
	return fmt.Sprintf(questionTemplates[i], actor, topic, req.ResolutionDate), nil
}

func (TemplateNarrator) GenerateResolutionProof(_ context.Context, q Question, outcome bool) (string, error) {
	verdict := "NO"
	if outcome {
		verdict = "YES"
	}
	return fmt.Sprintf("Question %d resolved %s on %s: %s", q.ID, verdict, q.ResolutionDate, q.Text), nil
}

// Normalize reduces text to lowercase words so near-identical phrasings
// compare equal.
func Normalize(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
