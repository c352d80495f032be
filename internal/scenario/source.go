// Package scenario supplies the storylines new questions are drawn from.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"predictsim/internal/question"
	"predictsim/internal/simerr"
)

var ErrNoScenarios = fmt.Errorf("%w: no scenarios available", simerr.ErrCollaborator)

// Source returns scenarios for question generation.
type Source interface {
	Scenarios(ctx context.Context) ([]question.Scenario, error)
}

// Static is a fixed scenario list.
type Static []question.Scenario

func (s Static) Scenarios(context.Context) ([]question.Scenario, error) {
	return append([]question.Scenario(nil), s...), nil
}

// Multi concatenates several sources. A failing source is logged and
// skipped; Multi only fails when every source fails.
type Multi []Source

func (m Multi) Scenarios(ctx context.Context) ([]question.Scenario, error) {
	var (
		out  []question.Scenario
		errs []error
		seen = make(map[string]bool)
	)
	for _, src := range m {
		list, err := src.Scenarios(ctx)
		if err != nil {
			slog.Warn("scenario source failed", "error", err)
			errs = append(errs, err)
			continue
		}
		for _, sc := range list {
			if sc.ID != "" && seen[sc.ID] {
				continue
			}
			seen[sc.ID] = true
			out = append(out, sc)
		}
	}
	if len(m) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
