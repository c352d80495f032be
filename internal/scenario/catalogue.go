package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"predictsim/internal/question"
	"predictsim/internal/simerr"
)

var ErrInvalidCatalogue = fmt.Errorf("%w: invalid scenario catalogue", simerr.ErrValidation)

type catalogue struct {
	Actors        []string            `yaml:"actors"`
	Organizations []string            `yaml:"organizations"`
	Scenarios     []question.Scenario `yaml:"scenarios"`
}

// Catalogue is a parsed scenario file. Shared actors and organizations are
// merged into every scenario that does not name its own.
type Catalogue struct {
	Actors        []string
	Organizations []string
	Scenarios     []question.Scenario
}

// Parse decodes a YAML catalogue:
//
//	actors: [Dana Whitfield]
//	organizations: [Helios Labs]
//	scenarios:
//	  - id: launch
//	    title: the Helios satellite launch
//	    outcome_hint: true
func Parse(data []byte) (Catalogue, error) {
	var raw catalogue
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Catalogue{}, fmt.Errorf("decoding scenarios: %w", err)
	}

	seen := make(map[string]bool, len(raw.Scenarios))
	var errs []error
	for i, sc := range raw.Scenarios {
		switch {
		case strings.TrimSpace(sc.ID) == "":
			errs = append(errs, fmt.Errorf("scenario %d: missing id", i))
		case seen[sc.ID]:
			errs = append(errs, fmt.Errorf("scenario %q: duplicate id", sc.ID))
		case strings.TrimSpace(sc.Title) == "":
			errs = append(errs, fmt.Errorf("scenario %q: missing title", sc.ID))
		}
		seen[sc.ID] = true

		if len(sc.Actors) == 0 {
			raw.Scenarios[i].Actors = append([]string(nil), raw.Actors...)
		}
		if len(sc.Organizations) == 0 {
			raw.Scenarios[i].Organizations = append([]string(nil), raw.Organizations...)
		}
	}
	if len(errs) > 0 {
		return Catalogue{}, fmt.Errorf("%w: %w", ErrInvalidCatalogue, errors.Join(errs...))
	}
	return Catalogue{Actors: raw.Actors, Organizations: raw.Organizations, Scenarios: raw.Scenarios}, nil
}

// LoadFile reads and parses the catalogue at path.
func LoadFile(path string) (Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("reading scenarios: %w", err)
	}
	return Parse(data)
}

// FileSource re-reads a YAML catalogue on every call. Wrap it in a Cache to
// avoid the disk hit.
type FileSource struct {
	Path string
}

func (f FileSource) Scenarios(context.Context) ([]question.Scenario, error) {
	c, err := LoadFile(f.Path)
	if err != nil {
		return nil, err
	}
	return c.Scenarios, nil
}
