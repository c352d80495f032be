// Package archive stores finished game results as JSON documents for
// training export.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"predictsim/internal/game"
)

// Archiver stores a finished game and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, res game.GameResult) (string, error)
}

func encode(res game.GameResult) ([]byte, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding game %s: %w", res.ID, err)
	}
	return data, nil
}

// LocalArchiver writes <Dir>/<game id>.json.
type LocalArchiver struct {
	Dir string
}

func (l LocalArchiver) Archive(_ context.Context, res game.GameResult) (string, error) {
	data, err := encode(res)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	path := filepath.Join(l.Dir, res.ID.String()+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	return path, nil
}

// Multi archives to every target, stopping at the first failure. The
// returned location is the last one written.
type Multi []Archiver

func (m Multi) Archive(ctx context.Context, res game.GameResult) (string, error) {
	var loc string
	for _, a := range m {
		var err error
		if loc, err = a.Archive(ctx, res); err != nil {
			return "", err
		}
	}
	return loc, nil
}
