// Package uuid mints run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs, so runs sort by start time.
// If the v7 source fails it falls back to a random v4.
type Generator struct {
	newV7 func() (uuid.UUID, error)
	newV4 func() (uuid.UUID, error)
}

// New creates a Generator.
func New() *Generator {
	return &Generator{newV7: uuid.NewV7, newV4: uuid.NewRandom}
}

// NewID returns a run ID in canonical string form.
func (g *Generator) NewID() (string, error) {
	id, err := g.NewRawID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRawID returns a run ID.
func (g *Generator) NewRawID() (uuid.UUID, error) {
	id, err := g.newV7()
	if err == nil {
		return id, nil
	}
	id, v4Err := g.newV4()
	if v4Err != nil {
		return uuid.Nil, fmt.Errorf("generate run id: v7: %w; v4: %w", err, v4Err)
	}
	return id, nil
}
