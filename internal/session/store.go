// internal/session/store.go

// Package session tracks running food consumption per tracking episode.
package session

import (
	"context"
	"errors"

	"meal-companion/internal/models"
)

// ErrNotFound is returned when a session id has no recorded state.
var ErrNotFound = errors.New("session not found")

// Store owns all session state. Implementations must be safe for concurrent
// use; callers serialize read-modify-write per session id through Tracker.
type Store interface {
	// GetOrCreate returns the stored session or a zeroed one. A zeroed
	// session is not persisted until the first Update.
	GetOrCreate(ctx context.Context, id string) (models.Session, error)
	// Get returns ErrNotFound when id has never been updated.
	Get(ctx context.Context, id string) (models.Session, error)
	// Update folds one analysis into the session, creating it if needed.
	Update(ctx context.Context, id string, analysis models.CaptureAnalysis) (models.Session, error)
	// End removes the session and returns its final state, or ErrNotFound.
	End(ctx context.Context, id string) (models.Session, error)
}
