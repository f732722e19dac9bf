// internal/session/tracker.go
package session

import (
	"context"
	"fmt"
	"sync"

	"meal-companion/internal/models"
)

// MaxProgress caps the progress reported to the headset.
const MaxProgress = 100.0

// Progress converts accumulated consumption into the capped value shown to
// the user.
func Progress(totalConsumed float64) float64 {
	return min(MaxProgress, totalConsumed)
}

// Folded is the outcome of folding one analysis into a session.
type Folded struct {
	Previous models.Session
	Session  models.Session
	Progress float64
}

// Tracker serializes updates per session id on top of a Store. Captures for
// different sessions proceed in parallel.
type Tracker struct {
	store Store
	locks *keyedMutex
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, locks: newKeyedMutex()}
}

// Store exposes the backing store for read-only queries.
func (t *Tracker) Store() Store { return t.store }

// Fold adds analysis to the session and returns the capped progress.
func (t *Tracker) Fold(ctx context.Context, id string, analysis models.CaptureAnalysis) (Folded, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	prev, err := t.store.GetOrCreate(ctx, id)
	if err != nil {
		return Folded{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return t.fold(ctx, id, prev, analysis)
}

// Capture holds the session lock while analyze runs against the prior state,
// then folds its result. The analysis is returned alongside the fold.
func (t *Tracker) Capture(
	ctx context.Context,
	id string,
	analyze func(ctx context.Context, prior models.Session) models.CaptureAnalysis,
) (models.CaptureAnalysis, Folded, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	prev, err := t.store.GetOrCreate(ctx, id)
	if err != nil {
		return models.CaptureAnalysis{}, Folded{}, fmt.Errorf("load session %s: %w", id, err)
	}

	analysis := analyze(ctx, prev)
	folded, err := t.fold(ctx, id, prev, analysis)
	return analysis, folded, err
}

// End removes the session under its lock.
func (t *Tracker) End(ctx context.Context, id string) (models.Session, error) {
	unlock := t.locks.Lock(id)
	defer unlock()
	return t.store.End(ctx, id)
}

func (t *Tracker) fold(ctx context.Context, id string, prev models.Session, analysis models.CaptureAnalysis) (Folded, error) {
	sess, err := t.store.Update(ctx, id, analysis)
	if err != nil {
		return Folded{}, fmt.Errorf("update session %s: %w", id, err)
	}
	return Folded{
		Previous: prev,
		Session:  sess,
		Progress: Progress(sess.TotalConsumed),
	}, nil
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
