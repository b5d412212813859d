package promotion

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// State is what consumers see of the promotion at a given instant.
type State struct {
	Loaded              bool
	Multiplier          decimal.Decimal
	StartDate           time.Time
	EndDate             time.Time
	Active              bool
	EffectiveMultiplier decimal.Decimal
	EvaluatedAt         time.Time
}

// Tracker holds the current promotional window. Every read is evaluated
// against the clock, so a closed window reads as inactive immediately.
type Tracker struct {
	mu         sync.RWMutex
	window     Window
	loaded     bool
	fetchedAt  time.Time
	lastActive bool
	now        func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Set replaces the window after a successful fetch.
func (t *Tracker) Set(w Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = w
	t.loaded = true
	t.fetchedAt = t.now()
}

// Window returns the configured window regardless of the clock.
func (t *Tracker) Window() (Window, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.window, t.loaded
}

// FetchedAt is when the window was last replaced.
func (t *Tracker) FetchedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fetchedAt
}

func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stateAt(t.now())
}

// EffectiveMultiplier is shorthand for Snapshot().EffectiveMultiplier.
func (t *Tracker) EffectiveMultiplier() decimal.Decimal {
	return t.Snapshot().EffectiveMultiplier
}

// Evaluate re-checks the window and reports whether activity flipped since the last evaluation.
func (t *Tracker) Evaluate() (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.stateAt(t.now())
	changed := state.Active != t.lastActive
	t.lastActive = state.Active
	return state, changed
}

func (t *Tracker) stateAt(now time.Time) State {
	effective := t.window.EffectiveMultiplier(now)
	return State{
		Loaded:              t.loaded,
		Multiplier:          t.window.Multiplier,
		StartDate:           t.window.Start,
		EndDate:             t.window.End,
		Active:              effective.IsPositive(),
		EffectiveMultiplier: effective,
		EvaluatedAt:         now,
	}
}
