// Package presence tracks which identities have already been reported so that
// at most one attendance event is emitted per identity per run (and, with day
// scope, per calendar date).
package presence

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kozaktomas/rollcall/internal/database"
)

// Scope selects how far back deduplication looks.
type Scope string

const (
	// ScopeRun deduplicates within the current process only.
	ScopeRun Scope = "run"
	// ScopeDay also consults persisted history for the calendar date.
	ScopeDay Scope = "day"
)

// ParseScope converts a config value into a Scope. Empty means ScopeRun.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeRun:
		return ScopeRun, nil
	case ScopeDay:
		return ScopeDay, nil
	default:
		return "", fmt.Errorf("unknown presence scope %q (expected run or day)", s)
	}
}

// Tracker holds the in-run reported set. The set only grows.
type Tracker struct {
	scope   Scope
	history database.HistoryReader

	mu       sync.Mutex
	reported map[string]struct{}
}

// NewTracker creates an empty tracker. history is consulted only for ScopeDay
// and may be nil, in which case the tracker behaves like ScopeRun.
func NewTracker(scope Scope, history database.HistoryReader) *Tracker {
	return &Tracker{
		scope:    scope,
		history:  history,
		reported: make(map[string]struct{}),
	}
}

// Scope returns the configured scope.
func (t *Tracker) Scope() Scope {
	return t.scope
}

// AlreadyReported reports whether id was reported in this run or, with day
// scope, has a persisted record for date.
func (t *Tracker) AlreadyReported(ctx context.Context, id, date string) bool {
	t.mu.Lock()
	_, ok := t.reported[id]
	t.mu.Unlock()
	if ok {
		return true
	}
	return t.inHistory(ctx, id, date)
}

// MarkReported adds id to the in-run set. Marking twice is a no-op.
func (t *Tracker) MarkReported(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reported[id] = struct{}{}
}

// TryMark atomically checks and marks id. It returns true only for the caller
// that first marks id; every later call for the same id returns false.
// An id found in history is marked too, so the lookup is not repeated.
func (t *Tracker) TryMark(ctx context.Context, id, date string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.reported[id]; ok {
		return false, nil
	}
	seen := t.inHistory(ctx, id, date)
	t.reported[id] = struct{}{}
	return !seen, nil
}

// Count returns the number of identities in the in-run set.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reported)
}

// Reported returns the identities in the in-run set, in no particular order.
func (t *Tracker) Reported() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.reported))
	for id := range t.reported {
		ids = append(ids, id)
	}
	return ids
}

// inHistory fails open: a lookup error is logged and treated as not recorded.
func (t *Tracker) inHistory(ctx context.Context, id, date string) bool {
	if t.scope != ScopeDay || t.history == nil {
		return false
	}
	ok, err := t.history.HasAttendance(ctx, id, date)
	if err != nil {
		log.Printf("Warning: attendance history lookup failed for %s on %s: %v", id, date, err)
		return false
	}
	return ok
}
