// Package ingest implements the inbound-update engine for TaskBot: the
// dedup guard, the event router, and the long-polling loop that drives them.
package ingest

import (
	"log/slog"
	"sync"
)

// Guard enforces at-most-once processing per (identity, update sequence) and
// tracks which identities are already registered as subscribers.
//
// Both markers live for the process lifetime only; the registered set is
// re-derived from the subscriber store at startup (see Seed), and dedup
// state restarts empty, relying on the poll cursor to avoid refetching old
// updates.
type Guard struct {
	mu           sync.Mutex
	lastUpdateID map[int64]int64
	registered   map[int64]bool
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{
		lastUpdateID: make(map[int64]int64),
		registered:   make(map[int64]bool),
	}
}

// Seed marks the given identities as registered. Called once at startup
// with the user IDs of all stored subscribers.
func (g *Guard) Seed(userIDs []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range userIDs {
		g.registered[id] = true
	}
	slog.Debug("Guard.Seed: registered identities seeded", "count", len(userIDs))
}

// IsDuplicate reports whether the update sequence was already processed for
// the identity: true if updateID is not strictly greater than the last value
// recorded by MarkSeen. It never records anything itself, so an update that
// fails mid-route stays unseen and is processed again when re-fetched.
func (g *Guard) IsDuplicate(userID, updateID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastUpdateID[userID]; ok && updateID <= last {
		slog.Debug("Guard.IsDuplicate: duplicate update discarded", "user_id", userID, "update_id", updateID, "last_update_id", last)
		return true
	}
	return false
}

// MarkSeen records the update sequence for an identity. Called only after
// the update's routing completed without error. The recorded value never
// moves backwards.
func (g *Guard) MarkSeen(userID, updateID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if updateID > g.lastUpdateID[userID] {
		g.lastUpdateID[userID] = updateID
	}
}

// IsRegistered reports whether the identity is already a subscriber.
func (g *Guard) IsRegistered(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registered[userID]
}

// MarkRegistered records the identity as registered. Called the moment the
// router decides to create a subscriber, before any reply is sent, so a
// near-simultaneous second registration event cannot also see "not
// registered".
func (g *Guard) MarkRegistered(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registered[userID] = true
}

// Forget drops all state for an identity. Called when a subscriber is
// removed by an administrative action so the identity can register again.
func (g *Guard) Forget(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.registered, userID)
	delete(g.lastUpdateID, userID)
}
