package idempotency

import (
	"fmt"
	"sync"
)

// Kind is the flavour of operation a key guards.
type Kind string

const (
	KindSubmitDecision Kind = "SubmitDecision"
	KindStartGame      Kind = "StartGame"
	KindAdvanceRound   Kind = "AdvanceRound"
	KindEndGame        Kind = "EndGame"
)

// NoRound marks keys that are not tied to a round.
const NoRound = -1

// Key identifies one logically single mutation.
type Key struct {
	Kind  Kind
	Scope string
	Round int
}

func (k Key) String() string {
	if k.Round == NoRound {
		return fmt.Sprintf("%s/%s", k.Kind, k.Scope)
	}
	return fmt.Sprintf("%s/%s/%d", k.Kind, k.Scope, k.Round)
}

// DecisionKey guards one team's decision for one round.
func DecisionKey(teamID string, round int) Key {
	return Key{Kind: KindSubmitDecision, Scope: teamID, Round: round}
}

// StartKey guards the single start of a session.
func StartKey(gameID string) Key {
	return Key{Kind: KindStartGame, Scope: gameID, Round: NoRound}
}

// AdvanceKey guards the advance out of round.
func AdvanceKey(gameID string, round int) Key {
	return Key{Kind: KindAdvanceRound, Scope: gameID, Round: round}
}

// EndKey guards end-of-game scoring.
func EndKey(gameID string) Key {
	return Key{Kind: KindEndGame, Scope: gameID, Round: NoRound}
}

// Tracker records which operations have been committed.
type Tracker struct {
	mu        sync.RWMutex
	committed map[Key]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{committed: make(map[Key]struct{})}
}

// IsCommitted reports whether key has been marked.
func (t *Tracker) IsCommitted(key Key) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.committed[key]
	return ok
}

// MarkCommitted records key as applied.
func (t *Tracker) MarkCommitted(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed[key] = struct{}{}
}

// Reset forgets key so a failed operation can be retried. Only call it on
// failure paths.
func (t *Tracker) Reset(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.committed, key)
}

// Len is the number of committed keys.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.committed)
}
