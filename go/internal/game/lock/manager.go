package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrTimeout is returned when a key stays held past the caller's timeout.
var ErrTimeout = errors.New("lease acquire timed out")

// GameKey names the lease guarding game-wide fields and the round counter.
const GameKey = "game"

// TeamKey names the lease guarding a single team's decision fields.
func TeamKey(teamID string) string {
	return "team:" + teamID
}

// Mode is how a lease holds its key.
type Mode int

const (
	Exclusive Mode = iota
	Shared
)

func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "exclusive"
}

// Lease is a held claim on a named resource. It is only valid until released.
type Lease struct {
	ID         uuid.UUID
	Key        string
	Mode       Mode
	AcquiredAt time.Time
	timeout    time.Duration
	clock      clockwork.Clock
}

// Timeout is the hold budget the lease was granted with.
func (l *Lease) Timeout() time.Duration {
	return l.timeout
}

// Remaining is what is left of the hold budget, measured from acquisition.
func (l *Lease) Remaining() time.Duration {
	var held time.Duration
	if l.clock != nil {
		held = l.clock.Since(l.AcquiredAt)
	} else {
		held = time.Since(l.AcquiredAt)
	}
	if left := l.timeout - held; left > 0 {
		return left
	}
	return 0
}

// Context bounds work done under the lease to what is left of its hold budget.
// Contexts derived from several leases end at the earliest of their deadlines.
func (l *Lease) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, l.Remaining())
}

type entry struct {
	writer         *Lease
	readers        map[*Lease]struct{}
	writersWaiting int
	waiting        int
	// changed is closed and replaced whenever the entry's holders change.
	changed chan struct{}
}

func (e *entry) available(mode Mode) bool {
	if e.writer != nil {
		return false
	}
	if mode == Exclusive {
		return len(e.readers) == 0
	}
	return e.writersWaiting == 0
}

func (e *entry) idle() bool {
	return e.writer == nil && len(e.readers) == 0 && e.waiting == 0
}

func (e *entry) notify() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// Manager hands out mutual-exclusion leases over named resources.
// Waiting writers hold back new shared acquirers; no other ordering is promised.
type Manager struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager creates a lease manager that measures timeouts on clock.
func NewManager(clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		clock:   clock,
		entries: make(map[string]*entry),
	}
}

// Acquire blocks until key is free and takes it exclusively.
func (m *Manager) Acquire(ctx context.Context, key string, timeout time.Duration) (*Lease, error) {
	return m.acquire(ctx, key, timeout, Exclusive)
}

// AcquireShared blocks until no exclusive holder or waiter remains on key and joins
// the set of shared holders.
func (m *Manager) AcquireShared(ctx context.Context, key string, timeout time.Duration) (*Lease, error) {
	return m.acquire(ctx, key, timeout, Shared)
}

func (m *Manager) acquire(ctx context.Context, key string, timeout time.Duration, mode Mode) (*Lease, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := m.clock.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.Chan()
	}

	m.mu.Lock()
	e := m.entryLocked(key)
	e.waiting++
	if mode == Exclusive {
		e.writersWaiting++
	}

	for {
		if e.available(mode) {
			lease := m.grantLocked(e, key, mode, timeout)
			m.mu.Unlock()
			return lease, nil
		}

		changed := e.changed
		m.mu.Unlock()

		var failure error
		select {
		case <-changed:
		case <-expired:
			failure = fmt.Errorf("%s lease on %q after %s: %w", mode, key, timeout, ErrTimeout)
		case <-ctx.Done():
			failure = fmt.Errorf("%s lease on %q: %w", mode, key, ctx.Err())
		}

		m.mu.Lock()
		if failure != nil {
			// The key may have freed up while we were deciding to give up.
			if e.available(mode) {
				lease := m.grantLocked(e, key, mode, timeout)
				m.mu.Unlock()
				return lease, nil
			}
			m.abandonLocked(e, key, mode)
			m.mu.Unlock()
			log.Warn().Str("key", key).Str("mode", mode.String()).Err(failure).Msg("lease not acquired")
			return nil, failure
		}
	}
}

func (m *Manager) entryLocked(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		e = &entry{
			readers: make(map[*Lease]struct{}),
			changed: make(chan struct{}),
		}
		m.entries[key] = e
	}
	return e
}

func (m *Manager) grantLocked(e *entry, key string, mode Mode, timeout time.Duration) *Lease {
	lease := &Lease{
		ID:         uuid.New(),
		Key:        key,
		Mode:       mode,
		AcquiredAt: m.clock.Now(),
		timeout:    timeout,
		clock:      m.clock,
	}
	e.waiting--
	if mode == Exclusive {
		e.writersWaiting--
		e.writer = lease
	} else {
		e.readers[lease] = struct{}{}
	}
	return lease
}

func (m *Manager) abandonLocked(e *entry, key string, mode Mode) {
	e.waiting--
	if mode == Exclusive {
		e.writersWaiting--
		// Shared waiters held back by us can go now.
		e.notify()
	}
	if e.idle() {
		delete(m.entries, key)
	}
}

// Release gives the lease back. Releasing a lease that is not the current holder,
// or releasing twice, does nothing.
func (m *Manager) Release(lease *Lease) {
	if lease == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[lease.Key]
	if !ok {
		return
	}

	switch {
	case lease.Mode == Exclusive && e.writer == lease:
		e.writer = nil
	case lease.Mode == Shared:
		if _, held := e.readers[lease]; !held {
			return
		}
		delete(e.readers, lease)
	default:
		return
	}

	if held := m.clock.Since(lease.AcquiredAt); lease.timeout > 0 && held > lease.timeout {
		log.Warn().
			Str("key", lease.Key).
			Str("lease_id", lease.ID.String()).
			Dur("held", held).
			Dur("timeout", lease.timeout).
			Msg("lease held past its timeout")
	}

	e.notify()
	if e.idle() {
		delete(m.entries, lease.Key)
	}
}

// Held reports whether any lease is outstanding on key.
func (m *Manager) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return ok && (e.writer != nil || len(e.readers) > 0)
}

// Outstanding counts leases currently held across all keys.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if e.writer != nil {
			n++
		}
		n += len(e.readers)
	}
	return n
}
