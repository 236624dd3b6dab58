package game

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// roundTimer counts down the current round once per second. Only one countdown
// runs at a time; starting a new one cancels the previous.
type roundTimer struct {
	clock    clockwork.Clock
	onTick   func(round int) (remaining int, ok bool)
	onExpire func(round int)

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newRoundTimer(clock clockwork.Clock, onTick func(int) (int, bool), onExpire func(int)) *roundTimer {
	return &roundTimer{clock: clock, onTick: onTick, onExpire: onExpire}
}

// start replaces any running countdown. A non-positive budget disables the clock.
func (t *roundTimer) start(round, seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if seconds <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	ticker := t.clock.NewTicker(time.Second)
	go t.run(ctx, ticker, round)

	log.Debug().Int("round", round).Int("seconds", seconds).Msg("round timer started")
}

// stop cancels the running countdown without waiting for it to exit, so it is
// safe to call from the expiry callback.
func (t *roundTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *roundTimer) run(ctx context.Context, ticker clockwork.Ticker, round int) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			remaining, ok := t.onTick(round)
			if !ok {
				return
			}
			if remaining <= 0 {
				t.onExpire(round)
				return
			}
		}
	}
}

// onTimerTick decrements the countdown of the given round and broadcasts it.
// It reports false once the round has moved on or the game stopped running.
func (c *Coordinator) onTimerTick(round int) (int, bool) {
	c.mu.Lock()
	if c.state.Ended || !c.state.Running || c.state.Round != round {
		c.mu.Unlock()
		return 0, false
	}
	if c.state.TimerSeconds > 0 {
		c.state.TimerSeconds--
	}
	remaining := c.state.TimerSeconds
	c.mu.Unlock()

	c.publish(context.Background(), pending{events.TypeTimerTick, events.GlobalChannel, round, events.TimerTickPayload{
		Round:            round,
		TimeRemainingSec: remaining,
		TickedAt:         c.clock.Now().UTC(),
	}})
	return remaining, true
}

func (c *Coordinator) onTimerExpired(round int) {
	if !c.cfg.AutoAdvance {
		log.Info().Int("round", round).Msg("round timer expired, waiting for manual advance")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AdvanceTimeout)
	defer cancel()
	if _, err := c.AdvanceRound(ctx); err != nil {
		log.Error().Err(err).Int("round", round).Msg("auto advance failed")
	}
}
