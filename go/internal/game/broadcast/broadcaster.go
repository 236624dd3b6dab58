package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// ErrQueueFull is returned when the broadcast queue cannot take another event.
var ErrQueueFull = errors.New("broadcast queue full")

// Config holds broadcaster sizing.
type Config struct {
	QueueSize        int
	SubscriberBuffer int
}

// DefaultConfig returns the default broadcaster sizing.
func DefaultConfig() Config {
	return Config{
		QueueSize:        1000,
		SubscriberBuffer: 64,
	}
}

// Subscription receives every global event plus the events of the channels it joined.
type Subscription struct {
	ID string

	events   chan events.Event
	channels map[string]struct{}
	b        *Broadcaster
	once     sync.Once
	dropped  atomic.Int64
}

// Events is the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan events.Event {
	return s.events
}

// Dropped counts events skipped because the subscriber fell behind.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Join adds a channel, e.g. a team channel after the observer joins a team.
func (s *Subscription) Join(channel string) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, live := s.b.subs[s]; !live {
		return
	}
	s.channels[channel] = struct{}{}
}

// Leave removes a channel.
func (s *Subscription) Leave(channel string) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.channels, channel)
}

// Close unsubscribes and closes the delivery channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		close(s.events)
		s.b.mu.Unlock()
	})
}

// Broadcaster fans committed events out to subscribers. Delivery is best effort:
// a slow subscriber loses events instead of stalling everyone else.
type Broadcaster struct {
	cfg     Config
	queue   chan events.Event
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	started atomic.Bool
}

// New creates a broadcaster. Call Start to begin delivery.
func New(cfg Config) *Broadcaster {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}
	return &Broadcaster{
		cfg:   cfg,
		queue: make(chan events.Event, cfg.QueueSize),
		subs:  make(map[*Subscription]struct{}),
	}
}

// Start delivers queued events until ctx ends.
func (b *Broadcaster) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	log.Info().Msg("broadcaster started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcaster shutting down")
			return
		case event := <-b.queue:
			b.deliver(event)
		}
	}
}

// Publish queues an event for fan-out without blocking.
func (b *Broadcaster) Publish(_ context.Context, event events.Event) error {
	select {
	case b.queue <- event:
		return nil
	default:
		log.Warn().
			Str("event_type", string(event.Type)).
			Str("channel", event.Channel).
			Msg("broadcast queue full, dropping event")
		return ErrQueueFull
	}
}

// Subscribe registers an observer on the global channel plus the given channels.
func (b *Broadcaster) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		ID:       uuid.New().String(),
		events:   make(chan events.Event, b.cfg.SubscriberBuffer),
		channels: make(map[string]struct{}, len(channels)),
		b:        b,
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	log.Debug().Str("subscription_id", sub.ID).Int("channels", len(channels)).Msg("subscriber registered")
	return sub
}

// SubscriberCount is the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) deliver(event events.Event) {
	// Hold the read lock across sends so Close cannot close a channel mid-send.
	// Sends never block, so the lock is held briefly.
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.subs {
		if event.Channel != events.GlobalChannel {
			if _, ok := sub.channels[event.Channel]; !ok {
				continue
			}
		}
		select {
		case sub.events <- event:
			delivered++
		default:
			sub.dropped.Add(1)
			log.Warn().
				Str("subscription_id", sub.ID).
				Str("event_type", string(event.Type)).
				Msg("subscriber buffer full, dropping event")
		}
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("channel", event.Channel).
		Int("subscribers", delivered).
		Msg("event broadcasted")
}
