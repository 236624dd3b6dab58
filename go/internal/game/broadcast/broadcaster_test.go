package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, eventType events.Type, channel string) events.Event {
	t.Helper()
	ev, err := events.New(eventType, channel, 1, map[string]string{"k": "v"})
	require.NoError(t, err)
	return ev
}

func receive(t *testing.T, sub *Subscription) events.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	return events.Event{}
}

func assertNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s on %s", ev.Type, ev.Channel)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestBroadcaster_GlobalAndTeamChannels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New(DefaultConfig())
	go b.Start(ctx)

	teamA := b.Subscribe(events.TeamChannel("a"))
	teamB := b.Subscribe(events.TeamChannel("b"))
	lobby := b.Subscribe()
	defer teamA.Close()
	defer teamB.Close()
	defer lobby.Close()

	require.NoError(t, b.Publish(ctx, mustEvent(t, events.TypeGameState, events.GlobalChannel)))
	for _, sub := range []*Subscription{teamA, teamB, lobby} {
		assert.Equal(t, events.TypeGameState, receive(t, sub).Type)
	}

	require.NoError(t, b.Publish(ctx, mustEvent(t, events.TypeTeamUpdate, events.TeamChannel("a"))))
	assert.Equal(t, events.TypeTeamUpdate, receive(t, teamA).Type)
	assertNothing(t, teamB)
	assertNothing(t, lobby)
}

func TestBroadcaster_JoinAfterSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New(DefaultConfig())
	go b.Start(ctx)

	sub := b.Subscribe()
	defer sub.Close()
	sub.Join(events.TeamChannel("a"))

	require.NoError(t, b.Publish(ctx, mustEvent(t, events.TypeTeamUpdate, events.TeamChannel("a"))))
	assert.Equal(t, events.TypeTeamUpdate, receive(t, sub).Type)

	sub.Leave(events.TeamChannel("a"))
	require.NoError(t, b.Publish(ctx, mustEvent(t, events.TypeTeamUpdate, events.TeamChannel("a"))))
	assertNothing(t, sub)
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := New(Config{QueueSize: 10, SubscriberBuffer: 1})
	go b.Start(ctx)

	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Close()
	defer fast.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, mustEvent(t, events.TypeGameState, events.GlobalChannel)))
		receive(t, fast)
	}

	require.Eventually(t, func() bool { return slow.Dropped() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, events.TypeGameState, receive(t, slow).Type)
}

func TestBroadcaster_PublishFailsWhenQueueFull(t *testing.T) {
	b := New(Config{QueueSize: 1, SubscriberBuffer: 1})

	require.NoError(t, b.Publish(context.Background(), mustEvent(t, events.TypeGameState, events.GlobalChannel)))
	err := b.Publish(context.Background(), mustEvent(t, events.TypeGameState, events.GlobalChannel))
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := New(DefaultConfig())
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Events()
	assert.False(t, open)
}

type recordingSink struct {
	got []events.Event
	err error
}

func (r *recordingSink) Publish(_ context.Context, ev events.Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestFanout_KeepsGoingPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}

	err := Fanout{failing, nil, ok}.Publish(context.Background(), mustEvent(t, events.TypeGameEnd, events.GlobalChannel))
	assert.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}
