package broadcast

import (
	"context"
	"errors"

	"github.com/mcdev12/solowsim/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Sink consumes committed events.
type Sink interface {
	Publish(ctx context.Context, event events.Event) error
}

// Fanout hands each event to every sink. A failing sink is logged and does not
// stop the others.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, event events.Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Msg("sink failed to publish event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
