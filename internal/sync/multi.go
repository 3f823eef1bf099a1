package syncx

import (
	"context"
	"errors"
)

// Multi appends to every sink in order and joins their errors.
// The durable event_log repo should come first.
type Multi []Sink

func (m Multi) Append(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(context.Context, Event) error { return nil }
