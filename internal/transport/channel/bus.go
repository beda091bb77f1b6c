package channel

import (
	"context"

	"github.com/davolpi-it/export-cron/internal/domain"
)

type EventBus struct {
	ch chan domain.FireEvent
}

func NewEventBus(buffer int) *EventBus {
	return &EventBus{
		ch: make(chan domain.FireEvent, buffer),
	}
}

func (b *EventBus) Emit(ctx context.Context, event domain.FireEvent) error {
	select {
	case b.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) Channel() <-chan domain.FireEvent {
	return b.ch
}
