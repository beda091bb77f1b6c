package channel

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/davolpi-it/export-cron/internal/domain"
)

func TestEventBusEmitAndReceive(t *testing.T) {
	bus := NewEventBus(1)
	event := domain.FireEvent{FireID: uuid.New(), ExportID: "REPORT.sql-20251012080000"}

	if err := bus.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	select {
	case got := <-bus.Channel():
		if got.FireID != event.FireID {
			t.Errorf("received event %s, want %s", got.FireID, event.FireID)
		}
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}
}

func TestEventBusEmit_CancelledContext(t *testing.T) {
	bus := NewEventBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Emit(ctx, domain.FireEvent{FireID: uuid.New()})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEventBusEmit_FullBufferBlocksUntilCancel(t *testing.T) {
	bus := NewEventBus(1)
	if err := bus.Emit(context.Background(), domain.FireEvent{FireID: uuid.New()}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := bus.Emit(ctx, domain.FireEvent{FireID: uuid.New()}); err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
