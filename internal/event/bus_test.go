package event

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestBusDispatchesToSubscribers(t *testing.T) {
	bus := NewBus(slog.New(slog.DiscardHandler), 8)

	var got []Event
	bus.Subscribe(StageCompleted, func(e Event) { got = append(got, e) })
	bus.Subscribe(StageFailed, func(e Event) { t.Error("wrong type dispatched") })

	bus.Publish(Event{Type: StageCompleted, Data: map[string]any{"step": "enrich"}})
	bus.Publish(Event{Type: ListCreated})

	// Stop before Start so the drain path runs synchronously.
	bus.Stop()
	bus.Start()

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Data["step"] != "enrich" || got[0].Timestamp.IsZero() {
		t.Errorf("event = %+v", got[0])
	}
}

func TestLogActivity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	bus := NewBus(logger, 8)
	LogActivity(bus, logger)

	bus.Publish(Event{Type: StageCompleted, Data: map[string]any{"step": "parse"}})
	bus.Publish(Event{Type: StageFailed, Data: map[string]any{"step": "enrich"}})

	bus.Stop()
	bus.Start()

	out := buf.String()
	if !strings.Contains(out, "stage.completed") {
		t.Errorf("completed event not logged: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "stage.failed") {
		t.Errorf("failed event not logged at warn: %s", out)
	}
}
