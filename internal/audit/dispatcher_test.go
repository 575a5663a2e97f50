package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) error {
	s.count.Add(1)
	return nil
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(ctx context.Context, _ Event) error {
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type failingSink struct{}

func (failingSink) Emit(context.Context, Event) error { return errors.New("sink down") }

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		if err := d.Emit(context.Background(), Event{Action: "a"}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	d.Close()

	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
	if err := d.Emit(context.Background(), Event{}); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed after Close, got %v", err)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{BufferSize: 1, DropIfFull: true, EmitTimeout: time.Second}, sink)

	// First event is picked up by the loop and blocks on the gate; the
	// second fills the buffer; subsequent ones are dropped.
	var drops int
	for i := 0; i < 10; i++ {
		if err := d.Emit(context.Background(), Event{}); errors.Is(err, ErrBufferFull) {
			drops++
		}
	}
	close(sink.gate)
	d.Close()

	if drops == 0 {
		t.Fatal("expected at least one dropped event")
	}
	if d.Dropped() != uint64(drops) {
		t.Fatalf("Dropped()=%d, want %d", d.Dropped(), drops)
	}
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{BufferSize: 1, EmitTimeout: time.Second}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	_ = d.Emit(context.Background(), Event{})
	_ = d.Emit(context.Background(), Event{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Emit(ctx, Event{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDispatcherReportsSinkFailures(t *testing.T) {
	var observed atomic.Int64
	d := NewDispatcher(Config{
		BufferSize: 4,
		OnError:    func(Event, error) { observed.Add(1) },
	}, failingSink{})

	_ = d.Emit(context.Background(), Event{})
	_ = d.Emit(context.Background(), Event{})
	d.Close()

	if observed.Load() != 2 || d.Failed() != 2 {
		t.Fatalf("expected 2 failures, observed=%d failed=%d", observed.Load(), d.Failed())
	}
}

func TestJSONWriterSinkOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	ev := Event{ID: "e1", Action: "authenticate", Outcome: OutcomeFailure, Severity: SeverityWarning}
	if err := sink.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := sink.Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Action != "authenticate" || decoded.Severity != SeverityWarning {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestSlogSinkCriticalLevel(t *testing.T) {
	var buf bytes.Buffer
	critical := slog.Level(12)
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger, critical)

	err := sink.Emit(context.Background(), Event{
		Action:   "session_hijack_suspected",
		Severity: SeverityCritical,
		Context:  map[string]string{"session": "abc"},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR+4"`) {
		t.Fatalf("expected critical level in output, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"session":"abc"`) {
		t.Fatalf("expected context attrs in output, got %s", buf.String())
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	good := &countingSink{}
	m := MultiSink{good, failingSink{}, nil}

	if err := m.Emit(context.Background(), Event{}); err == nil {
		t.Fatal("expected joined error")
	}
	if good.count.Load() != 1 {
		t.Fatal("expected healthy sink to receive the event")
	}
}
