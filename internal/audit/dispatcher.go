package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrDispatcherClosed = errors.New("audit dispatcher closed")
	ErrBufferFull       = errors.New("audit buffer full")
)

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize  int
	DropIfFull  bool
	EmitTimeout time.Duration
	// OnError observes sink failures from the background loop.
	OnError func(Event, error)
}

// Dispatcher asynchronously forwards audit events to a sink.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 2 * time.Second
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EmitTimeout)
	defer cancel()

	if err := d.sink.Emit(ctx, event); err != nil {
		d.failed.Add(1)
		if d.cfg.OnError != nil {
			d.cfg.OnError(event, err)
		}
	}
}

// Emit enqueues event. With DropIfFull the call never blocks and reports
// ErrBufferFull when the event was dropped; otherwise it waits for buffer
// space until ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	if d == nil || d.closed.Load() {
		return ErrDispatcherClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
			return nil
		case <-d.done:
			return ErrDispatcherClosed
		default:
			d.dropped.Add(1)
			return ErrBufferFull
		}
	}

	select {
	case d.ch <- event:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Close stops accepting events and drains the buffer.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
