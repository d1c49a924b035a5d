// Package bus is the command and event channel between the planning core
// and a view. Commands are applied one at a time, in arrival order, by a
// single dispatcher; events are stamped with increasing versions.
package bus

import (
	"context"
	"errors"
	"sync"
)

// DefaultQueueSize bounds commands waiting for the dispatcher.
const DefaultQueueSize = 64

// ErrClosed is returned by Send after the dispatcher has stopped.
var ErrClosed = errors.New("bus is closed")

// Handler applies one command. It runs on the dispatcher goroutine.
type Handler func(ctx context.Context, cmd Command)

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the command buffer size.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

type envelope struct {
	ctx context.Context
	cmd Command
}

// Bus dispatches commands to a handler and fans events out to subscribers.
type Bus struct {
	handler   Handler
	queueSize int
	commands  chan envelope
	closed    chan struct{}
	closeOnce sync.Once

	// pubMu serializes stamping and delivery so subscribers observe
	// versions in increasing order.
	pubMu   sync.Mutex
	seq     uint64
	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(Event)
	order   []int
}

// New returns a bus that dispatches to handler once Run is called.
func New(handler Handler, opts ...Option) *Bus {
	b := &Bus{
		handler:   handler,
		queueSize: DefaultQueueSize,
		closed:    make(chan struct{}),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.commands = make(chan envelope, b.queueSize)
	return b
}

// Run dispatches commands until ctx is cancelled or Close is called.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.Close()
			return ctx.Err()
		case <-b.closed:
			return nil
		case env := <-b.commands:
			if env.ctx.Err() != nil {
				continue
			}
			b.handler(env.ctx, env.cmd)
		}
	}
}

// Send queues cmd. It blocks while the queue is full.
func (b *Bus) Send(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return errors.New("command is required")
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	select {
	case b.commands <- envelope{ctx: ctx, cmd: cmd}:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatcher. Queued commands are dropped.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Subscribe registers fn for every event published after it returns. fn
// runs on the publisher's goroutine and must not publish.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			defer b.subMu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish stamps ev with the next version and delivers it. The stamped
// event is returned.
func (b *Bus) Publish(ev Event) Event {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.seq++
	stamped := ev.withVersion(b.seq)

	b.subMu.Lock()
	handlers := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.subMu.Unlock()

	for _, fn := range handlers {
		fn(stamped)
	}
	return stamped
}

// Version returns the last published version.
func (b *Bus) Version() uint64 {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.seq
}
