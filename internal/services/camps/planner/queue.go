package planner

import (
	"context"
)

// write is one queued storage write for a key. A write replaced while
// pending forwards its waiters to the replacement.
type write struct {
	ctx     context.Context
	apply   func(context.Context) error
	done    chan struct{}
	err     error
	forward *write
}

// lane serializes writes for one key: one in flight, at most one pending.
type lane struct {
	pending *write
}

// submit runs apply for key after any in-flight write. If another write is
// already pending it is replaced and its callers get this write's result.
func (p *Planner) submit(ctx context.Context, key Key, apply func(context.Context) error) error {
	w := &write{ctx: ctx, apply: apply, done: make(chan struct{})}

	p.qmu.Lock()
	l, busy := p.lanes[key]
	if busy {
		if old := l.pending; old != nil {
			old.forward = w
			close(old.done)
		}
		l.pending = w
		p.qmu.Unlock()
		return wait(w)
	}
	l = &lane{}
	p.lanes[key] = l
	p.qmu.Unlock()

	p.drain(key, l, w)
	return wait(w)
}

// drain executes w and then whatever became pending meanwhile, in the
// goroutine that opened the lane.
func (p *Planner) drain(key Key, l *lane, w *write) {
	for w != nil {
		w.err = w.apply(w.ctx)
		close(w.done)

		p.qmu.Lock()
		w = l.pending
		l.pending = nil
		if w == nil {
			delete(p.lanes, key)
		}
		p.qmu.Unlock()
	}
}

func wait(w *write) error {
	for {
		<-w.done
		if w.forward == nil {
			return w.err
		}
		w = w.forward
	}
}
