package verifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

type Handler interface {
	Handle(ev Event)
}

// Dispatcher drains platform events into a Handler from a fixed set of
// workers. Each worker owns a bounded queue and an event always lands on the
// queue chosen by its Key, so one member's events are handled in order.
type Dispatcher struct {
	handler Handler
	queues  []chan Event
	wg      sync.WaitGroup
	ctx     context.Context
	started chan struct{}
	once    sync.Once
}

func NewDispatcher(handler Handler, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}

	queues := make([]chan Event, workers)
	for i := range queues {
		queues[i] = make(chan Event, queueSize)
	}

	return &Dispatcher{
		handler: handler,
		queues:  queues,
		started: make(chan struct{}),
	}
}

// Start launches the workers. Cancelling ctx stops intake and keeps workers
// from picking up queued events; an event already being handled finishes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		d.ctx = ctx
		for i, q := range d.queues {
			d.wg.Add(1)
			go d.work(i, q)
		}
		close(d.started)
	})
}

// Submit queues ev, blocking while its queue is full. A join for several
// members is queued as one join per member. It returns false once the
// dispatcher is shutting down or ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) bool {
	<-d.started

	if d.ctx.Err() != nil {
		return false
	}

	if joined, ok := ev.(MemberJoined); ok && len(joined.Users) > 1 {
		for _, part := range joined.Split() {
			if !d.enqueue(ctx, part) {
				return false
			}
		}
		return true
	}

	return d.enqueue(ctx, ev)
}

func (d *Dispatcher) enqueue(ctx context.Context, ev Event) bool {
	q := d.queues[shard(ev.Key(), len(d.queues))]
	select {
	case q <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-d.ctx.Done():
		return false
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(id int, q <-chan Event) {
	defer d.wg.Done()

	for {
		if d.ctx.Err() != nil {
			if n := len(q); n > 0 {
				logger.Warn("dispatcher stopped with queued events", "worker", id, "dropped", n)
			}
			return
		}

		select {
		case <-d.ctx.Done():
		case ev := <-q:
			d.run(id, ev)
		}
	}
}

func (d *Dispatcher) run(id int, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "worker", id, "event", fmt.Sprintf("%T", ev), "panic", r, "stack", string(debug.Stack()))
		}
	}()

	d.handler.Handle(ev)
}

func shard(key int64, n int) int {
	k := key % int64(n)
	if k < 0 {
		k = -k
	}
	return int(k)
}
