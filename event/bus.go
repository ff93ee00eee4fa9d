package event

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
)

const defaultQueueSize = 32

var (
	// ErrBusStopped is returned when posting to a bus that is not running
	ErrBusStopped = errors.New("event bus is not running")

	// ErrNotRegistered is returned when unregistering an unknown handler
	ErrNotRegistered = errors.New("handler is not registered")
)

// Handler is invoked by the dispatch goroutine for every matching event.
type Handler func(*Event)

// Registration ties a handler to the events it is interested in.
type Registration struct {
	Id      uint32
	base    Base
	id      ID
	handler Handler
	bus     *Bus

	// held while the handler runs, so that unregistering waits for it
	mtx    sync.Mutex
	active bool
}

// Cancel unregisters the handler from its bus.
func (r *Registration) Cancel() error {
	return r.bus.Unregister(r)
}

func (r *Registration) matches(ev *Event) bool {
	return r.base == ev.Base && (r.id == AnyID || r.id == ev.ID)
}

func (r *Registration) invoke(log Logger, ev *Event) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if !r.active {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("Handler %v panicked on %v: %v", r.Id, ev, p)
		}
	}()

	r.handler(ev)
}

type Config struct {
	// QueueSize is the backlog of undelivered events above which a warning
	// is logged. Posting never blocks, handlers post from the dispatch
	// goroutine.
	QueueSize int
	Logger    Logger
}

type nextRegistration struct {
	sync.Mutex
	id uint32
}

// Bus is a publish/subscribe event loop. Events are delivered in the
// order they were posted by a single dispatch goroutine, so handlers never
// run concurrently with each other.
type Bus struct {
	log              Logger
	queueSize        int
	mtx              sync.RWMutex
	registrations    []*Registration
	nextRegistration nextRegistration
	running          bool
	pending          []*Event
	backlogged       bool
	wake             chan struct{}
	done             chan struct{}
	stopped          chan struct{}
}

func NewBus(config *Config) *Bus {
	bus := &Bus{
		queueSize: config.QueueSize,
	}

	if bus.queueSize <= 0 {
		bus.queueSize = defaultQueueSize
	}

	if config.Logger != nil {
		bus.log = config.Logger
	} else {
		bus.log = noopLogger{}
	}

	return bus
}

// Start launches the dispatch goroutine. Starting a running bus is a no-op.
func (b *Bus) Start() error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.running {
		return nil
	}

	b.pending = nil
	b.backlogged = false
	b.wake = make(chan struct{}, 1)
	b.done = make(chan struct{})
	b.stopped = make(chan struct{})
	b.running = true

	go b.dispatch(b.wake, b.done, b.stopped)

	b.log.Debugf("Started event bus")

	return nil
}

// Stop terminates the dispatch goroutine and drops undelivered events.
// It must not be called from within a handler.
func (b *Bus) Stop() error {
	b.mtx.Lock()

	if !b.running {
		b.mtx.Unlock()
		return nil
	}

	b.running = false
	b.pending = nil
	close(b.done)
	stopped := b.stopped

	b.mtx.Unlock()

	<-stopped

	b.log.Debugf("Stopped event bus")

	return nil
}

// Running reports whether the dispatch goroutine is active.
func (b *Bus) Running() bool {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	return b.running
}

// Registrations returns the number of registered handlers.
func (b *Bus) Registrations() int {
	b.mtx.RLock()
	defer b.mtx.RUnlock()

	return len(b.registrations)
}

// Register subscribes handler to events of base. Use AnyID to receive
// every event of the family.
func (b *Bus) Register(base Base, id ID, handler Handler) (*Registration, error) {
	if handler == nil {
		return nil, errors.Errorf("could not register nil handler for %v", base)
	}

	reg := &Registration{
		base:    base,
		id:      id,
		handler: handler,
		bus:     b,
		active:  true,
	}

	b.nextRegistration.Lock()
	reg.Id = b.nextRegistration.id
	b.nextRegistration.id++
	b.nextRegistration.Unlock()

	b.mtx.Lock()
	b.registrations = append(b.registrations, reg)
	b.mtx.Unlock()

	return reg, nil
}

// Unregister removes the handler. When it returns, the handler is not
// running and will never be invoked again. Calling it from within the
// handler being removed deadlocks.
func (b *Bus) Unregister(reg *Registration) error {
	if reg == nil {
		return ErrNotRegistered
	}

	b.mtx.Lock()

	found := false
	kept := b.registrations[:0]
	for _, r := range b.registrations {
		if r == reg {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(b.registrations); i++ {
		b.registrations[i] = nil
	}
	b.registrations = kept

	b.mtx.Unlock()

	if !found {
		return ErrNotRegistered
	}

	// wait for an in-flight invocation
	reg.mtx.Lock()
	reg.active = false
	reg.mtx.Unlock()

	return nil
}

// Post queues an event for delivery and returns without waiting for it.
// It is safe to call from within a handler.
func (b *Bus) Post(ctx context.Context, base Base, id ID, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := &Event{
		Base: base,
		ID:   id,
		Data: data,
	}

	b.mtx.Lock()

	if !b.running {
		b.mtx.Unlock()
		return ErrBusStopped
	}

	b.pending = append(b.pending, ev)

	if len(b.pending) > b.queueSize && !b.backlogged {
		b.backlogged = true
		b.log.Warnf("Event backlog of %d exceeds %d, handlers are slow", len(b.pending), b.queueSize)
	}

	wake := b.wake

	b.mtx.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}

	return nil
}

func (b *Bus) dispatch(wake <-chan struct{}, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	for {
		select {
		case <-wake:
		case <-done:
			return
		}

		for {
			select {
			case <-done:
				return
			default:
			}

			ev := b.next()
			if ev == nil {
				break
			}

			b.deliver(ev)
		}
	}
}

// next pops the oldest pending event or returns nil.
func (b *Bus) next() *Event {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if len(b.pending) == 0 {
		b.backlogged = false
		return nil
	}

	ev := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]

	return ev
}

func (b *Bus) deliver(ev *Event) {
	b.mtx.RLock()
	var matching []*Registration
	for _, reg := range b.registrations {
		if reg.matches(ev) {
			matching = append(matching, reg)
		}
	}
	b.mtx.RUnlock()

	b.log.Debugf("Dispatching %v to %d handlers", ev, len(matching))

	for _, reg := range matching {
		reg.invoke(b.log, ev)
	}
}
