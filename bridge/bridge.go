package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosing is returned by Deliver once the bridge was aborted or released.
var ErrClosing = errors.New("bridge: closing")

type state int

const (
	stateOpen state = iota
	stateAborted
	stateReleased
)

type BridgeOpts struct {
	// QueueSize bounds the number of undelivered payloads. Zero means
	// unbounded. When the bound is reached Deliver blocks until the consumer
	// catches up or the bridge is aborted.
	QueueSize int
}

type BridgeOpt func(*BridgeOpts)

func WithQueueSize(size int) BridgeOpt {
	return func(o *BridgeOpts) {
		o.QueueSize = size
	}
}

// Bridge carries payloads from a producer goroutine to a consumer callback
// running on a Loop. Payloads are delivered in Deliver order.
type Bridge[T any] struct {
	name  string
	loop  *Loop
	fn    func(T)
	limit int

	mx      sync.Mutex
	state   state
	pending int
	space   chan struct{} // closed and replaced whenever pending shrinks or state changes

	release   sync.Once
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func New[T any](name string, loop *Loop, fn func(T), opts ...BridgeOpt) *Bridge[T] {
	var config BridgeOpts
	for _, opt := range opts {
		opt(&config)
	}
	return &Bridge[T]{
		name:  name,
		loop:  loop,
		fn:    fn,
		limit: config.QueueSize,
		space: make(chan struct{}),
	}
}

// Deliver enqueues v for the consumer and returns without waiting for the
// callback. Ownership of v passes to the bridge on success.
func (b *Bridge[T]) Deliver(v T) error {
	b.mx.Lock()
	for b.state == stateOpen && b.limit > 0 && b.pending >= b.limit {
		space := b.space
		b.mx.Unlock()
		select {
		case <-space:
		case <-b.loop.Done():
			b.dropped.Add(1)
			return fmt.Errorf("bridge %s: %w", b.name, ErrLoopClosed)
		}
		b.mx.Lock()
	}
	if b.state != stateOpen {
		b.mx.Unlock()
		b.dropped.Add(1)
		return ErrClosing
	}
	b.pending++
	b.mx.Unlock()

	err := b.loop.Post(func() { b.dispatch(v) })
	if err != nil {
		b.mx.Lock()
		b.pending--
		b.signalLocked()
		b.mx.Unlock()
		b.dropped.Add(1)
		return fmt.Errorf("bridge %s: %w", b.name, err)
	}
	return nil
}

func (b *Bridge[T]) dispatch(v T) {
	b.mx.Lock()
	b.pending--
	b.signalLocked()
	live := b.state == stateOpen
	b.mx.Unlock()
	if !live {
		b.dropped.Add(1)
		return
	}
	b.fn(v)
	b.delivered.Add(1)
}

// Abort fails every later Deliver, unblocks producers waiting for queue
// space and drops payloads not yet handed to the consumer.
func (b *Bridge[T]) Abort() {
	b.mx.Lock()
	if b.state == stateOpen {
		b.state = stateAborted
		b.signalLocked()
	}
	b.mx.Unlock()
}

// Release retires the bridge. Only the first call has an effect and reports
// true.
func (b *Bridge[T]) Release() bool {
	released := false
	b.release.Do(func() {
		b.mx.Lock()
		b.state = stateReleased
		b.signalLocked()
		b.mx.Unlock()
		released = true
	})
	return released
}

// Valid reports whether Deliver can still succeed.
func (b *Bridge[T]) Valid() bool {
	b.mx.Lock()
	open := b.state == stateOpen
	b.mx.Unlock()
	return open && !b.loop.Closed()
}

func (b *Bridge[T]) Name() string {
	return b.name
}

// Stats returns the number of payloads handed to the consumer and the number
// discarded.
func (b *Bridge[T]) Stats() (delivered, dropped uint64) {
	return b.delivered.Load(), b.dropped.Load()
}

func (b *Bridge[T]) signalLocked() {
	close(b.space)
	b.space = make(chan struct{})
}
