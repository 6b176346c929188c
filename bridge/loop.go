package bridge

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopClosed = errors.New("bridge: loop closed")

// Loop is the host execution context. Posted functions run one at a time, in
// post order, on the goroutine that calls Run.
type Loop struct {
	mx     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post schedules fn on the loop. It never blocks.
func (l *Loop) Post(fn func()) error {
	l.mx.Lock()
	if l.closed {
		l.mx.Unlock()
		return ErrLoopClosed
	}
	l.queue = append(l.queue, fn)
	l.mx.Unlock()
	l.signal()
	return nil
}

// Run executes posted functions until the context is done or Close is
// called. Functions posted before Close still run.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mx.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mx.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Flush blocks until every function posted before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := l.Post(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Close() {
	l.mx.Lock()
	l.closed = true
	l.mx.Unlock()
	l.closeOnce.Do(func() { close(l.done) })
	l.signal()
}

// Done is closed once the loop stops accepting work.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) Closed() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.closed
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
