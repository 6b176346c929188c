package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/bridge"
)

var ErrBlockCount = errors.New("invalid block word count")

type ReadOpts struct {
	// Interval is the sleep between status checks while the queue is empty.
	Interval time.Duration
	Logger   *slog.Logger
}

type ReadOpt func(*ReadOpts)

func WithPollInterval(d time.Duration) ReadOpt {
	return func(o *ReadOpts) {
		o.Interval = d
	}
}

func WithReadLogger(l *slog.Logger) ReadOpt {
	return func(o *ReadOpts) {
		o.Logger = l
	}
}

func readOpts(opts []ReadOpt) ReadOpts {
	config := ReadOpts{Interval: DefaultReadInterval}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReadInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

// ReadWord polls q until it holds data and reads one word. It fails with
// ErrTimeout once timeout elapses without data and returns a queue status
// error as soon as one is seen.
func ReadWord(ctx context.Context, card arinc429.Card, q arinc429.QueueID, core arinc429.CoreHandle, timeout time.Duration, opts ...ReadOpt) (arinc429.Word, error) {
	config := readOpts(opts)
	var w arinc429.Word
	err := poll(ctx, card, q, core, timeout, config.Interval, func() error {
		w = card.ReadWord(q, core)
		return nil
	})
	return w, err
}

// ReadBlock polls q until it holds data and reads up to count words. A read
// that fails because the queue drained before any word was taken succeeds
// with no words; one that fails after taking words is an underflow.
func ReadBlock(ctx context.Context, card arinc429.Card, q arinc429.QueueID, core arinc429.CoreHandle, count int, timeout time.Duration, opts ...ReadOpt) ([]arinc429.Word, error) {
	if count < 0 || count > MaxBlockCount {
		return nil, fmt.Errorf("%w: %d not in 0..%d", ErrBlockCount, count, MaxBlockCount)
	}
	if count == 0 {
		return []arinc429.Word{}, nil
	}
	config := readOpts(opts)
	var out []arinc429.Word
	err := poll(ctx, card, q, core, timeout, config.Interval, func() error {
		buf := make([]arinc429.Word, count)
		n, err := card.ReadBlock(buf, q, core)
		n = min(max(n, 0), len(buf))
		if err == nil {
			out = buf[:n]
			return nil
		}
		st, serr := card.QueueStatus(q, core)
		switch {
		case serr != nil:
			return describe(card, serr, core)
		case st == arinc429.QueueEmpty && n == 0:
			out = buf[:0]
			return nil
		case st == arinc429.QueueEmpty:
			return fmt.Errorf("read block after %d words: %w", n, arinc429.ErrUnderflow)
		default:
			return describe(card, err, core)
		}
	})
	return out, err
}

func poll(ctx context.Context, card arinc429.Card, q arinc429.QueueID, core arinc429.CoreHandle, timeout, interval time.Duration, read func() error) error {
	start := time.Now()
	for {
		st, err := card.QueueStatus(q, core)
		if err != nil {
			return describe(card, err, core)
		}
		if st.HasData() {
			return read()
		}
		elapsed := time.Since(start)
		if elapsed >= timeout {
			return fmt.Errorf("queue %d after %s: %w", q, timeout, arinc429.ErrTimeout)
		}
		t := time.NewTimer(min(interval, timeout-elapsed))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

type WordOutcome struct {
	Status string
	Code   arinc429.Code
	Value  arinc429.Word
	Err    error
}

type BlockOutcome struct {
	Status string
	Code   arinc429.Code
	Values []arinc429.Word
	Err    error
}

// Reader runs timed reads off the caller goroutine and posts each outcome to
// a Loop exactly once.
type Reader struct {
	card arinc429.Card
	loop *bridge.Loop
	opts []ReadOpt
	log  *slog.Logger
}

func NewReader(card arinc429.Card, loop *bridge.Loop, opts ...ReadOpt) *Reader {
	return &Reader{
		card: card,
		loop: loop,
		opts: opts,
		log:  readOpts(opts).Logger,
	}
}

func (r *Reader) ReadOnce(q arinc429.QueueID, core arinc429.CoreHandle, timeout time.Duration, done func(WordOutcome)) {
	go func() {
		w, err := ReadWord(context.Background(), r.card, q, core, timeout, r.opts...)
		code := arinc429.CodeOf(err)
		out := WordOutcome{Status: code.Status(), Code: code, Value: w, Err: err}
		r.post(q, func() { done(out) })
	}()
}

func (r *Reader) ReadBlockOnce(q arinc429.QueueID, core arinc429.CoreHandle, count int, timeout time.Duration, done func(BlockOutcome)) {
	go func() {
		words, err := ReadBlock(context.Background(), r.card, q, core, count, timeout, r.opts...)
		code := arinc429.CodeOf(err)
		out := BlockOutcome{Status: code.Status(), Code: code, Values: words, Err: err}
		r.post(q, func() { done(out) })
	}()
}

func (r *Reader) post(q arinc429.QueueID, fn func()) {
	if err := r.loop.Post(fn); err != nil {
		r.log.Warn("read outcome dropped", "queue", q, "error", err)
	}
}
