package discrete

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/arinc429"
)

// DefaultLines maps the eight discrete inputs to card DIO numbers.
var DefaultLines = []int{1, 2, 3, 4, 9, 10, 11, 12}

type State struct {
	// Index is the position of the input, starting at 0.
	Index int
	// Line is the source specific line number (DIO number, pin number).
	Line  int
	Value bool
	Err   error
}

func (s State) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("DI%d(%d)=error: %v", s.Index, s.Line, s.Err)
	case s.Value:
		return fmt.Sprintf("DI%d(%d)=on", s.Index, s.Line)
	default:
		return fmt.Sprintf("DI%d(%d)=off", s.Index, s.Line)
	}
}

// Reader samples every input it knows of. A failing input reports its error
// in State.Err without hiding the others.
type Reader interface {
	States(ctx context.Context) []State
}

// CardInputs reads discretes through the card driver.
type CardInputs struct {
	card  arinc429.Card
	core  arinc429.CoreHandle
	lines []int
}

func NewCardInputs(card arinc429.Card, core arinc429.CoreHandle, lines ...int) *CardInputs {
	if len(lines) == 0 {
		lines = DefaultLines
	}
	return &CardInputs{card: card, core: core, lines: lines}
}

func (c *CardInputs) States(ctx context.Context) []State {
	out := make([]State, len(c.lines))
	for i, line := range c.lines {
		out[i] = State{Index: i, Line: line}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		v, err := c.card.ReadDiscrete(line, c.core)
		if err != nil {
			out[i].Err = fmt.Errorf("read DIO %d: %w", line, err)
			continue
		}
		out[i].Value = v
	}
	return out
}

// Watch samples r every interval and calls fn with the full set first and
// afterwards only with inputs whose value or error state changed. It returns
// when ctx is done.
func Watch(ctx context.Context, r Reader, interval time.Duration, fn func([]State)) error {
	prev := r.States(ctx)
	fn(prev)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		cur := r.States(ctx)
		if changed := diff(prev, cur); len(changed) > 0 {
			fn(changed)
		}
		prev = cur
	}
}

func diff(prev, cur []State) []State {
	var out []State
	for i, s := range cur {
		if i >= len(prev) {
			out = append(out, s)
			continue
		}
		p := prev[i]
		if p.Value != s.Value || (p.Err == nil) != (s.Err == nil) {
			out = append(out, s)
		}
	}
	return out
}
