package discrete

import (
	"context"
	"fmt"
	"strconv"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

// DigitalReader is satisfied by gobot platform adaptors.
type DigitalReader interface {
	DigitalRead(pin string) (int, error)
}

// BoardInputs reads discretes wired to the header pins of a single board
// computer through its gobot adaptor.
type BoardInputs struct {
	board DigitalReader
	pins  []string
}

func NewBoardInputs(board DigitalReader, pins ...string) *BoardInputs {
	return &BoardInputs{board: board, pins: pins}
}

// OpenNanoPiInputs connects to the NanoPi NEO header. The returned function
// releases the adaptor.
func OpenNanoPiInputs(pins ...string) (*BoardInputs, func() error, error) {
	a := nanopi.NewNeoAdaptor()
	if err := a.Connect(); err != nil {
		return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	return NewBoardInputs(a, pins...), a.Finalize, nil
}

func (b *BoardInputs) States(ctx context.Context) []State {
	out := make([]State, len(b.pins))
	for i, pin := range b.pins {
		line, err := strconv.Atoi(pin)
		if err != nil {
			line = i
		}
		out[i] = State{Index: i, Line: line}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		v, err := b.board.DigitalRead(pin)
		if err != nil {
			out[i].Err = fmt.Errorf("read pin %s: %w", pin, err)
			continue
		}
		out[i].Value = v != 0
	}
	return out
}
