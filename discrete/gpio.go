package discrete

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOInputs reads discretes wired to host GPIO pins.
type GPIOInputs struct {
	pins []gpio.PinIO
}

// OpenGPIOInputs initializes the host drivers and configures the named pins
// as inputs without touching their pull resistors.
func OpenGPIOInputs(names ...string) (*GPIOInputs, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pins := make([]gpio.PinIO, 0, len(names))
	for _, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("gpio pin %q not found", name)
		}
		pins = append(pins, p)
	}
	return NewGPIOInputs(pins...)
}

func NewGPIOInputs(pins ...gpio.PinIO) (*GPIOInputs, error) {
	for _, p := range pins {
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("could not configure %s as input: %w", p.Name(), err)
		}
	}
	return &GPIOInputs{pins: pins}, nil
}

func (g *GPIOInputs) States(ctx context.Context) []State {
	out := make([]State, len(g.pins))
	for i, p := range g.pins {
		out[i] = State{Index: i, Line: p.Number()}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		out[i].Value = p.Read() == gpio.High
	}
	return out
}
