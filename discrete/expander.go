package discrete

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const DefaultExpanderAddress = 0x20

// ExpanderLines is the number of inputs on the two expander ports.
const ExpanderLines = 16

// ErrBusBusy is returned by buses that could not complete a transfer and may
// succeed after Release.
var ErrBusBusy = errors.New("i2c bus busy")

// I2CBus is the transport used by ExpanderInputs.
type I2CBus interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// MCP23017 register addresses with IOCON.BANK = 0, the power on default.
const (
	regIODIRA byte = 0x00
	regIODIRB byte = 0x01
	regGPPUA  byte = 0x0C
	regGPPUB  byte = 0x0D
	regGPIOA  byte = 0x12
	regGPIOB  byte = 0x13
)

// ExpanderInputs reads discretes wired to an MCP23017 port expander. Port A
// maps to lines 0-7 and port B to lines 8-15.
type ExpanderInputs struct {
	mx      sync.Mutex
	bus     I2CBus
	address byte
	retries int
}

func NewExpanderInputs(bus I2CBus, address byte) *ExpanderInputs {
	return &ExpanderInputs{bus: bus, address: address, retries: 2}
}

// Configure makes every pin an input, with pull-ups enabled when pullUp is
// set.
func (e *ExpanderInputs) Configure(ctx context.Context, pullUp bool) error {
	var pu byte
	if pullUp {
		pu = 0xFF
	}
	for _, w := range [][2]byte{{regIODIRA, 0xFF}, {regIODIRB, 0xFF}, {regGPPUA, pu}, {regGPPUB, pu}} {
		if err := e.write(ctx, w[0], w[1]); err != nil {
			return fmt.Errorf("configure expander register %#02x: %w", w[0], err)
		}
	}
	return nil
}

func (e *ExpanderInputs) States(ctx context.Context) []State {
	out := make([]State, ExpanderLines)
	for port, reg := range []byte{regGPIOA, regGPIOB} {
		v, err := e.read(ctx, reg)
		for bit := range 8 {
			i := port*8 + bit
			out[i] = State{Index: i, Line: i}
			if err != nil {
				out[i].Err = fmt.Errorf("read port %c: %w", 'A'+port, err)
				continue
			}
			out[i].Value = v&(1<<bit) != 0
		}
	}
	return out
}

func (e *ExpanderInputs) write(ctx context.Context, reg, value byte) error {
	return e.retry(ctx, func() error {
		return e.bus.WriteToAddr(ctx, e.address, []byte{reg, value})
	})
}

func (e *ExpanderInputs) read(ctx context.Context, reg byte) (byte, error) {
	buf := make([]byte, 1)
	err := e.retry(ctx, func() error {
		if err := e.bus.WriteToAddr(ctx, e.address, []byte{reg}); err != nil {
			return err
		}
		return e.bus.ReadFromAddr(ctx, e.address, buf)
	})
	return buf[0], err
}

// retry runs fn, releasing the bus and trying again while it reports busy.
func (e *ExpanderInputs) retry(ctx context.Context, fn func() error) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	var err error
	for range e.retries {
		if err = fn(); err == nil || !errors.Is(err, ErrBusBusy) {
			return err
		}
		_ = e.bus.Release(ctx)
	}
	return fmt.Errorf("retry limit reached: %w", err)
}

// PeriphBus is an I2CBus on a host bus opened through periph.
type PeriphBus struct {
	bus i2c.BusCloser
}

// OpenI2CBus opens the named host bus, "" selects the first one.
func OpenI2CBus(name string) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &PeriphBus{bus: bus}, nil
}

func (b *PeriphBus) ReadFromAddr(_ context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c address %#x: %w", address, err)
	}
	return nil
}

func (b *PeriphBus) WriteToAddr(_ context.Context, address byte, buffer []byte) error {
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c address %#x: %w", address, err)
	}
	return nil
}

func (b *PeriphBus) Release(context.Context) error {
	return nil
}

func (b *PeriphBus) Close() error {
	return b.bus.Close()
}
