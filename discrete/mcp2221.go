package discrete

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
)

const (
	MCP2221VendorID  = 0x04D8
	MCP2221ProductID = 0x00DD
)

// MCP2221Lines is the number of GPIO pins on the chip.
const MCP2221Lines = 4

var (
	ErrCommandFailed = errors.New("command failed")
	ErrNoDevice      = errors.New("MCP2221 device not found")
)

const (
	cmdSetSRAM  byte = 0xB1
	cmdReadGPIO byte = 0x51

	// GP designation bits 2..0 = 000 (GPIO operation), bit 3 = 1 (input)
	gpioInput byte = 0b00001000
	// value reported for pins not configured as GPIO
	gpioNoOperation byte = 0xEF
)

type MCP2221Opts struct {
	// Index selects the device when several are attached. -1 requires a
	// single device.
	Index        int
	ResponseWait time.Duration
	Logger       *slog.Logger
}

type MCP2221Opt func(*MCP2221Opts)

func WithDeviceIndex(i int) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Index = i
	}
}

func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = d
	}
}

// MCP2221Inputs reads discretes wired to the GPIO pins of an MCP2221 USB
// bridge. Every exchange is a 64 byte HID report followed by a 64 byte
// response.
type MCP2221Inputs struct {
	mx       sync.Mutex
	config   MCP2221Opts
	log      *slog.Logger
	request  []byte
	response []byte
}

func NewMCP2221Inputs(opts ...MCP2221Opt) *MCP2221Inputs {
	config := MCP2221Opts{
		Index:        -1,
		ResponseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &MCP2221Inputs{
		config:   config,
		log:      config.Logger.With("device", "mcp2221"),
		request:  make([]byte, 64),
		response: make([]byte, 64),
	}
}

// Configure switches all four pins to GPIO inputs in SRAM. The flash
// defaults are left alone, so the setting is lost on power cycle.
func (d *MCP2221Inputs) Configure(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	clear(d.request)
	clear(d.response)
	d.request[0] = cmdSetSRAM
	// alter GP designation
	d.request[7] = 0x80
	for i := range MCP2221Lines {
		d.request[8+i] = gpioInput
	}
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set GP designation failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221Inputs) States(ctx context.Context) []State {
	d.mx.Lock()
	defer d.mx.Unlock()
	clear(d.request)
	clear(d.response)
	d.request[0] = cmdReadGPIO
	err := d.send(ctx)
	if err == nil && d.response[1] != 0x00 {
		err = ErrCommandFailed
	}
	if err != nil {
		out := make([]State, MCP2221Lines)
		for i := range out {
			out[i] = State{Index: i, Line: i, Err: fmt.Errorf("read GPIO values: %w", err)}
		}
		return out
	}
	return parseGPIOValues(d.response)
}

// parseGPIOValues decodes a read GPIO response. Bytes 2,4,6,8 carry pin
// values and 3,5,7,9 their direction.
func parseGPIOValues(resp []byte) []State {
	out := make([]State, MCP2221Lines)
	for i := range out {
		out[i] = State{Index: i, Line: i}
		value, dir := resp[2+2*i], resp[3+2*i]
		if value == gpioNoOperation || dir == gpioNoOperation {
			out[i].Err = fmt.Errorf("GP%d is not configured as GPIO", i)
			continue
		}
		out[i].Value = value == 0x01
	}
	return out
}

func (d *MCP2221Inputs) open() (*hid.Device, error) {
	devs := hid.Enumerate(MCP2221VendorID, MCP2221ProductID)
	switch {
	case len(devs) == 0:
		return nil, ErrNoDevice
	case d.config.Index < 0 && len(devs) > 1:
		return nil, fmt.Errorf("ambiguous device identification: %d devices attached", len(devs))
	case d.config.Index >= len(devs):
		return nil, fmt.Errorf("no device with index %d", d.config.Index)
	}
	idx := max(d.config.Index, 0)
	dev, err := devs[idx].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221Inputs) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("close device", "error", err)
		}
	}()
	if d.log.Enabled(ctx, slog.LevelDebug) {
		d.log.Debug("sending message to adapter\n" + hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != len(d.request) {
		return fmt.Errorf("short write: %d", n)
	}
	t := time.NewTimer(d.config.ResponseWait)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != len(d.response) {
		return fmt.Errorf("short read: %d", n)
	}
	if d.log.Enabled(ctx, slog.LevelDebug) {
		d.log.Debug("read message from adapter\n" + hex.Dump(d.response))
	}
	return nil
}
