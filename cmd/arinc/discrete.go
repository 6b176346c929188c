package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/arinc429/cmd/arinc/console"
	"github.com/mklimuk/arinc429/discrete"
)

var discreteCmd = cli.Command{
	Name:  "discrete",
	Usage: "read the discrete inputs",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "card, gpio, nanopi, mcp2221 or expander (defaults to discrete.source)",
		},
		&cli.StringSliceFlag{
			Name:  "pin",
			Usage: "pin name for the gpio and nanopi sources, repeatable",
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "keep sampling and print changes until interrupted",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if s := c.String("source"); s != "" {
			cfg.Discrete.Source = s
		}
		if pins := c.StringSlice("pin"); len(pins) > 0 {
			cfg.Discrete.Pins = pins
		}
		if err := cfg.Validate(); err != nil {
			return console.Exit(1, "%v", err)
		}
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var r discrete.Reader
		switch cfg.Discrete.Source {
		case "card":
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			hw := e.session.InitializeHardware()
			if !hw.Success {
				return console.Exit(2, "initialize hardware: %s", hw)
			}
			defer e.close()
			r = discrete.NewCardInputs(e.card, hw.Core, cfg.Discrete.Lines...)
		case "gpio":
			g, err := discrete.OpenGPIOInputs(cfg.Discrete.Pins...)
			if err != nil {
				return console.Exit(2, "%v", err)
			}
			r = g
		case "nanopi":
			b, finalize, err := discrete.OpenNanoPiInputs(cfg.Discrete.Pins...)
			if err != nil {
				return console.Exit(2, "%v", err)
			}
			defer func() { _ = finalize() }()
			r = b
		case "mcp2221":
			d := discrete.NewMCP2221Inputs()
			if err := d.Configure(ctx); err != nil {
				return console.Exit(2, "configure MCP2221: %v", err)
			}
			r = d
		case "expander":
			bus, err := discrete.OpenI2CBus(cfg.Discrete.I2CBus)
			if err != nil {
				return console.Exit(2, "%v", err)
			}
			defer func() { _ = bus.Close() }()
			x := discrete.NewExpanderInputs(bus, byte(cfg.Discrete.Address))
			if err := x.Configure(ctx, cfg.Discrete.PullUp); err != nil {
				return console.Exit(2, "%v", err)
			}
			r = x
		}

		show := func(states []discrete.State) {
			for _, s := range states {
				if s.Err != nil {
					console.Warnf("%s", s)
					continue
				}
				console.PInfof(console.PictoPin, "%s", s)
			}
		}
		if !c.Bool("watch") {
			show(r.States(ctx))
			return nil
		}
		interval := time.Duration(cfg.Discrete.IntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = 200 * time.Millisecond
		}
		err = discrete.Watch(ctx, r, interval, show)
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Exit(3, "%v", err)
		}
		return nil
	},
}
