package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/acquisition"
	"github.com/mklimuk/arinc429/adapter"
	"github.com/mklimuk/arinc429/bridge"
	"github.com/mklimuk/arinc429/cmd/arinc/console"
	"github.com/mklimuk/arinc429/config"
)

// env bundles what every hardware command needs.
type env struct {
	cfg     config.Config
	card    arinc429.Card
	sim     *adapter.Simulator
	loop    *bridge.Loop
	session *acquisition.Session
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, console.Exit(1, "%v", err)
		}
	}
	if name := c.String("adapter"); name != "" {
		cfg.Card.Adapter = name
	}
	return cfg, nil
}

func newEnv(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, loop: bridge.NewLoop()}
	if cfg.Card.Adapter == "sim" {
		e.sim = adapter.NewSimulator(
			adapter.WithDevices(cfg.Simulator.Devices),
			adapter.WithSeed(cfg.Simulator.Seed),
		)
		e.card = e.sim
	} else {
		e.card, err = adapter.New(cfg.Card.Adapter)
		if err != nil {
			return nil, console.Exit(1, "%v", err)
		}
	}
	e.session = acquisition.NewSession(e.card, e.loop, cfg.Options()...)
	return e, nil
}

// traffic feeds the simulator until ctx is done. It is a no-op for real
// cards.
func (e *env) traffic(ctx context.Context) {
	if e.sim == nil {
		return
	}
	interval := time.Duration(e.cfg.Simulator.TrafficMs) * time.Millisecond
	if interval <= 0 {
		return
	}
	go func() {
		err := e.sim.Traffic(ctx, interval, e.cfg.Simulator.WordsPerTick)
		slog.Debug("simulated traffic stopped", "error", err)
	}()
}

// open runs the two initialization steps and returns the core handle.
func (e *env) open(onData func(acquisition.Batch), onError func(acquisition.ErrorReport)) (arinc429.CoreHandle, error) {
	hw := e.session.InitializeHardware()
	if !hw.Success {
		return 0, console.Exit(2, "initialize hardware: %s", hw)
	}
	console.PInfof(console.PictoPlug, "card %d open (device %#x core %#x)", e.cfg.Card.Device, hw.Device, hw.Core)
	rx := e.session.InitializeReceiver(hw.Core, onData, onError)
	if !rx.Success {
		e.close()
		return 0, console.Exit(2, "initialize receiver: %s", rx)
	}
	console.PInfof(console.PictoAntenna, "%s", rx.Message)
	return hw.Core, nil
}

func (e *env) close() {
	if r := e.session.Cleanup(); !r.Success {
		console.Errorf("cleanup: %s", r)
	}
}

func printReport(r acquisition.ErrorReport) {
	if r.Global() {
		console.Printf("%s %s\n", console.Status(r.Status), r.Message)
		return
	}
	console.Printf("%s ch%s %s\n", console.Status(r.Status), console.Cyan(r.Channel), r.Message)
}
