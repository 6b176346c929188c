package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/arinc429/acquisition"
	"github.com/mklimuk/arinc429/cmd/arinc/console"
)

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "receive on every channel until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "duration",
			Usage: "stop after this long (0 runs until interrupted)",
		},
		&cli.BoolFlag{
			Name:  "summary",
			Usage: "print one line per batch instead of every word (ignored with --verbose)",
		},
	},
	Action: func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if d := c.Duration("duration"); d > 0 {
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		summary := c.Bool("summary") && !console.IsVerbose(c.Context)
		var words, batches, reports int
		onData := func(b acquisition.Batch) {
			batches++
			words += len(b)
			if summary {
				console.Printf("batch of %d words\n", len(b))
				return
			}
			for _, a := range b {
				console.Word(a.Channel, a.Word, a.Timestamp)
			}
		}
		onError := func(r acquisition.ErrorReport) {
			reports++
			printReport(r)
		}

		core, err := e.open(onData, onError)
		if err != nil {
			return err
		}
		start := e.session.StartMonitoring(core)
		if !start.Success {
			e.close()
			return console.Exit(2, "start monitoring: %s", start)
		}
		console.PInfof(console.PictoClock, "monitoring, press Ctrl+C to stop")
		e.traffic(ctx)

		stale := e.cfg.StaleThreshold()
		go func() {
			ticker := time.NewTicker(max(stale, time.Second))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					_ = e.loop.Post(func() {
						console.PInfof(console.PictoStop, "stopping monitoring")
						if r := e.session.StopMonitoring(core); !r.Success {
							console.Errorf("stop monitoring: %s", r)
						}
						e.loop.Close()
					})
					return
				case <-ticker.C:
				}
				_ = e.loop.Post(func() {
					for _, entry := range e.session.Latest().Stale(e.session.Clock().Elapsed(), stale) {
						console.PInfof(console.PictoGhost, "ch%d label %03o stale for %s", entry.Channel, entry.Label,
							(e.session.Clock().Elapsed() - entry.Elapsed).Truncate(time.Millisecond))
					}
				})
			}
		}()

		// consumer callbacks run here until the loop is closed
		_ = e.loop.Run(context.Background())

		console.PInfof(console.PictoNotebook, "latest values")
		for _, entry := range e.session.Latest().Snapshot() {
			console.Word(entry.Channel, entry.Word, entry.Timestamp)
		}
		e.close()
		console.PInfof(console.PictoFinish, "%d words in %d batches, %d error reports", words, batches, reports)
		return nil
	},
}
