package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/acquisition"
	"github.com/mklimuk/arinc429/cmd/arinc/console"
)

var readFlags = []cli.Flag{
	&cli.IntFlag{
		Name:    "channel",
		Aliases: []string{"ch"},
		Usage:   "receive channel",
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "maximum wait for data (defaults to read.timeout_ms)",
	},
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "wait for one word on a channel",
	Flags: readFlags,
	Action: func(c *cli.Context) error {
		return timedRead(c, func(e *env, q arinc429.QueueID, core arinc429.CoreHandle, timeout time.Duration, done func(error)) {
			e.session.ReadOnce(q, core, timeout, func(out acquisition.WordOutcome) {
				if out.Err == nil {
					console.Word(c.Int("channel"), out.Value, time.Now().UnixMilli())
				}
				done(outcomeErr(out.Status, out.Code, out.Err))
			})
		})
	},
}

var readBlockCmd = cli.Command{
	Name:  "read-block",
	Usage: "wait for data on a channel and read up to --count words",
	Flags: append([]cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Value: 16,
			Usage: "maximum number of words (0..65535)",
		},
	}, readFlags...),
	Action: func(c *cli.Context) error {
		return timedRead(c, func(e *env, q arinc429.QueueID, core arinc429.CoreHandle, timeout time.Duration, done func(error)) {
			e.session.ReadBlockOnce(q, core, c.Int("count"), timeout, func(out acquisition.BlockOutcome) {
				now := time.Now().UnixMilli()
				for _, w := range out.Values {
					console.Word(c.Int("channel"), w, now)
				}
				if out.Err == nil {
					console.Infof("%d words read", len(out.Values))
				}
				done(outcomeErr(out.Status, out.Code, out.Err))
			})
		})
	},
}

func outcomeErr(status string, code arinc429.Code, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s (%d): %w", status, code, err)
}

// timedRead opens the card, starts it without the poller and runs one timed
// read on the command loop.
func timedRead(c *cli.Context, start func(e *env, q arinc429.QueueID, core arinc429.CoreHandle, timeout time.Duration, done func(error))) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	ch := c.Int("channel")
	if ch < 0 || ch >= e.cfg.Receiver.Channels {
		return console.Exit(1, "channel must be in 0..%d", e.cfg.Receiver.Channels-1)
	}
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		timeout = e.cfg.ReadTimeout()
	}

	core, err := e.open(func(acquisition.Batch) {}, printReport)
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.card.StartCard(core); err != nil {
		return console.Exit(2, "start card: %v", err)
	}
	defer e.card.StopCard(core)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	e.traffic(ctx)

	var result error
	start(e, e.session.Queues()[ch], core, timeout, func(err error) {
		result = err
		e.loop.Close()
	})
	_ = e.loop.Run(ctx)
	if result != nil {
		return console.Exit(3, "%v", result)
	}
	return nil
}
