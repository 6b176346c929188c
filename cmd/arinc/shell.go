package main

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/acquisition"
	"github.com/mklimuk/arinc429/adapter"
	"github.com/mklimuk/arinc429/cmd/arinc/console"
)

const shellHelp = `commands:
  init                         open the card
  receiver                     configure channels and queues
  start                        start monitoring
  stop                         stop monitoring
  cleanup                      close the card
  read <ch> [timeout]          wait for one word
  block <ch> <count> [timeout] wait for up to count words
  latest                       print the latest value table
  stale [threshold]            print entries not refreshed within threshold
  state                        print the session state
  push <ch> <hex word>...      queue words on a simulated channel
  fault <op> <ch> <code>       make a simulated call fail ("clear" resets)
  quiet                        toggle printing of received words
  help                         print this help
  quit                         clean up and exit`

var shellCmd = cli.Command{
	Name:  "shell",
	Usage: "interactive session driving the acquisition lifecycle step by step",
	Action: func(c *cli.Context) error {
		e, err := newEnv(c)
		if err != nil {
			return err
		}
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "arinc> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("init"), readline.PcItem("receiver"), readline.PcItem("start"),
				readline.PcItem("stop"), readline.PcItem("cleanup"), readline.PcItem("read"),
				readline.PcItem("block"), readline.PcItem("latest"), readline.PcItem("stale"),
				readline.PcItem("state"), readline.PcItem("push"), readline.PcItem("fault"),
				readline.PcItem("quiet"), readline.PcItem("help"), readline.PcItem("quit"),
			),
		})
		if err != nil {
			return console.Exit(1, "could not start shell: %v", err)
		}
		defer func() { _ = rl.Close() }()
		console.SetOutput(rl.Stdout(), rl.Stderr())

		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()
		loopDone := make(chan struct{})
		go func() {
			defer close(loopDone)
			_ = e.loop.Run(ctx)
		}()
		e.traffic(ctx)

		sh := &shell{env: e, rl: rl}
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return console.Exit(1, "shell: %v", err)
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				if e.session.Monitoring() {
					answer, err := console.YesOrNo(rl, "monitoring is active, stop and quit?")
					if err != nil || answer != console.Yes {
						continue
					}
				}
				break
			}
			sh.exec(fields[0], fields[1:])
		}
		sh.onLoop(func() { e.close() })
		e.loop.Close()
		<-loopDone
		return nil
	},
}

type shell struct {
	env   *env
	rl    *readline.Instance
	core  arinc429.CoreHandle
	quiet bool
}

// onLoop runs fn on the command loop and waits for it, so lifecycle calls and
// consumer callbacks never run concurrently.
func (s *shell) onLoop(fn func()) {
	done := make(chan struct{})
	if err := s.env.loop.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		console.Errorf("%v", err)
		return
	}
	<-done
}

func (s *shell) exec(cmd string, args []string) {
	e := s.env
	switch cmd {
	case "help":
		console.Printf("%s\n", shellHelp)
	case "init":
		s.onLoop(func() {
			hw := e.session.InitializeHardware()
			s.core = hw.Core
			printResult(hw.Result)
		})
	case "receiver":
		s.onLoop(func() {
			printResult(e.session.InitializeReceiver(s.core, s.onData, printReport))
		})
	case "start":
		s.onLoop(func() { printResult(e.session.StartMonitoring(s.core)) })
	case "stop":
		s.onLoop(func() { printResult(e.session.StopMonitoring(s.core)) })
	case "cleanup":
		s.onLoop(func() {
			printResult(e.session.Cleanup())
			s.core = 0
		})
	case "state":
		dev, core := e.session.Handles()
		console.Printf("%s device %#x core %#x queues %v\n", e.session.State(), dev, core, e.session.Queues())
	case "read", "block":
		s.read(cmd, args)
	case "latest":
		for _, entry := range e.session.Latest().Snapshot() {
			console.Word(entry.Channel, entry.Word, entry.Timestamp)
		}
	case "stale":
		threshold := e.cfg.StaleThreshold()
		if len(args) > 0 {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				console.Errorf("invalid threshold: %v", err)
				return
			}
			threshold = d
		}
		for _, entry := range e.session.Latest().Stale(e.session.Clock().Elapsed(), threshold) {
			console.Word(entry.Channel, entry.Word, entry.Timestamp)
		}
	case "push":
		s.push(args)
	case "fault":
		s.fault(args)
	case "quiet":
		s.onLoop(func() { s.quiet = !s.quiet })
	default:
		console.Errorf("unknown command %q, try help", cmd)
	}
}

func (s *shell) onData(b acquisition.Batch) {
	if s.quiet {
		return
	}
	for _, a := range b {
		console.Word(a.Channel, a.Word, a.Timestamp)
	}
}

func (s *shell) queue(arg string) (arinc429.QueueID, bool) {
	ch, err := strconv.Atoi(arg)
	queues := s.env.session.Queues()
	if err != nil || ch < 0 || ch >= len(queues) {
		console.Errorf("invalid channel %q (receiver initialized for %d channels)", arg, len(queues))
		return 0, false
	}
	return queues[ch], true
}

func (s *shell) read(cmd string, args []string) {
	e := s.env
	need := 1
	if cmd == "block" {
		need = 2
	}
	if len(args) < need {
		console.Errorf("%s needs %d arguments", cmd, need)
		return
	}
	q, ok := s.queue(args[0])
	if !ok {
		return
	}
	timeout := e.cfg.ReadTimeout()
	if len(args) > need {
		d, err := time.ParseDuration(args[need])
		if err != nil {
			console.Errorf("invalid timeout: %v", err)
			return
		}
		timeout = d
	}
	ch, _ := strconv.Atoi(args[0])
	if cmd == "read" {
		e.session.ReadOnce(q, s.core, timeout, func(out acquisition.WordOutcome) {
			if out.Err != nil {
				console.Printf("%s %v\n", console.Status(out.Status), out.Err)
				return
			}
			console.Word(ch, out.Value, time.Now().UnixMilli())
		})
		return
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		console.Errorf("invalid count: %v", err)
		return
	}
	e.session.ReadBlockOnce(q, s.core, count, timeout, func(out acquisition.BlockOutcome) {
		if out.Err != nil {
			console.Printf("%s %v\n", console.Status(out.Status), out.Err)
			return
		}
		now := time.Now().UnixMilli()
		for _, w := range out.Values {
			console.Word(ch, w, now)
		}
		console.Printf("%s %d words\n", console.Status(out.Status), len(out.Values))
	})
}

func (s *shell) simulator() (*adapter.Simulator, bool) {
	if s.env.sim == nil {
		console.Errorf("only available with the simulated adapter")
		return nil, false
	}
	return s.env.sim, true
}

func (s *shell) push(args []string) {
	sim, ok := s.simulator()
	if !ok {
		return
	}
	if len(args) < 2 {
		console.Errorf("push needs a channel and at least one word")
		return
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		console.Errorf("invalid channel: %v", err)
		return
	}
	words := make([]arinc429.Word, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseUint(strings.TrimPrefix(a, "0x"), 16, 32)
		if err != nil {
			console.Errorf("invalid word %q: %v", a, err)
			return
		}
		words = append(words, arinc429.Word(v))
	}
	console.Infof("%d of %d words queued", sim.Push(ch, words...), len(words))
}

func (s *shell) fault(args []string) {
	sim, ok := s.simulator()
	if !ok {
		return
	}
	if len(args) == 1 && args[0] == "clear" {
		sim.ClearFaults()
		return
	}
	if len(args) != 3 {
		console.Errorf("fault needs <op> <channel|any> <code>, op is one of: %s", strings.Join(faultOps(), ", "))
		return
	}
	op := adapter.Op(strings.ReplaceAll(args[0], "-", " "))
	if !validOp(op) {
		console.Errorf("unknown op %q", args[0])
		return
	}
	ch := adapter.AnyChannel
	if args[1] != "any" {
		v, err := strconv.Atoi(args[1])
		if err != nil {
			console.Errorf("invalid channel: %v", err)
			return
		}
		ch = v
	}
	code, err := strconv.Atoi(args[2])
	if err != nil || code >= 0 {
		console.Errorf("code must be a negative integer")
		return
	}
	sim.FailOn(op, ch, arinc429.Code(code))
}

var simOps = []adapter.Op{
	adapter.OpOpenDevice, adapter.OpOpenCore, adapter.OpCloseDevice, adapter.OpEventLog,
	adapter.OpConfigureChannel, adapter.OpDefaultFilter, adapter.OpCreateQueue,
	adapter.OpQueueStatus, adapter.OpReadBlock, adapter.OpStartCard, adapter.OpReadDiscrete,
}

func faultOps() []string {
	out := make([]string, len(simOps))
	for i, op := range simOps {
		out[i] = strings.ReplaceAll(string(op), " ", "-")
	}
	return out
}

func validOp(op adapter.Op) bool {
	for _, o := range simOps {
		if o == op {
			return true
		}
	}
	return false
}

func printResult(r acquisition.Result) {
	if r.Success {
		console.Printf("%s %s\n", console.Green("OK"), r.Message)
		return
	}
	console.Printf("%s %s\n", console.Red("FAILED"), r)
	if r.Err != nil && r.Err.Error() != r.Message {
		console.Printf("  %v\n", r.Err)
	}
}
