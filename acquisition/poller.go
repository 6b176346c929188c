package acquisition

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/bridge"
)

// poller works on copies of the session handles taken when monitoring
// started. The session joins it before invalidating any of them.
type poller struct {
	card   arinc429.Card
	core   arinc429.CoreHandle
	queues []arinc429.QueueID
	block  int
	busy   time.Duration
	idle   time.Duration

	data  *bridge.Bridge[Batch]
	errs  *bridge.Bridge[ErrorReport]
	table *Table
	clock *Clock
	log   *slog.Logger

	active *atomic.Bool
	quit   <-chan struct{}
	done   chan<- struct{}
}

func (p *poller) run() {
	defer close(p.done)
	p.log.Debug("poller started", "channels", len(p.queues), "block", p.block)
	buf := make([]arinc429.Word, p.block)
	for p.active.Load() {
		if !p.data.Valid() || !p.errs.Valid() {
			if p.active.CompareAndSwap(true, false) {
				p.log.Warn("notification bridge no longer valid, poller exiting")
			}
			break
		}
		wait := p.idle
		if p.iterate(buf) {
			wait = p.busy
		}
		if !p.sleep(wait) {
			break
		}
	}
	p.log.Debug("poller stopped")
}

// iterate runs one event log drain and channel sweep. It reports whether any
// work was found.
func (p *poller) iterate(buf []arinc429.Word) bool {
	busy := p.drainEvent()

	var batch Batch
	for ch, q := range p.queues {
		if !p.active.Load() {
			break
		}
		if q == 0 {
			continue
		}
		st, err := p.card.QueueStatus(q, p.core)
		if err != nil {
			p.report(ch, err, "queue status")
			continue
		}
		if !st.HasData() {
			continue
		}
		busy = true
		n, err := p.card.ReadBlock(buf, q, p.core)
		if err != nil {
			p.readFailed(ch, q, err)
			continue
		}
		n = max(0, min(n, len(buf)))
		for _, w := range buf[:n] {
			ts, elapsed := p.clock.Now()
			a := Acquired{
				Channel:   ch,
				Label:     w.Label(),
				Word:      w,
				Timestamp: ts,
				Elapsed:   elapsed,
			}
			p.table.Update(a)
			batch = append(batch, a)
		}
	}

	if len(batch) == 0 || !p.active.Load() {
		return busy
	}
	if err := p.data.Deliver(batch); err != nil {
		p.log.Debug("batch discarded", "words", len(batch), "error", err)
	}
	return busy
}

func (p *poller) drainEvent() bool {
	ev, ok := p.card.ReadEventLog(p.core)
	if !ok {
		return false
	}
	switch ev.Type {
	case arinc429.EventListBuffer:
		p.log.Debug("list buffer event", "channel", ev.Channel, "info", ev.Info)
	case arinc429.EventDecoderError:
		p.send(newReport(ev.Channel, arinc429.CodeFail, fmt.Sprintf("decoder error (info 0x%04X)", ev.Info)))
	default:
		p.log.Debug("event", "type", ev.Type, "channel", ev.Channel, "info", ev.Info)
	}
	return true
}

// readFailed re-checks the queue after a failed block read to tell a
// hardware fault from a queue that drained between status and read.
func (p *poller) readFailed(ch int, q arinc429.QueueID, err error) {
	st, serr := p.card.QueueStatus(q, p.core)
	switch {
	case serr != nil:
		p.report(ch, serr, "read block: hardware error")
	case st == arinc429.QueueEmpty:
		p.send(newReport(ch, arinc429.CodeUnderflow, "read block: queue empty after busy status"))
	default:
		p.report(ch, err, "read block")
	}
}

func (p *poller) report(ch int, err error, op string) {
	err = describe(p.card, err, p.core)
	p.send(newReport(ch, arinc429.CodeOf(err), fmt.Sprintf("%s: %v", op, err)))
}

func (p *poller) send(r ErrorReport) {
	if err := p.errs.Deliver(r); err != nil {
		p.log.Debug("error report discarded", "channel", r.Channel, "message", r.Message, "error", err)
	}
}

func (p *poller) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.quit:
		return false
	case <-t.C:
		return true
	}
}
