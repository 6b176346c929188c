package acquisition

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/adapter"
	"github.com/mklimuk/arinc429/bridge"
)

// collector records what the bridges hand to the consumer.
type collector struct {
	mx      sync.Mutex
	batches []Batch
	reports []ErrorReport
}

func (c *collector) onData(b Batch) {
	c.mx.Lock()
	c.batches = append(c.batches, b)
	c.mx.Unlock()
}

func (c *collector) onError(r ErrorReport) {
	c.mx.Lock()
	c.reports = append(c.reports, r)
	c.mx.Unlock()
}

func (c *collector) words() []Acquired {
	c.mx.Lock()
	defer c.mx.Unlock()
	var out []Acquired
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func (c *collector) errors() []ErrorReport {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]ErrorReport(nil), c.reports...)
}

func (c *collector) reportFor(channel int) (ErrorReport, bool) {
	for _, r := range c.errors() {
		if r.Channel == channel {
			return r, true
		}
	}
	return ErrorReport{}, false
}

func newTestSession(t *testing.T, sim *adapter.Simulator, opts ...SessionOpt) (*Session, *bridge.Loop) {
	t.Helper()
	loop := runLoop(t)
	opts = append([]SessionOpt{WithIntervals(time.Millisecond, 2*time.Millisecond)}, opts...)
	s := NewSession(sim, loop, opts...)
	t.Cleanup(func() { s.Cleanup() })
	return s, loop
}

// ready brings s to the receiver-ready state.
func ready(t *testing.T, s *Session, c *collector) arinc429.CoreHandle {
	t.Helper()
	hw := s.InitializeHardware()
	require.True(t, hw.Success, hw.Message)
	r := s.InitializeReceiver(hw.Core, c.onData, c.onError)
	require.True(t, r.Success, r.Message)
	return hw.Core
}

func TestSession_MonitorsAndDeliversInOrder(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}

	hw := s.InitializeHardware()
	require.True(t, hw.Success)
	assert.NotZero(t, hw.Device)
	assert.NotZero(t, hw.Core)
	assert.Equal(t, StateHardwareOpen, s.State())

	r := s.InitializeReceiver(hw.Core, c.onData, c.onError)
	require.True(t, r.Success, r.Message)
	assert.Equal(t, "receiver initialized on 8 channels", r.Message)
	assert.Len(t, s.Queues(), arinc429.ChannelCount)
	assert.Equal(t, StateReceiverReady, s.State())

	r = s.StartMonitoring(hw.Core)
	require.True(t, r.Success, r.Message)
	assert.True(t, s.Monitoring())
	assert.True(t, sim.Started())

	sent := []arinc429.Word{
		arinc429.NewWord(0o203, 0, 100, 0),
		arinc429.NewWord(0o204, 1, 200, 3),
		arinc429.NewWord(0o203, 0, 101, 0),
	}
	require.Equal(t, 3, sim.Push(2, sent...))

	require.Eventually(t, func() bool { return len(c.words()) == 3 }, time.Second, time.Millisecond)
	words := c.words()
	var prev int64
	for i, a := range words {
		assert.Equal(t, 2, a.Channel)
		assert.Equal(t, sent[i], a.Word)
		assert.Equal(t, sent[i].Label(), a.Label)
		assert.GreaterOrEqual(t, a.Timestamp, prev)
		prev = a.Timestamp
	}
	assert.Empty(t, c.errors())

	latest, ok := s.Latest().Get(2, 0o203)
	require.True(t, ok)
	assert.Equal(t, sent[2], latest.Word)
	assert.Equal(t, 2, s.Latest().Len())

	r = s.StopMonitoring(hw.Core)
	require.True(t, r.Success, r.Message)
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, s.Monitoring())
	assert.False(t, sim.Started())

	r = s.Cleanup()
	require.True(t, r.Success, r.Message)
	assert.Equal(t, StateClosed, s.State())
	assert.Zero(t, sim.OpenDevices())
	assert.Zero(t, sim.StaleUse())
}

func TestSession_InitializeHardwareIsIdempotent(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)

	first := s.InitializeHardware()
	require.True(t, first.Success)
	second := s.InitializeHardware()
	require.True(t, second.Success)
	assert.Equal(t, "hardware already initialized", second.Message)
	assert.Equal(t, first.Device, second.Device)
	assert.Equal(t, first.Core, second.Core)
	assert.Equal(t, 1, sim.OpenDevices())
}

func TestSession_DeviceClaim(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1), adapter.WithDevices(2))
	a, _ := newTestSession(t, sim)
	b, _ := newTestSession(t, sim)
	other, _ := newTestSession(t, sim, WithDevice(1, 0))

	require.True(t, a.InitializeHardware().Success)
	r := b.InitializeHardware()
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err, arinc429.ErrDeviceInUse)
	assert.Equal(t, StateUninitialized, b.State())
	assert.True(t, other.InitializeHardware().Success)

	require.True(t, a.Cleanup().Success)
	assert.True(t, b.InitializeHardware().Success)
}

func TestSession_OpenFailures(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)

	sim.FailOn(adapter.OpOpenDevice, adapter.AnyChannel, adapter.CodeNoDevice)
	r := s.InitializeHardware()
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err, ErrDeviceOpen)
	assert.Equal(t, adapter.CodeNoDevice, r.Code)
	assert.Contains(t, r.Message, "no card at the given index")
	assert.Equal(t, StateUninitialized, s.State())

	sim.ClearFaults()
	sim.FailOn(adapter.OpOpenCore, adapter.AnyChannel, adapter.CodeBadParam)
	r = s.InitializeHardware()
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Err, ErrCoreOpen)
	assert.Zero(t, sim.OpenDevices(), "device left open after core failure")

	// a failed attempt does not keep the device claimed
	sim.ClearFaults()
	assert.True(t, s.InitializeHardware().Success)
}

func TestSession_ReceiverSetupFailureNamesChannelAndStage(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}
	hw := s.InitializeHardware()
	require.True(t, hw.Success)

	sim.FailOn(adapter.OpCreateQueue, 3, arinc429.CodeFail)
	r := s.InitializeReceiver(hw.Core, c.onData, c.onError)
	assert.False(t, r.Success)
	var serr *arinc429.ChannelSetupError
	require.ErrorAs(t, r.Err, &serr)
	assert.Equal(t, 3, serr.Channel)
	assert.Equal(t, arinc429.StageQueue, serr.Stage)
	assert.Contains(t, r.Message, "channel 3")
	assert.Contains(t, r.Message, "general failure")
	assert.Equal(t, StateHardwareOpen, s.State())
	assert.Empty(t, s.Queues())

	assert.ErrorIs(t, s.StartMonitoring(hw.Core).Err, arinc429.ErrNotReady)

	sim.ClearFaults()
	sim.FailOn(adapter.OpEventLog, adapter.AnyChannel, arinc429.CodeFail)
	r = s.InitializeReceiver(hw.Core, c.onData, c.onError)
	require.ErrorAs(t, r.Err, &serr)
	assert.Equal(t, GlobalChannel, serr.Channel)
	assert.Equal(t, arinc429.StageEventLog, serr.Stage)

	sim.ClearFaults()
	assert.True(t, s.InitializeReceiver(hw.Core, c.onData, c.onError).Success)
}

func TestSession_LifecycleGuards(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}

	assert.ErrorIs(t, s.InitializeReceiver(1, c.onData, c.onError).Err, arinc429.ErrNotOpen)
	assert.ErrorIs(t, s.StartMonitoring(0).Err, arinc429.ErrHandleMismatch)

	hw := s.InitializeHardware()
	require.True(t, hw.Success)
	assert.ErrorIs(t, s.InitializeReceiver(hw.Core, nil, c.onError).Err, ErrNoCallbacks)
	assert.ErrorIs(t, s.InitializeReceiver(hw.Core+1, c.onData, c.onError).Err, arinc429.ErrHandleMismatch)
	assert.ErrorIs(t, s.StartMonitoring(hw.Core).Err, arinc429.ErrNotReady)

	require.True(t, s.InitializeReceiver(hw.Core, c.onData, c.onError).Success)
	assert.ErrorIs(t, s.StartMonitoring(hw.Core+1).Err, arinc429.ErrHandleMismatch)
	require.True(t, s.StartMonitoring(hw.Core).Success)

	again := s.StartMonitoring(hw.Core)
	assert.False(t, again.Success)
	assert.Equal(t, "monitoring already active", again.Message)
	assert.ErrorIs(t, again.Err, arinc429.ErrAlreadyMonitoring)
	assert.True(t, s.Monitoring())
	assert.ErrorIs(t, s.InitializeReceiver(hw.Core, c.onData, c.onError).Err, arinc429.ErrAlreadyMonitoring)
	assert.ErrorIs(t, s.StopMonitoring(hw.Core+1).Err, arinc429.ErrHandleMismatch)
	assert.True(t, s.Monitoring())

	require.True(t, s.StopMonitoring(hw.Core).Success)
	stop := s.StopMonitoring(hw.Core)
	assert.True(t, stop.Success)
	assert.Equal(t, "monitoring was not active", stop.Message)

	// stopped sessions need a fresh receiver before monitoring again
	assert.ErrorIs(t, s.StartMonitoring(hw.Core).Err, arinc429.ErrNotReady)
	require.True(t, s.InitializeReceiver(hw.Core, c.onData, c.onError).Success)
	require.True(t, s.StartMonitoring(hw.Core).Success)

	require.True(t, s.Cleanup().Success)
	assert.ErrorIs(t, s.InitializeHardware().Err, arinc429.ErrClosed)
	assert.ErrorIs(t, s.InitializeReceiver(hw.Core, c.onData, c.onError).Err, arinc429.ErrClosed)
	assert.ErrorIs(t, s.StartMonitoring(hw.Core).Err, arinc429.ErrClosed)
	r := s.Cleanup()
	assert.True(t, r.Success)
	assert.Equal(t, "no device open", r.Message)
}

func TestSession_CleanupWithoutHardware(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	r := s.Cleanup()
	assert.True(t, r.Success)
	assert.Equal(t, "no device open", r.Message)
	assert.Equal(t, StateUninitialized, s.State())
}

func TestSession_StartCardFailure(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	core := ready(t, s, &collector{})

	sim.FailOn(adapter.OpStartCard, adapter.AnyChannel, arinc429.CodeFail)
	r := s.StartMonitoring(core)
	assert.False(t, r.Success)
	assert.Equal(t, arinc429.CodeFail, r.Code)
	assert.False(t, s.Monitoring())
	assert.Equal(t, StateReceiverReady, s.State())

	sim.ClearFaults()
	assert.True(t, s.StartMonitoring(core).Success)
}

func TestSession_ChannelFaultDoesNotStopOthers(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}
	core := ready(t, s, c)

	sim.FailOn(adapter.OpQueueStatus, 3, arinc429.CodeFail)
	require.True(t, s.StartMonitoring(core).Success)
	sim.Push(1, 0x11)
	sim.Push(5, 0x55)

	require.Eventually(t, func() bool {
		_, ok := c.reportFor(3)
		return len(c.words()) == 2 && ok
	}, time.Second, time.Millisecond)

	channels := map[int]bool{}
	for _, a := range c.words() {
		channels[a.Channel] = true
	}
	assert.Equal(t, map[int]bool{1: true, 5: true}, channels)
	r, _ := c.reportFor(3)
	assert.Equal(t, arinc429.CodeFail, r.Code)
	assert.Equal(t, "ERROR", r.Status)
	assert.Contains(t, r.Message, "queue status")
	assert.True(t, s.Monitoring())
}

func TestSession_ReadFailureOnDrainedQueueIsUnderflow(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}
	core := ready(t, s, c)

	sim.FailOn(adapter.OpReadBlock, 4, adapter.CodeBadParam)
	sim.Push(4, 1, 2)
	require.True(t, s.StartMonitoring(core).Success)

	require.Eventually(t, func() bool {
		_, ok := c.reportFor(4)
		return ok
	}, time.Second, time.Millisecond)
	r, _ := c.reportFor(4)
	assert.Equal(t, arinc429.CodeUnderflow, r.Code)
	assert.Equal(t, "read block: queue empty after busy status", r.Message)
	assert.Empty(t, c.words())
}

func TestSession_DecoderErrorEvent(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}
	core := ready(t, s, c)

	require.True(t, sim.InjectEvent(arinc429.Event{Type: arinc429.EventDecoderError, Info: 0x12, Channel: 6}))
	require.True(t, sim.InjectEvent(arinc429.Event{Type: arinc429.EventListBuffer, Channel: 1}))
	require.True(t, s.StartMonitoring(core).Success)

	require.Eventually(t, func() bool { return len(c.errors()) > 0 }, time.Second, time.Millisecond)
	// give the list buffer event a chance to be drained as well
	time.Sleep(20 * time.Millisecond)
	reports := c.errors()
	require.Len(t, reports, 1)
	assert.Equal(t, 6, reports[0].Channel)
	assert.Equal(t, arinc429.CodeFail, reports[0].Code)
	assert.Equal(t, "decoder error (info 0x0012)", reports[0].Message)
}

func TestSession_CleanupWhileMonitoring(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(7))
	for range 5 {
		s, _ := newTestSession(t, sim)
		c := &collector{}
		core := ready(t, s, c)
		require.True(t, s.StartMonitoring(core).Success)
		for ch := range arinc429.ChannelCount {
			sim.Push(ch, arinc429.NewWord(uint8(ch+1), 0, 0, 0))
		}
		time.Sleep(5 * time.Millisecond)

		r := s.Cleanup()
		require.True(t, r.Success, r.Message)
		assert.Equal(t, StateClosed, s.State())
		assert.False(t, s.Monitoring())
	}
	assert.Zero(t, sim.OpenDevices())
	assert.False(t, sim.Started())
	assert.Zero(t, sim.StaleUse(), "poller used handles after close")
}

func TestSession_PollerExitsWhenLoopCloses(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, loop := newTestSession(t, sim)
	c := &collector{}
	core := ready(t, s, c)
	require.True(t, s.StartMonitoring(core).Success)

	loop.Close()
	require.Eventually(t, func() bool { return !s.Monitoring() }, time.Second, time.Millisecond)
	assert.Equal(t, StateMonitoring, s.State())

	restart := s.StartMonitoring(core)
	assert.False(t, restart.Success)
	assert.ErrorIs(t, restart.Err, arinc429.ErrAlreadyMonitoring)
	assert.Equal(t, "poller stopped, call StopMonitoring before starting again", restart.Message)

	r := s.StopMonitoring(core)
	assert.True(t, r.Success)
	assert.Equal(t, StateStopped, s.State())
	assert.False(t, sim.Started())
}

func TestSession_StoppedBridgesDropLateBatches(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim)
	c := &collector{}
	core := ready(t, s, c)
	require.True(t, s.StartMonitoring(core).Success)
	require.True(t, s.StopMonitoring(core).Success)

	sim.Push(0, 1, 2, 3)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.words())
	assert.Equal(t, 3, sim.Pending(0))
}

func TestSession_ReadOnceUsesSessionLoop(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(1))
	s, _ := newTestSession(t, sim, WithReadInterval(time.Millisecond))
	core := ready(t, s, &collector{})
	q := s.Queues()[2]

	sim.Push(2, 0xBEEF)
	out := make(chan WordOutcome, 1)
	s.ReadOnce(q, core, 100*time.Millisecond, func(o WordOutcome) { out <- o })
	select {
	case o := <-out:
		require.NoError(t, o.Err)
		assert.Equal(t, arinc429.Word(0xBEEF), o.Value)
	case <-time.After(time.Second):
		t.Fatal("no outcome")
	}

	blocks := make(chan BlockOutcome, 1)
	s.ReadBlockOnce(q, core, 0, 0, func(o BlockOutcome) { blocks <- o })
	select {
	case o := <-blocks:
		require.NoError(t, o.Err)
		assert.Empty(t, o.Values)
	case <-time.After(time.Second):
		t.Fatal("no outcome")
	}
}

func TestSession_StopWhileDeliveryBlocked(t *testing.T) {
	sim := adapter.NewSimulator(adapter.WithSeed(3))
	s, _ := newTestSession(t, sim, WithBridgeQueue(1))

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	onData := func(Batch) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	}
	hw := s.InitializeHardware()
	require.True(t, hw.Success, hw.Message)
	require.True(t, s.InitializeReceiver(hw.Core, onData, func(ErrorReport) {}).Success)
	require.True(t, s.StartMonitoring(hw.Core).Success)

	sim.Push(0, arinc429.NewWord(0o101, 0, 1, 0))
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first batch not delivered")
	}
	// one batch waits on the loop, the next one fills the queue
	for i := range 2 {
		sim.Push(0, arinc429.NewWord(0o102, 0, uint32(i), 0))
		require.Eventually(t, func() bool { return sim.Pending(0) == 0 }, time.Second, time.Millisecond)
	}
	sim.Push(0, arinc429.NewWord(0o103, 0, 0, 0))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, sim.Pending(0), "poller should be waiting for queue space")

	stopped := make(chan Result, 1)
	go func() { stopped <- s.StopMonitoring(hw.Core) }()
	select {
	case r := <-stopped:
		assert.True(t, r.Success, r.Message)
	case <-time.After(time.Second):
		close(release)
		t.Fatal("StopMonitoring blocked behind the consumer")
	}
	assert.False(t, s.Monitoring())
	assert.False(t, sim.Started())
	close(release)

	r := s.Cleanup()
	require.True(t, r.Success, r.Message)
	assert.Zero(t, sim.OpenDevices())
	assert.Zero(t, sim.StaleUse())

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "batches queued before stop must be dropped")
}

func TestNewSession_ClampsIntervals(t *testing.T) {
	s := NewSession(adapter.NewSimulator(), bridge.NewLoop(), WithIntervals(0, -time.Second), WithReadInterval(0))
	assert.Equal(t, DefaultBusyInterval, s.config.BusyInterval)
	assert.Equal(t, DefaultIdleInterval, s.config.IdleInterval)
	assert.Equal(t, DefaultReadInterval, s.config.ReadInterval)

	s = NewSession(adapter.NewSimulator(), bridge.NewLoop(), WithIntervals(2*time.Millisecond, 3*time.Millisecond))
	assert.Equal(t, 2*time.Millisecond, s.config.BusyInterval)
	assert.Equal(t, 3*time.Millisecond, s.config.IdleInterval)
}
