package acquisition

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/bridge"
)

var (
	ErrDeviceOpen  = errors.New("device open failed")
	ErrCoreOpen    = errors.New("core open failed")
	ErrNoCallbacks = errors.New("data and error callbacks are required")
)

type claimKey struct {
	card   arinc429.Card
	device int
}

// claims holds the devices owned by live sessions. Card implementations must
// be comparable, which pointer receivers are.
var claims sync.Map

// Session owns one card device, its core, the per-channel receive queues and
// the poller that drains them while monitoring. Lifecycle methods are safe
// for concurrent use; consumer callbacks run on the Loop passed to
// NewSession.
type Session struct {
	card   arinc429.Card
	loop   *bridge.Loop
	config SessionOpts
	log    *slog.Logger
	clock  *Clock
	table  *Table
	reader *Reader

	mx     sync.Mutex
	state  atomic.Int32
	dev    arinc429.DeviceHandle
	core   arinc429.CoreHandle
	queues []arinc429.QueueID
	data   *bridge.Bridge[Batch]
	errs   *bridge.Bridge[ErrorReport]

	monitoring atomic.Bool
	quit       chan struct{}
	done       chan struct{}
}

func NewSession(card arinc429.Card, loop *bridge.Loop, opts ...SessionOpt) *Session {
	config := defaultSessionOpts()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BlockSize <= 0 || config.BlockSize > MaxBlockCount {
		config.BlockSize = DefaultBlockSize
	}
	if config.Channels <= 0 {
		config.Channels = arinc429.ChannelCount
	}
	if config.BusyInterval <= 0 {
		config.BusyInterval = DefaultBusyInterval
	}
	if config.IdleInterval <= 0 {
		config.IdleInterval = DefaultIdleInterval
	}
	if config.ReadInterval <= 0 {
		config.ReadInterval = DefaultReadInterval
	}
	log := config.Logger.With("device", config.DeviceIndex)
	return &Session{
		card:   card,
		loop:   loop,
		config: config,
		log:    log,
		clock:  NewClock(config.Now),
		table:  NewTable(),
		reader: NewReader(card, loop, WithPollInterval(config.ReadInterval), WithReadLogger(log)),
	}
}

// InitializeHardware opens the device and its core and resets the card.
// Calling it again while the hardware is open returns the current handles.
func (s *Session) InitializeHardware() HardwareResult {
	s.mx.Lock()
	defer s.mx.Unlock()

	switch s.State() {
	case StateClosed:
		return HardwareResult{Result: failure(arinc429.ErrClosed)}
	case StateUninitialized:
	default:
		return HardwareResult{
			Result: success("hardware already initialized"),
			Device: s.dev,
			Core:   s.core,
		}
	}

	key := s.claimKey()
	if _, taken := claims.LoadOrStore(key, s); taken {
		return HardwareResult{Result: failure(fmt.Errorf("device %d: %w", key.device, arinc429.ErrDeviceInUse))}
	}
	dev, err := s.card.OpenDevice(s.config.DeviceIndex)
	if err != nil {
		claims.Delete(key)
		err = fmt.Errorf("%w: device %d: %w", ErrDeviceOpen, s.config.DeviceIndex, describe(s.card, err, 0))
		s.log.Error("open device", "error", err)
		return HardwareResult{Result: failure(err)}
	}
	core, err := s.card.OpenCore(s.config.CoreIndex, dev)
	if err != nil {
		err = fmt.Errorf("%w: core %d: %w", ErrCoreOpen, s.config.CoreIndex, describe(s.card, err, 0))
		if cerr := s.card.CloseDevice(dev); cerr != nil {
			s.log.Warn("close device after core open failure", "error", cerr)
		}
		claims.Delete(key)
		s.log.Error("open core", "error", err)
		return HardwareResult{Result: failure(err)}
	}
	s.card.ResetCard(core)

	s.dev, s.core = dev, core
	s.setState(StateHardwareOpen)
	s.log.Info("hardware initialized", "core", s.config.CoreIndex)
	return HardwareResult{
		Result: success("hardware initialized"),
		Device: dev,
		Core:   core,
	}
}

// InitializeReceiver configures the event log and every channel, creating a
// default filter and a receive queue per channel. onData and onError are
// invoked on the session Loop once monitoring starts.
func (s *Session) InitializeReceiver(core arinc429.CoreHandle, onData func(Batch), onError func(ErrorReport)) Result {
	s.mx.Lock()
	defer s.mx.Unlock()

	if onData == nil || onError == nil {
		return failure(ErrNoCallbacks)
	}
	switch s.State() {
	case StateClosed:
		return failure(arinc429.ErrClosed)
	case StateUninitialized:
		return failure(arinc429.ErrNotOpen)
	case StateMonitoring:
		return failure(arinc429.ErrAlreadyMonitoring)
	}
	if core != s.core {
		return failure(arinc429.ErrHandleMismatch)
	}

	s.releaseBridges()
	s.data = bridge.New("data", s.loop, onData, bridge.WithQueueSize(s.config.BridgeQueue))
	s.errs = bridge.New("error", s.loop, onError, bridge.WithQueueSize(s.config.BridgeQueue))

	if err := s.card.ConfigureEventLog(arinc429.EventLogEnable, s.config.EventLogSize, core); err != nil {
		return s.setupFailed(GlobalChannel, arinc429.StageEventLog, err)
	}
	queues := make([]arinc429.QueueID, s.config.Channels)
	for ch := range queues {
		if err := s.card.ConfigureChannel(s.config.ChannelFlags, ch, core); err != nil {
			return s.setupFailed(ch, arinc429.StageConfigure, err)
		}
		filter, err := s.card.DefaultFilter(s.config.FilterFlags, ch, core)
		if err == nil && filter == 0 {
			err = arinc429.NewHardwareError("default filter", arinc429.CodeFail)
		}
		if err != nil {
			return s.setupFailed(ch, arinc429.StageFilter, err)
		}
		q, err := s.card.CreateReceiveQueue(s.config.QueueFlags, s.config.QueueCapacity, filter, core)
		if err == nil && q == 0 {
			err = arinc429.NewHardwareError("create receive queue", arinc429.CodeFail)
		}
		if err != nil {
			return s.setupFailed(ch, arinc429.StageQueue, err)
		}
		queues[ch] = q
		s.log.Debug("channel configured", "channel", ch, "queue", q)
	}

	s.queues = queues
	s.table.Reset()
	s.setState(StateReceiverReady)
	s.log.Info("receiver initialized", "channels", len(queues))
	return success(fmt.Sprintf("receiver initialized on %d channels", len(queues)))
}

func (s *Session) setupFailed(channel int, stage arinc429.SetupStage, err error) Result {
	s.releaseBridges()
	s.queues = nil
	s.setState(StateHardwareOpen)
	serr := &arinc429.ChannelSetupError{Channel: channel, Stage: stage, Err: describe(s.card, err, s.core)}
	s.log.Error("receiver setup failed", "channel", channel, "stage", stage, "error", serr.Err)
	return failure(serr)
}

// StartMonitoring starts the card and the background poller.
func (s *Session) StartMonitoring(core arinc429.CoreHandle) Result {
	s.mx.Lock()
	defer s.mx.Unlock()

	switch s.State() {
	case StateClosed:
		return failure(arinc429.ErrClosed)
	case StateMonitoring:
		r := failure(arinc429.ErrAlreadyMonitoring)
		r.Message = "monitoring already active"
		if !s.monitoring.Load() {
			// the poller left on its own after a delivery path broke
			r.Message = "poller stopped, call StopMonitoring before starting again"
		}
		return r
	}
	if core == 0 || core != s.core {
		return failure(arinc429.ErrHandleMismatch)
	}
	if s.State() != StateReceiverReady || s.data == nil || s.errs == nil || !s.data.Valid() || !s.errs.Valid() {
		return failure(arinc429.ErrNotReady)
	}
	if err := s.card.StartCard(core); err != nil {
		err = fmt.Errorf("start card: %w", describe(s.card, err, core))
		s.log.Error("start monitoring", "error", err)
		return failure(err)
	}

	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.monitoring.Store(true)
	s.setState(StateMonitoring)

	p := &poller{
		card:   s.card,
		core:   core,
		queues: append([]arinc429.QueueID(nil), s.queues...),
		block:  s.config.BlockSize,
		busy:   s.config.BusyInterval,
		idle:   s.config.IdleInterval,
		data:   s.data,
		errs:   s.errs,
		table:  s.table,
		clock:  s.clock,
		log:    s.log,
		active: &s.monitoring,
		quit:   s.quit,
		done:   s.done,
	}
	go p.run()
	s.log.Info("monitoring started", "channels", len(p.queues))
	return success("monitoring started")
}

// StopMonitoring stops the poller, waits for it to exit, then stops the card
// and releases both bridges. When not monitoring it only releases bridges
// that are still held.
func (s *Session) StopMonitoring(core arinc429.CoreHandle) Result {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.State() != StateMonitoring {
		s.releaseBridges()
		return success("monitoring was not active")
	}
	if core != s.core {
		return failure(arinc429.ErrHandleMismatch)
	}
	s.stopLocked()
	return success("monitoring stopped")
}

func (s *Session) stopLocked() {
	s.monitoring.Store(false)
	close(s.quit)
	s.data.Abort()
	s.errs.Abort()
	<-s.done
	if !s.card.StopCard(s.core) {
		s.log.Warn("card did not report stopped")
	}
	s.releaseBridges()
	s.setState(StateStopped)
	s.log.Info("monitoring stopped")
}

// Cleanup stops monitoring if needed and closes the device. The session is
// unusable afterwards. With no device open it succeeds without side effects.
func (s *Session) Cleanup() Result {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.State() == StateMonitoring {
		s.stopLocked()
	}
	s.releaseBridges()
	if s.dev == 0 {
		return success("no device open")
	}

	err := s.card.CloseDevice(s.dev)
	if err != nil {
		err = fmt.Errorf("close device: %w", describe(s.card, err, s.core))
	}
	claims.Delete(s.claimKey())
	s.dev, s.core, s.queues = 0, 0, nil
	s.setState(StateClosed)
	if err != nil {
		s.log.Error("cleanup", "error", err)
		return failure(err)
	}
	s.log.Info("hardware closed")
	return success("hardware closed")
}

// ReadOnce waits up to timeout for a word on q off the caller goroutine and
// posts the outcome to the session Loop. Reading a queue the poller is also
// draining races with it for words.
func (s *Session) ReadOnce(q arinc429.QueueID, core arinc429.CoreHandle, timeout time.Duration, done func(WordOutcome)) {
	s.reader.ReadOnce(q, core, timeout, done)
}

// ReadBlockOnce is the block form of ReadOnce.
func (s *Session) ReadBlockOnce(q arinc429.QueueID, core arinc429.CoreHandle, count int, timeout time.Duration, done func(BlockOutcome)) {
	s.reader.ReadBlockOnce(q, core, count, timeout, done)
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Monitoring reports whether the poller is running. It turns false on its
// own when a bridge breaks.
func (s *Session) Monitoring() bool {
	return s.monitoring.Load()
}

func (s *Session) Handles() (arinc429.DeviceHandle, arinc429.CoreHandle) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.dev, s.core
}

// Queues returns the receive queue per channel, indexed by channel.
func (s *Session) Queues() []arinc429.QueueID {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]arinc429.QueueID(nil), s.queues...)
}

func (s *Session) Latest() *Table {
	return s.table
}

func (s *Session) Clock() *Clock {
	return s.clock
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) claimKey() claimKey {
	return claimKey{card: s.card, device: s.config.DeviceIndex}
}

func (s *Session) releaseBridges() {
	if s.data != nil {
		s.data.Abort()
		s.data.Release()
		s.data = nil
	}
	if s.errs != nil {
		s.errs.Abort()
		s.errs.Release()
		s.errs = nil
	}
}

// describe fills the vendor description of a hardware error.
func describe(card arinc429.Card, err error, core arinc429.CoreHandle) error {
	var hw *arinc429.HardwareError
	if errors.As(err, &hw) && hw.Description == "" {
		hw.Description = card.ErrorDescription(hw.Code, core)
	}
	return err
}
