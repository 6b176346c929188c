package adapter

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/mklimuk/arinc429"
)

// Status codes the simulator returns besides the shared ones.
const (
	CodeNoDevice   arinc429.Code = -3
	CodeBusy       arinc429.Code = -4
	CodeBadHandle  arinc429.Code = -21
	CodeBadParam   arinc429.Code = -22
	CodeNoFilter   arinc429.Code = -30
	CodeNotStarted arinc429.Code = -40
)

var descriptions = map[arinc429.Code]string{
	arinc429.CodeFail:      "general failure",
	arinc429.CodeTimeout:   "timeout",
	arinc429.CodeUnderflow: "list buffer underflow",
	CodeNoDevice:           "no card at the given index",
	CodeBusy:               "card already open",
	CodeBadHandle:          "invalid handle",
	CodeBadParam:           "invalid parameter",
	CodeNoFilter:           "filter not found",
	CodeNotStarted:         "card not started",
}

// Op names a simulated driver call for fault injection.
type Op string

const (
	OpOpenDevice       Op = "open device"
	OpOpenCore         Op = "open core"
	OpCloseDevice      Op = "close device"
	OpEventLog         Op = "configure event log"
	OpConfigureChannel Op = "configure channel"
	OpDefaultFilter    Op = "default filter"
	OpCreateQueue      Op = "create receive queue"
	OpQueueStatus      Op = "queue status"
	OpReadBlock        Op = "read block"
	OpStartCard        Op = "start card"
	OpReadDiscrete     Op = "read discrete"
)

// AnyChannel matches every channel in FailOn.
const AnyChannel = -1

type faultKey struct {
	op      Op
	channel int
}

type simQueue struct {
	id       arinc429.QueueID
	channel  int
	capacity int
	words    []arinc429.Word
}

type SimulatorOpts struct {
	// Devices is the number of cards the simulator pretends to host.
	Devices int
	Logger  *slog.Logger
	Seed    uint64
}

type SimulatorOpt func(*SimulatorOpts)

func WithDevices(n int) SimulatorOpt {
	return func(o *SimulatorOpts) {
		o.Devices = n
	}
}

func WithSimulatorLogger(l *slog.Logger) SimulatorOpt {
	return func(o *SimulatorOpts) {
		o.Logger = l
	}
}

func WithSeed(seed uint64) SimulatorOpt {
	return func(o *SimulatorOpts) {
		o.Seed = seed
	}
}

// Simulator is an in-memory card. Receive queues are filled with Push or
// Traffic, driver calls can be made to fail with FailOn, and calls made with
// handles that are not open are counted by StaleUse.
type Simulator struct {
	config SimulatorOpts
	log    *slog.Logger

	mx         sync.Mutex
	rnd        *rand.Rand
	next       uintptr
	devices    map[arinc429.DeviceHandle]int
	cores      map[arinc429.CoreHandle]arinc429.DeviceHandle
	started    map[arinc429.CoreHandle]bool
	channels   map[int]arinc429.ChannelFlags
	filters    map[arinc429.FilterAddr]int
	queues     map[arinc429.QueueID]*simQueue
	byChannel  map[int]*simQueue
	events     []arinc429.Event
	eventLimit int
	faults     map[faultKey]arinc429.Code
	discretes  map[int]bool
	overflows  uint64
	stale      uint64
}

func NewSimulator(opts ...SimulatorOpt) *Simulator {
	config := SimulatorOpts{Devices: 1, Seed: uint64(time.Now().UnixNano())}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Simulator{
		config:    config,
		log:       config.Logger.With("adapter", "sim"),
		rnd:       rand.New(rand.NewPCG(config.Seed, config.Seed>>1|1)),
		next:      0x10,
		devices:   make(map[arinc429.DeviceHandle]int),
		cores:     make(map[arinc429.CoreHandle]arinc429.DeviceHandle),
		started:   make(map[arinc429.CoreHandle]bool),
		channels:  make(map[int]arinc429.ChannelFlags),
		filters:   make(map[arinc429.FilterAddr]int),
		queues:    make(map[arinc429.QueueID]*simQueue),
		byChannel: make(map[int]*simQueue),
		faults:    make(map[faultKey]arinc429.Code),
		discretes: make(map[int]bool),
	}
}

// FailOn makes op fail with code on channel, or on every channel with
// AnyChannel, until ClearFaults. A failing block read still drains the words
// it would have read. For OpReadDiscrete the channel is the DIO number.
func (s *Simulator) FailOn(op Op, channel int, code arinc429.Code) {
	s.mx.Lock()
	s.faults[faultKey{op: op, channel: channel}] = code
	s.mx.Unlock()
}

func (s *Simulator) ClearFaults() {
	s.mx.Lock()
	clear(s.faults)
	s.mx.Unlock()
}

func (s *Simulator) faultLocked(op Op, channel int) error {
	code, ok := s.faults[faultKey{op: op, channel: channel}]
	if !ok {
		code, ok = s.faults[faultKey{op: op, channel: AnyChannel}]
	}
	if !ok {
		return nil
	}
	return s.errLocked(string(op), code)
}

func (s *Simulator) errLocked(op string, code arinc429.Code) error {
	err := arinc429.NewHardwareError(op, code)
	if code == CodeBadHandle {
		s.stale++
	}
	return err
}

func (s *Simulator) coreLocked(op string, core arinc429.CoreHandle) error {
	if _, ok := s.cores[core]; !ok {
		return s.errLocked(op, CodeBadHandle)
	}
	return nil
}

func (s *Simulator) handleLocked() uintptr {
	s.next++
	return s.next
}

func (s *Simulator) OpenDevice(index int) (arinc429.DeviceHandle, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.faultLocked(OpOpenDevice, AnyChannel); err != nil {
		return 0, err
	}
	if index < 0 || index >= s.config.Devices {
		return 0, s.errLocked(string(OpOpenDevice), CodeNoDevice)
	}
	for _, i := range s.devices {
		if i == index {
			return 0, s.errLocked(string(OpOpenDevice), CodeBusy)
		}
	}
	dev := arinc429.DeviceHandle(s.handleLocked())
	s.devices[dev] = index
	s.log.Debug("device opened", "index", index, "handle", dev)
	return dev, nil
}

func (s *Simulator) OpenCore(index int, dev arinc429.DeviceHandle) (arinc429.CoreHandle, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.faultLocked(OpOpenCore, AnyChannel); err != nil {
		return 0, err
	}
	if _, ok := s.devices[dev]; !ok {
		return 0, s.errLocked(string(OpOpenCore), CodeBadHandle)
	}
	if index != 0 {
		return 0, s.errLocked(string(OpOpenCore), CodeBadParam)
	}
	for c, d := range s.cores {
		if d == dev {
			return c, nil
		}
	}
	core := arinc429.CoreHandle(s.handleLocked())
	s.cores[core] = dev
	return core, nil
}

func (s *Simulator) ResetCard(core arinc429.CoreHandle) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.coreLocked("reset card", core) != nil {
		return
	}
	s.resetLocked(core)
}

func (s *Simulator) resetLocked(core arinc429.CoreHandle) {
	delete(s.started, core)
	clear(s.channels)
	clear(s.filters)
	clear(s.queues)
	clear(s.byChannel)
	s.events = nil
	s.eventLimit = 0
}

func (s *Simulator) CloseDevice(dev arinc429.DeviceHandle) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.devices[dev]; !ok {
		return s.errLocked(string(OpCloseDevice), CodeBadHandle)
	}
	for c, d := range s.cores {
		if d == dev {
			s.resetLocked(c)
			delete(s.cores, c)
		}
	}
	delete(s.devices, dev)
	if err := s.faultLocked(OpCloseDevice, AnyChannel); err != nil {
		return err
	}
	s.log.Debug("device closed", "handle", dev)
	return nil
}

func (s *Simulator) ConfigureEventLog(flags arinc429.EventLogFlags, count int, core arinc429.CoreHandle) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.coreLocked(string(OpEventLog), core); err != nil {
		return err
	}
	if err := s.faultLocked(OpEventLog, AnyChannel); err != nil {
		return err
	}
	if count < 0 {
		return s.errLocked(string(OpEventLog), CodeBadParam)
	}
	s.events = nil
	s.eventLimit = 0
	if flags&arinc429.EventLogEnable != 0 {
		s.eventLimit = count
	}
	return nil
}

func (s *Simulator) ReadEventLog(core arinc429.CoreHandle) (arinc429.Event, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.coreLocked("read event log", core) != nil || len(s.events) == 0 {
		return arinc429.Event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}

func (s *Simulator) ConfigureChannel(flags arinc429.ChannelFlags, channel int, core arinc429.CoreHandle) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.coreLocked(string(OpConfigureChannel), core); err != nil {
		return err
	}
	if err := s.faultLocked(OpConfigureChannel, channel); err != nil {
		return err
	}
	if channel < 0 || channel >= arinc429.ChannelCount {
		return s.errLocked(string(OpConfigureChannel), CodeBadParam)
	}
	s.channels[channel] = flags
	return nil
}

func (s *Simulator) DefaultFilter(flags arinc429.FilterFlags, channel int, core arinc429.CoreHandle) (arinc429.FilterAddr, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.coreLocked(string(OpDefaultFilter), core); err != nil {
		return 0, err
	}
	if err := s.faultLocked(OpDefaultFilter, channel); err != nil {
		return 0, err
	}
	if _, ok := s.channels[channel]; !ok {
		return 0, s.errLocked(string(OpDefaultFilter), CodeBadParam)
	}
	addr := arinc429.FilterAddr(s.handleLocked())
	s.filters[addr] = channel
	return addr, nil
}

func (s *Simulator) CreateReceiveQueue(flags arinc429.QueueFlags, capacity int, filter arinc429.FilterAddr, core arinc429.CoreHandle) (arinc429.QueueID, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.coreLocked(string(OpCreateQueue), core); err != nil {
		return 0, err
	}
	channel, ok := s.filters[filter]
	if !ok {
		return 0, s.errLocked(string(OpCreateQueue), CodeNoFilter)
	}
	if err := s.faultLocked(OpCreateQueue, channel); err != nil {
		return 0, err
	}
	if capacity <= 0 {
		return 0, s.errLocked(string(OpCreateQueue), CodeBadParam)
	}
	q := &simQueue{
		id:       arinc429.QueueID(s.handleLocked()),
		channel:  channel,
		capacity: capacity,
	}
	if old, ok := s.byChannel[channel]; ok {
		delete(s.queues, old.id)
	}
	s.queues[q.id] = q
	s.byChannel[channel] = q
	return q.id, nil
}

func (s *Simulator) queueLocked(op Op, q arinc429.QueueID, core arinc429.CoreHandle) (*simQueue, error) {
	if err := s.coreLocked(string(op), core); err != nil {
		return nil, err
	}
	sq, ok := s.queues[q]
	if !ok {
		return nil, s.errLocked(string(op), CodeBadHandle)
	}
	if err := s.faultLocked(op, sq.channel); err != nil {
		return sq, err
	}
	return sq, nil
}

func (s *Simulator) QueueStatus(q arinc429.QueueID, core arinc429.CoreHandle) (arinc429.QueueState, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	sq, err := s.queueLocked(OpQueueStatus, q, core)
	if err != nil {
		return arinc429.QueueEmpty, err
	}
	switch {
	case len(sq.words) == 0:
		return arinc429.QueueEmpty, nil
	case len(sq.words) >= sq.capacity:
		return arinc429.QueueFull, nil
	default:
		return arinc429.QueuePartial, nil
	}
}

func (s *Simulator) ReadWord(q arinc429.QueueID, core arinc429.CoreHandle) arinc429.Word {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.coreLocked("read word", core) != nil {
		return 0
	}
	sq, ok := s.queues[q]
	if !ok || len(sq.words) == 0 {
		return 0
	}
	w := sq.words[0]
	sq.words = sq.words[1:]
	return w
}

func (s *Simulator) ReadBlock(buf []arinc429.Word, q arinc429.QueueID, core arinc429.CoreHandle) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	sq, err := s.queueLocked(OpReadBlock, q, core)
	if sq == nil {
		return 0, err
	}
	n := copy(buf, sq.words)
	sq.words = sq.words[n:]
	return n, err
}

func (s *Simulator) StartCard(core arinc429.CoreHandle) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.coreLocked(string(OpStartCard), core); err != nil {
		return err
	}
	if err := s.faultLocked(OpStartCard, AnyChannel); err != nil {
		return err
	}
	s.started[core] = true
	return nil
}

func (s *Simulator) StopCard(core arinc429.CoreHandle) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.coreLocked("stop card", core) != nil {
		return false
	}
	delete(s.started, core)
	return true
}

func (s *Simulator) ReadDiscrete(dionum int, core arinc429.CoreHandle) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.coreLocked(string(OpReadDiscrete), core); err != nil {
		return false, err
	}
	if err := s.faultLocked(OpReadDiscrete, dionum); err != nil {
		return false, err
	}
	if dionum < 1 || dionum > 16 {
		return false, s.errLocked(string(OpReadDiscrete), CodeBadParam)
	}
	return s.discretes[dionum], nil
}

func (s *Simulator) ErrorDescription(code arinc429.Code, _ arinc429.CoreHandle) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "unknown error"
}

// Push appends words to the receive queue of channel as if they arrived from
// the bus. Words beyond the queue capacity are dropped and raise a list
// buffer event. It returns the number of words queued.
func (s *Simulator) Push(channel int, words ...arinc429.Word) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	sq, ok := s.byChannel[channel]
	if !ok {
		return 0
	}
	accepted := 0
	for _, w := range words {
		if len(sq.words) >= sq.capacity {
			s.overflows++
			s.eventLocked(arinc429.Event{Type: arinc429.EventListBuffer, Info: uint32(sq.id), Channel: channel})
			continue
		}
		sq.words = append(sq.words, w)
		accepted++
	}
	return accepted
}

// InjectEvent appends an entry to the event log when it is enabled.
func (s *Simulator) InjectEvent(ev arinc429.Event) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.eventLocked(ev)
}

func (s *Simulator) eventLocked(ev arinc429.Event) bool {
	if len(s.events) >= s.eventLimit {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *Simulator) SetDiscrete(dionum int, value bool) {
	s.mx.Lock()
	s.discretes[dionum] = value
	s.mx.Unlock()
}

// Traffic pushes perTick random words every interval onto the channels that
// have a receive queue while the card is started. It returns when ctx is
// done.
func (s *Simulator) Traffic(ctx context.Context, interval time.Duration, perTick int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		for range perTick {
			ch, w, ok := s.randomWord()
			if !ok {
				break
			}
			s.Push(ch, w)
		}
	}
}

func (s *Simulator) randomWord() (int, arinc429.Word, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.started) == 0 || len(s.byChannel) == 0 {
		return 0, 0, false
	}
	channels := make([]int, 0, len(s.byChannel))
	for ch := range arinc429.ChannelCount {
		if _, ok := s.byChannel[ch]; ok {
			channels = append(channels, ch)
		}
	}
	ch := channels[s.rnd.IntN(len(channels))]
	label := uint8(1 + s.rnd.IntN(0377))
	w := arinc429.NewWord(label, uint8(s.rnd.IntN(4)), s.rnd.Uint32N(1<<19), uint8(s.rnd.IntN(4)))
	return ch, w, true
}

// OpenDevices returns the number of devices currently open.
func (s *Simulator) OpenDevices() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.devices)
}

func (s *Simulator) Started() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.started) > 0
}

// StaleUse returns how many calls were made with a handle that was not open.
func (s *Simulator) StaleUse() uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.stale
}

func (s *Simulator) Overflows() uint64 {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.overflows
}

// Pending returns the number of words waiting in the queue of channel.
func (s *Simulator) Pending(channel int) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	if sq, ok := s.byChannel[channel]; ok {
		return len(sq.words)
	}
	return 0
}
