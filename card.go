package arinc429

// ChannelCount is the number of receive channels on the supported cards.
const ChannelCount = 8

// DeviceHandle identifies an open physical card. Zero means not open.
type DeviceHandle uintptr

// CoreHandle identifies a logical core of an open card. Zero means not open.
type CoreHandle uintptr

// FilterAddr is the address of a message filter record on the card.
type FilterAddr uint32

// QueueID is the address of a receive list on the card. Zero means the queue
// was never created. Only compare it for identity.
type QueueID uint32

type QueueState int

const (
	QueueEmpty QueueState = iota
	QueuePartial
	QueueFull
)

func (s QueueState) String() string {
	switch s {
	case QueueEmpty:
		return "EMPTY"
	case QueuePartial:
		return "PARTIAL"
	case QueueFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// HasData reports whether a read against the queue is expected to return words.
func (s QueueState) HasData() bool {
	return s == QueuePartial || s == QueueFull
}

type EventType int

const (
	EventOther EventType = iota
	// EventListBuffer is raised when a list buffer crosses empty/full.
	EventListBuffer
	// EventDecoderError is raised when a channel decoder detects a bad word.
	EventDecoderError
)

func (t EventType) String() string {
	switch t {
	case EventListBuffer:
		return "LIST"
	case EventDecoderError:
		return "DECODER_ERROR"
	default:
		return "OTHER"
	}
}

// Event is one entry drained from the card event log.
type Event struct {
	Type    EventType
	Info    uint32
	Channel int
}

// ChannelFlags are symbolic channel configuration bits. Adapters translate
// them to vendor values.
type ChannelFlags uint32

const ChannelDefault ChannelFlags = 0

const (
	ChannelHighSpeed ChannelFlags = 1 << iota
	ChannelAutoSpeed
	ChannelParityEven
	ChannelParityData
	ChannelLogErrors
	ChannelSelfTest
)

type QueueFlags uint32

const QueueFIFO QueueFlags = 0

const (
	QueueCircular QueueFlags = 1 << iota
	QueuePingPong
	QueueLog
)

type FilterFlags uint32

const FilterDefault FilterFlags = 0

const (
	FilterSequential FilterFlags = 1 << iota
	FilterLog
	FilterTimeTag
)

type EventLogFlags uint16

const (
	EventLogDisable EventLogFlags = 0
	EventLogEnable  EventLogFlags = 1
)

// Card is the vendor driver surface the acquisition engine depends on.
// Every call returns immediately with the current hardware state. Failures
// carry the vendor code in a *HardwareError.
type Card interface {
	OpenDevice(index int) (DeviceHandle, error)
	OpenCore(index int, dev DeviceHandle) (CoreHandle, error)
	ResetCard(core CoreHandle)
	CloseDevice(dev DeviceHandle) error

	ConfigureEventLog(flags EventLogFlags, count int, core CoreHandle) error
	// ReadEventLog drains one entry. ok is false when the log is empty.
	ReadEventLog(core CoreHandle) (ev Event, ok bool)

	ConfigureChannel(flags ChannelFlags, channel int, core CoreHandle) error
	DefaultFilter(flags FilterFlags, channel int, core CoreHandle) (FilterAddr, error)
	CreateReceiveQueue(flags QueueFlags, capacity int, filter FilterAddr, core CoreHandle) (QueueID, error)

	QueueStatus(q QueueID, core CoreHandle) (QueueState, error)
	ReadWord(q QueueID, core CoreHandle) Word
	// ReadBlock reads up to len(buf) words. n is the count actually read and
	// may be non-zero even when err is set.
	ReadBlock(buf []Word, q QueueID, core CoreHandle) (n int, err error)

	StartCard(core CoreHandle) error
	StopCard(core CoreHandle) bool

	ReadDiscrete(dionum int, core CoreHandle) (bool, error)
	ErrorDescription(code Code, core CoreHandle) string
}
