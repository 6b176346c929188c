package acquisition

import (
	"log/slog"
	"time"

	"github.com/mklimuk/arinc429"
)

const (
	DefaultQueueCapacity = 1024
	DefaultEventLogSize  = 1024
	DefaultBlockSize     = 512
	DefaultBusyInterval  = time.Millisecond
	DefaultIdleInterval  = 10 * time.Millisecond
	DefaultReadInterval  = 10 * time.Millisecond

	// MaxBlockCount is the largest word count a block read accepts.
	MaxBlockCount = 65535
)

type SessionOpts struct {
	DeviceIndex int
	CoreIndex   int
	Channels    int

	ChannelFlags  arinc429.ChannelFlags
	FilterFlags   arinc429.FilterFlags
	QueueFlags    arinc429.QueueFlags
	QueueCapacity int
	EventLogSize  int

	// BlockSize is the maximum number of words read from one queue per
	// poller iteration.
	BlockSize    int
	BusyInterval time.Duration
	IdleInterval time.Duration
	ReadInterval time.Duration

	// BridgeQueue bounds the number of undelivered batches and reports. Zero
	// means unbounded.
	BridgeQueue int

	Logger *slog.Logger
	Now    func() time.Time
}

type SessionOpt func(*SessionOpts)

func WithDevice(device, core int) SessionOpt {
	return func(o *SessionOpts) {
		o.DeviceIndex = device
		o.CoreIndex = core
	}
}

func WithChannels(n int) SessionOpt {
	return func(o *SessionOpts) {
		o.Channels = n
	}
}

func WithChannelFlags(flags arinc429.ChannelFlags) SessionOpt {
	return func(o *SessionOpts) {
		o.ChannelFlags = flags
	}
}

func WithFilterFlags(flags arinc429.FilterFlags) SessionOpt {
	return func(o *SessionOpts) {
		o.FilterFlags = flags
	}
}

func WithQueue(flags arinc429.QueueFlags, capacity int) SessionOpt {
	return func(o *SessionOpts) {
		o.QueueFlags = flags
		o.QueueCapacity = capacity
	}
}

func WithEventLogSize(n int) SessionOpt {
	return func(o *SessionOpts) {
		o.EventLogSize = n
	}
}

func WithBlockSize(n int) SessionOpt {
	return func(o *SessionOpts) {
		o.BlockSize = n
	}
}

// WithIntervals sets the poller sleep after a busy and after an idle
// iteration.
func WithIntervals(busy, idle time.Duration) SessionOpt {
	return func(o *SessionOpts) {
		o.BusyInterval = busy
		o.IdleInterval = idle
	}
}

func WithReadInterval(d time.Duration) SessionOpt {
	return func(o *SessionOpts) {
		o.ReadInterval = d
	}
}

func WithBridgeQueue(n int) SessionOpt {
	return func(o *SessionOpts) {
		o.BridgeQueue = n
	}
}

func WithLogger(l *slog.Logger) SessionOpt {
	return func(o *SessionOpts) {
		o.Logger = l
	}
}

func WithClock(now func() time.Time) SessionOpt {
	return func(o *SessionOpts) {
		o.Now = now
	}
}

func defaultSessionOpts() SessionOpts {
	return SessionOpts{
		Channels:      arinc429.ChannelCount,
		ChannelFlags:  arinc429.ChannelAutoSpeed | arinc429.ChannelLogErrors,
		FilterFlags:   arinc429.FilterDefault,
		QueueFlags:    arinc429.QueueFIFO,
		QueueCapacity: DefaultQueueCapacity,
		EventLogSize:  DefaultEventLogSize,
		BlockSize:     DefaultBlockSize,
		BusyInterval:  DefaultBusyInterval,
		IdleInterval:  DefaultIdleInterval,
		ReadInterval:  DefaultReadInterval,
		Now:           time.Now,
	}
}
