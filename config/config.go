package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/arinc429"
	"github.com/mklimuk/arinc429/acquisition"
	"github.com/mklimuk/arinc429/discrete"
)

type Config struct {
	Card      Card      `yaml:"card"`
	Receiver  Receiver  `yaml:"receiver"`
	Monitor   Monitor   `yaml:"monitor"`
	Read      Read      `yaml:"read"`
	Bridge    Bridge    `yaml:"bridge"`
	Discrete  Discrete  `yaml:"discrete"`
	Simulator Simulator `yaml:"simulator"`
	USB       USB       `yaml:"usb"`
}

type Card struct {
	Adapter string `yaml:"adapter"`
	Device  int    `yaml:"device"`
	Core    int    `yaml:"core"`
}

type Receiver struct {
	Channels      int      `yaml:"channels"`
	ChannelFlags  []string `yaml:"channel_flags"`
	FilterFlags   []string `yaml:"filter_flags"`
	QueueFlags    []string `yaml:"queue_flags"`
	QueueCapacity int      `yaml:"queue_capacity"`
	EventLogSize  int      `yaml:"event_log_size"`
}

type Monitor struct {
	BlockSize int `yaml:"block_size"`
	BusyMs    int `yaml:"busy_ms"`
	IdleMs    int `yaml:"idle_ms"`
	StaleMs   int `yaml:"stale_ms"`
}

type Read struct {
	PollMs    int `yaml:"poll_ms"`
	TimeoutMs int `yaml:"timeout_ms"`
}

type Bridge struct {
	// QueueSize bounds undelivered notifications, 0 means unbounded.
	QueueSize int `yaml:"queue_size"`
}

type Discrete struct {
	// Source is one of card, gpio, nanopi, mcp2221 or expander.
	Source     string   `yaml:"source"`
	Lines      []int    `yaml:"lines"`
	Pins       []string `yaml:"pins"`
	IntervalMs int      `yaml:"interval_ms"`

	// I2CBus and Address locate the MCP23017 of the expander source.
	I2CBus  string `yaml:"i2c_bus"`
	Address int    `yaml:"address"`
	PullUp  bool   `yaml:"pull_up"`
}

type Simulator struct {
	Devices      int    `yaml:"devices"`
	TrafficMs    int    `yaml:"traffic_ms"`
	WordsPerTick int    `yaml:"words_per_tick"`
	Seed         uint64 `yaml:"seed"`
}

type USB struct {
	Devices []USBDevice `yaml:"devices"`
}

type USBDevice struct {
	Name      string `yaml:"name"`
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
}

var (
	channelFlagNames = map[string]arinc429.ChannelFlags{
		"default":   arinc429.ChannelDefault,
		"highspeed": arinc429.ChannelHighSpeed,
		"autospeed": arinc429.ChannelAutoSpeed,
		"pareven":   arinc429.ChannelParityEven,
		"pardata":   arinc429.ChannelParityData,
		"logerr":    arinc429.ChannelLogErrors,
		"selftest":  arinc429.ChannelSelfTest,
	}
	filterFlagNames = map[string]arinc429.FilterFlags{
		"default": arinc429.FilterDefault,
		"seq":     arinc429.FilterSequential,
		"log":     arinc429.FilterLog,
		"timetag": arinc429.FilterTimeTag,
	}
	queueFlagNames = map[string]arinc429.QueueFlags{
		"fifo":     arinc429.QueueFIFO,
		"circular": arinc429.QueueCircular,
		"pingpong": arinc429.QueuePingPong,
		"log":      arinc429.QueueLog,
	}
)

// Default returns the configuration used for keys missing from a file.
func Default() Config {
	return Config{
		Card: Card{Adapter: "sim"},
		Receiver: Receiver{
			Channels:      arinc429.ChannelCount,
			ChannelFlags:  []string{"autospeed", "logerr"},
			FilterFlags:   []string{"default"},
			QueueFlags:    []string{"fifo"},
			QueueCapacity: acquisition.DefaultQueueCapacity,
			EventLogSize:  acquisition.DefaultEventLogSize,
		},
		Monitor: Monitor{
			BlockSize: acquisition.DefaultBlockSize,
			BusyMs:    1,
			IdleMs:    10,
			StaleMs:   500,
		},
		Read: Read{
			PollMs:    10,
			TimeoutMs: 1000,
		},
		Discrete: Discrete{
			Source:     "card",
			Lines:      slices.Clone(discrete.DefaultLines),
			IntervalMs: 200,
			Address:    discrete.DefaultExpanderAddress,
		},
		Simulator: Simulator{
			Devices:      1,
			TrafficMs:    20,
			WordsPerTick: 4,
		},
		USB: USB{
			Devices: []USBDevice{
				{Name: "MCP2221", VendorID: discrete.MCP2221VendorID, ProductID: discrete.MCP2221ProductID},
			},
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Card.Device < 0 || c.Card.Core < 0 {
		errs = append(errs, errors.New("card: device and core must not be negative"))
	}
	if c.Receiver.Channels < 1 || c.Receiver.Channels > arinc429.ChannelCount {
		errs = append(errs, fmt.Errorf("receiver: channels must be in 1..%d", arinc429.ChannelCount))
	}
	if c.Receiver.QueueCapacity < 1 {
		errs = append(errs, errors.New("receiver: queue_capacity must be positive"))
	}
	if c.Receiver.EventLogSize < 0 || c.Receiver.EventLogSize > 0xFFFF {
		errs = append(errs, errors.New("receiver: event_log_size must be in 0..65535"))
	}
	if _, err := c.ChannelFlags(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.FilterFlags(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.QueueFlags(); err != nil {
		errs = append(errs, err)
	}
	if c.Monitor.BlockSize < 1 || c.Monitor.BlockSize > acquisition.MaxBlockCount {
		errs = append(errs, fmt.Errorf("monitor: block_size must be in 1..%d", acquisition.MaxBlockCount))
	}
	if c.Monitor.BusyMs < 0 || c.Monitor.IdleMs < 0 || c.Monitor.StaleMs < 0 {
		errs = append(errs, errors.New("monitor: intervals must not be negative"))
	}
	if c.Read.PollMs < 1 || c.Read.TimeoutMs < 0 {
		errs = append(errs, errors.New("read: poll_ms must be positive and timeout_ms not negative"))
	}
	if c.Bridge.QueueSize < 0 {
		errs = append(errs, errors.New("bridge: queue_size must not be negative"))
	}
	switch c.Discrete.Source {
	case "card", "mcp2221":
	case "expander":
		if c.Discrete.Address < 0x20 || c.Discrete.Address > 0x27 {
			errs = append(errs, fmt.Errorf("discrete: expander address %#x not in 0x20..0x27", c.Discrete.Address))
		}
	case "gpio", "nanopi":
		if len(c.Discrete.Pins) == 0 {
			errs = append(errs, fmt.Errorf("discrete: %s source requires pins", c.Discrete.Source))
		}
	default:
		errs = append(errs, fmt.Errorf("discrete: unknown source %q", c.Discrete.Source))
	}
	if c.Simulator.Devices < 1 {
		errs = append(errs, errors.New("simulator: devices must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) ChannelFlags() (arinc429.ChannelFlags, error) {
	return parseFlags("receiver: channel_flags", c.Receiver.ChannelFlags, channelFlagNames)
}

func (c Config) FilterFlags() (arinc429.FilterFlags, error) {
	return parseFlags("receiver: filter_flags", c.Receiver.FilterFlags, filterFlagNames)
}

func (c Config) QueueFlags() (arinc429.QueueFlags, error) {
	return parseFlags("receiver: queue_flags", c.Receiver.QueueFlags, queueFlagNames)
}

func parseFlags[F ~uint32](field string, names []string, table map[string]F) (F, error) {
	var out F
	for _, name := range names {
		f, ok := table[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("%s: unknown flag %q", field, name)
		}
		out |= f
	}
	return out, nil
}

func (c Config) StaleThreshold() time.Duration {
	return ms(c.Monitor.StaleMs)
}

func (c Config) ReadTimeout() time.Duration {
	return ms(c.Read.TimeoutMs)
}

// Options turns the file settings into session options. Flags are assumed
// valid, see Validate.
func (c Config) Options() []acquisition.SessionOpt {
	chFlags, _ := c.ChannelFlags()
	fFlags, _ := c.FilterFlags()
	qFlags, _ := c.QueueFlags()
	return []acquisition.SessionOpt{
		acquisition.WithDevice(c.Card.Device, c.Card.Core),
		acquisition.WithChannels(c.Receiver.Channels),
		acquisition.WithChannelFlags(chFlags),
		acquisition.WithFilterFlags(fFlags),
		acquisition.WithQueue(qFlags, c.Receiver.QueueCapacity),
		acquisition.WithEventLogSize(c.Receiver.EventLogSize),
		acquisition.WithBlockSize(c.Monitor.BlockSize),
		acquisition.WithIntervals(ms(c.Monitor.BusyMs), ms(c.Monitor.IdleMs)),
		acquisition.WithReadInterval(ms(c.Read.PollMs)),
		acquisition.WithBridgeQueue(c.Bridge.QueueSize),
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
