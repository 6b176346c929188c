package acquisition

import (
	"fmt"
	"time"

	"github.com/mklimuk/arinc429"
)

// Acquired is one word captured by the poller.
type Acquired struct {
	Channel int
	Label   uint8
	Word    arinc429.Word
	// Timestamp is the capture time in epoch milliseconds.
	Timestamp int64
	// Elapsed is the monotonic capture offset from session creation.
	Elapsed time.Duration
}

// Batch holds the words read in one poller iteration, in channel then read
// order.
type Batch []Acquired

// GlobalChannel marks an error report not tied to a channel.
const GlobalChannel = -1

// ErrorReport is delivered through the error bridge.
type ErrorReport struct {
	Channel int
	Code    arinc429.Code
	Status  string
	Message string
}

func (r ErrorReport) Global() bool {
	return r.Channel < 0
}

func (r ErrorReport) String() string {
	if r.Global() {
		return fmt.Sprintf("%s (%d): %s", r.Status, r.Code, r.Message)
	}
	return fmt.Sprintf("channel %d: %s (%d): %s", r.Channel, r.Status, r.Code, r.Message)
}

func newReport(channel int, code arinc429.Code, msg string) ErrorReport {
	return ErrorReport{
		Channel: channel,
		Code:    code,
		Status:  code.Status(),
		Message: msg,
	}
}

// Result is the outcome of a lifecycle operation. Expected hardware
// conditions are reported here rather than as a bare error.
type Result struct {
	Success bool
	Message string
	Code    arinc429.Code
	Err     error
}

func (r Result) String() string {
	if r.Success {
		return r.Message
	}
	return fmt.Sprintf("%s (code %d)", r.Message, r.Code)
}

func success(msg string) Result {
	return Result{Success: true, Message: msg}
}

func failure(err error) Result {
	return Result{Message: err.Error(), Code: arinc429.CodeOf(err), Err: err}
}

// HardwareResult extends Result with the handles opened by
// InitializeHardware.
type HardwareResult struct {
	Result
	Device arinc429.DeviceHandle
	Core   arinc429.CoreHandle
}

type State int32

const (
	StateUninitialized State = iota
	StateHardwareOpen
	StateReceiverReady
	StateMonitoring
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHardwareOpen:
		return "hardware-open"
	case StateReceiverReady:
		return "receiver-ready"
	case StateMonitoring:
		return "monitoring"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
