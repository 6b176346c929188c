package arinc429

import (
	"errors"
	"fmt"
)

// Code is a vendor status value. Negative values are errors, everything else
// is opaque.
type Code int

const (
	CodeNone      Code = 0
	CodeFail      Code = -1
	CodeTimeout   Code = -90
	CodeUnderflow Code = -108
)

// Status maps the code to the short status reported to consumers.
func (c Code) Status() string {
	switch c {
	case CodeNone:
		return "OK"
	case CodeTimeout:
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

var (
	ErrTimeout   = errors.New("timeout waiting for data")
	ErrUnderflow = errors.New("read attempted on empty queue")
	ErrLifecycle = errors.New("operation not allowed in current state")

	ErrNotOpen           = fmt.Errorf("%w: hardware not initialized", ErrLifecycle)
	ErrHandleMismatch    = fmt.Errorf("%w: core handle mismatch", ErrLifecycle)
	ErrNotReady          = fmt.Errorf("%w: receiver not initialized", ErrLifecycle)
	ErrAlreadyMonitoring = fmt.Errorf("%w: monitoring already active", ErrLifecycle)
	ErrClosed            = fmt.Errorf("%w: session closed", ErrLifecycle)

	ErrDeviceInUse = errors.New("device is claimed by another session")
)

// HardwareError carries a negative vendor status returned by a Card call.
type HardwareError struct {
	Op          string
	Code        Code
	Description string
}

func (e *HardwareError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s failed with code %d: %s", e.Op, e.Code, e.Description)
	}
	return fmt.Sprintf("%s failed with code %d", e.Op, e.Code)
}

// Is lets errors.Is match timeout and underflow codes against the sentinels.
func (e *HardwareError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Code == CodeTimeout
	case ErrUnderflow:
		return e.Code == CodeUnderflow
	}
	return false
}

func NewHardwareError(op string, code Code) *HardwareError {
	if code >= 0 {
		code = CodeFail
	}
	return &HardwareError{Op: op, Code: code}
}

// CodeOf extracts the status code carried by err.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var hw *HardwareError
	if errors.As(err, &hw) {
		return hw.Code
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrUnderflow):
		return CodeUnderflow
	}
	return CodeFail
}

type SetupStage string

const (
	StageEventLog  SetupStage = "configure event log"
	StageConfigure SetupStage = "configure channel"
	StageFilter    SetupStage = "create default filter"
	StageQueue     SetupStage = "create receive queue"
)

// ChannelSetupError reports which channel and stage aborted receiver setup.
type ChannelSetupError struct {
	Channel int
	Stage   SetupStage
	Err     error
}

func (e *ChannelSetupError) Error() string {
	if e.Channel < 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("channel %d: %s: %v", e.Channel, e.Stage, e.Err)
}

func (e *ChannelSetupError) Unwrap() error {
	return e.Err
}
