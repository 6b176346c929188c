package arinc429

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_Status(t *testing.T) {
	assert.Equal(t, "OK", CodeNone.Status())
	assert.Equal(t, "TIMEOUT", CodeTimeout.Status())
	assert.Equal(t, "ERROR", CodeFail.Status())
	assert.Equal(t, "ERROR", CodeUnderflow.Status())
}

func TestHardwareError(t *testing.T) {
	err := NewHardwareError("read block", CodeUnderflow)
	assert.ErrorIs(t, err, ErrUnderflow)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "read block failed with code -108", err.Error())

	err.Description = "list empty"
	assert.Equal(t, "read block failed with code -108: list empty", err.Error())

	assert.ErrorIs(t, NewHardwareError("status", CodeTimeout), ErrTimeout)
	// non negative codes never pass as success
	assert.Equal(t, CodeFail, NewHardwareError("open", 7).Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNone, CodeOf(nil))
	assert.Equal(t, Code(-22), CodeOf(fmt.Errorf("wrapped: %w", NewHardwareError("configure", -22))))
	assert.Equal(t, CodeTimeout, CodeOf(fmt.Errorf("queue 3: %w", ErrTimeout)))
	assert.Equal(t, CodeUnderflow, CodeOf(ErrUnderflow))
	assert.Equal(t, CodeFail, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeFail, CodeOf(ErrNotReady))
}

func TestLifecycleErrors(t *testing.T) {
	for _, err := range []error{ErrNotOpen, ErrHandleMismatch, ErrNotReady, ErrAlreadyMonitoring, ErrClosed} {
		assert.ErrorIs(t, err, ErrLifecycle)
	}
	assert.NotErrorIs(t, ErrDeviceInUse, ErrLifecycle)
}

func TestChannelSetupError(t *testing.T) {
	hw := NewHardwareError("create receive queue", CodeFail)
	err := &ChannelSetupError{Channel: 3, Stage: StageQueue, Err: hw}
	assert.Equal(t, "channel 3: create receive queue: create receive queue failed with code -1", err.Error())

	var target *HardwareError
	assert.ErrorAs(t, err, &target)
	assert.Same(t, hw, target)

	global := &ChannelSetupError{Channel: -1, Stage: StageEventLog, Err: errors.New("no memory")}
	assert.Equal(t, "configure event log: no memory", global.Error())
}
