package discrete

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockI2CBus struct {
	mock.Mock
}

func (m *mockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	return m.Called(ctx, address, buffer).Error(0)
}

func (m *mockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *mockI2CBus) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestExpanderInputs_Configure(t *testing.T) {
	ctx := context.Background()
	bus := &mockI2CBus{}
	for _, w := range [][]byte{{regIODIRA, 0xFF}, {regIODIRB, 0xFF}, {regGPPUA, 0xFF}, {regGPPUB, 0xFF}} {
		bus.On("WriteToAddr", ctx, byte(DefaultExpanderAddress), w).Return(nil).Once()
	}
	require.NoError(t, NewExpanderInputs(bus, DefaultExpanderAddress).Configure(ctx, true))
	bus.AssertExpectations(t)
}

func TestExpanderInputs_States(t *testing.T) {
	ctx := context.Background()
	bus := &mockI2CBus{}
	bus.On("WriteToAddr", ctx, byte(0x21), []byte{regGPIOA}).Return(nil).Once()
	bus.On("ReadFromAddr", ctx, byte(0x21), mock.Anything).Return([]byte{0b1000_0001}, nil).Once()
	// port B is busy once, then answers
	bus.On("WriteToAddr", ctx, byte(0x21), []byte{regGPIOB}).Return(ErrBusBusy).Once()
	bus.On("Release", ctx).Return(nil).Once()
	bus.On("WriteToAddr", ctx, byte(0x21), []byte{regGPIOB}).Return(nil).Once()
	bus.On("ReadFromAddr", ctx, byte(0x21), mock.Anything).Return([]byte{0b0000_0100}, nil).Once()

	states := NewExpanderInputs(bus, 0x21).States(ctx)
	require.Len(t, states, ExpanderLines)
	on := map[int]bool{}
	for _, s := range states {
		require.NoError(t, s.Err)
		if s.Value {
			on[s.Line] = true
		}
	}
	assert.Equal(t, map[int]bool{0: true, 7: true, 10: true}, on)
	bus.AssertExpectations(t)
}

func TestExpanderInputs_PortFailure(t *testing.T) {
	ctx := context.Background()
	bus := &mockI2CBus{}
	bus.On("WriteToAddr", ctx, byte(0x20), []byte{regGPIOA}).Return(errors.New("nack")).Once()
	bus.On("WriteToAddr", ctx, byte(0x20), []byte{regGPIOB}).Return(nil).Once()
	bus.On("ReadFromAddr", ctx, byte(0x20), mock.Anything).Return([]byte{0xFF}, nil).Once()

	states := NewExpanderInputs(bus, 0x20).States(ctx)
	for _, s := range states[:8] {
		assert.ErrorContains(t, s.Err, "read port A")
	}
	for _, s := range states[8:] {
		assert.NoError(t, s.Err)
		assert.True(t, s.Value)
	}
}
