package acquisition

import (
	"github.com/stretchr/testify/mock"

	"github.com/mklimuk/arinc429"
)

// mockCard is a testify mock of arinc429.Card.
type mockCard struct {
	mock.Mock
}

func (m *mockCard) OpenDevice(index int) (arinc429.DeviceHandle, error) {
	args := m.Called(index)
	return args.Get(0).(arinc429.DeviceHandle), args.Error(1)
}

func (m *mockCard) OpenCore(index int, dev arinc429.DeviceHandle) (arinc429.CoreHandle, error) {
	args := m.Called(index, dev)
	return args.Get(0).(arinc429.CoreHandle), args.Error(1)
}

func (m *mockCard) ResetCard(core arinc429.CoreHandle) {
	m.Called(core)
}

func (m *mockCard) CloseDevice(dev arinc429.DeviceHandle) error {
	return m.Called(dev).Error(0)
}

func (m *mockCard) ConfigureEventLog(flags arinc429.EventLogFlags, count int, core arinc429.CoreHandle) error {
	return m.Called(flags, count, core).Error(0)
}

func (m *mockCard) ReadEventLog(core arinc429.CoreHandle) (arinc429.Event, bool) {
	args := m.Called(core)
	return args.Get(0).(arinc429.Event), args.Bool(1)
}

func (m *mockCard) ConfigureChannel(flags arinc429.ChannelFlags, channel int, core arinc429.CoreHandle) error {
	return m.Called(flags, channel, core).Error(0)
}

func (m *mockCard) DefaultFilter(flags arinc429.FilterFlags, channel int, core arinc429.CoreHandle) (arinc429.FilterAddr, error) {
	args := m.Called(flags, channel, core)
	return args.Get(0).(arinc429.FilterAddr), args.Error(1)
}

func (m *mockCard) CreateReceiveQueue(flags arinc429.QueueFlags, capacity int, filter arinc429.FilterAddr, core arinc429.CoreHandle) (arinc429.QueueID, error) {
	args := m.Called(flags, capacity, filter, core)
	return args.Get(0).(arinc429.QueueID), args.Error(1)
}

func (m *mockCard) QueueStatus(q arinc429.QueueID, core arinc429.CoreHandle) (arinc429.QueueState, error) {
	args := m.Called(q, core)
	return args.Get(0).(arinc429.QueueState), args.Error(1)
}

func (m *mockCard) ReadWord(q arinc429.QueueID, core arinc429.CoreHandle) arinc429.Word {
	return m.Called(q, core).Get(0).(arinc429.Word)
}

func (m *mockCard) ReadBlock(buf []arinc429.Word, q arinc429.QueueID, core arinc429.CoreHandle) (int, error) {
	args := m.Called(buf, q, core)
	return args.Int(0), args.Error(1)
}

func (m *mockCard) StartCard(core arinc429.CoreHandle) error {
	return m.Called(core).Error(0)
}

func (m *mockCard) StopCard(core arinc429.CoreHandle) bool {
	return m.Called(core).Bool(0)
}

func (m *mockCard) ReadDiscrete(dionum int, core arinc429.CoreHandle) (bool, error) {
	args := m.Called(dionum, core)
	return args.Bool(0), args.Error(1)
}

func (m *mockCard) ErrorDescription(code arinc429.Code, core arinc429.CoreHandle) string {
	return m.Called(code, core).String(0)
}

// fill returns a Run function copying words into the ReadBlock buffer.
func fill(words ...arinc429.Word) func(mock.Arguments) {
	return func(args mock.Arguments) {
		copy(args.Get(0).([]arinc429.Word), words)
	}
}
