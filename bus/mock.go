package bus

import "github.com/stretchr/testify/mock"

// MockBus is a testify mock of Bus.
type MockBus struct {
	mock.Mock
}

var _ Bus = (*MockBus)(nil)

func (m *MockBus) ChangeNodeState(node uint8, cmd NMTCommand) error {
	args := m.Called(node, cmd)
	return args.Error(0)
}

func (m *MockBus) ReadObject(req ObjectRequest, cb Callback) error {
	args := m.Called(req, cb)
	return args.Error(0)
}

func (m *MockBus) WriteObject(req ObjectRequest, cb Callback) error {
	args := m.Called(req, cb)
	return args.Error(0)
}

func (m *MockBus) CloseTransfer(node uint8) error {
	args := m.Called(node)
	return args.Error(0)
}

func (m *MockBus) Close() error {
	args := m.Called()
	return args.Error(0)
}
