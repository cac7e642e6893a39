package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock of Logger, useful to assert that a component logs a given event.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level) //nolint:forcetypeassert
}

// With returns the mock itself unless an expectation for With was registered.
func (m *MockLogger) With(keyValues ...any) Logger {
	for _, call := range m.ExpectedCalls {
		if call.Method == "With" {
			args := m.Called(keyValues...)
			return args.Get(0).(Logger) //nolint:forcetypeassert
		}
	}

	return m
}
