package backend

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAdapter is a mock implementation of Adapter using testify/mock.
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Kind() Kind {
	args := m.Called()
	return args.Get(0).(Kind)
}

func (m *MockAdapter) Supports(c Capability) bool {
	args := m.Called(c)
	return args.Bool(0)
}

func (m *MockAdapter) AnalyzeImage(ctx context.Context, data []byte, mime, prompt string) (Result, error) {
	args := m.Called(ctx, data, mime, prompt)
	return args.Get(0).(Result), args.Error(1)
}

func (m *MockAdapter) AnalyzeAudio(ctx context.Context, data []byte, mime, prompt string) (Result, error) {
	args := m.Called(ctx, data, mime, prompt)
	return args.Get(0).(Result), args.Error(1)
}

func (m *MockAdapter) Chat(ctx context.Context, text string) (Result, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(Result), args.Error(1)
}
