package executor

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/coactdev/coact/api/schemas"
)

// MockLLM is a testify mock of schemas.LLMClient.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, req schemas.CompletionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// MockSession is a testify mock of schemas.Session.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Observe(ctx context.Context) (*schemas.Observation, error) {
	args := m.Called(ctx)
	if obs, ok := args.Get(0).(*schemas.Observation); ok {
		return obs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Act(ctx context.Context, action schemas.Action) (*schemas.ActResult, error) {
	args := m.Called(ctx, action)
	if res, ok := args.Get(0).(*schemas.ActResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
