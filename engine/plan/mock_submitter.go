package plan

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSubmitter is a testify mock implementation for testing
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, req SubmitRequest) (Handle, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Handle), args.Error(1)
}
