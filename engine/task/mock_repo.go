package task

import (
	"context"

	"github.com/compozy/tenantflow/engine/core"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a testify mock implementation for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Upsert(ctx context.Context, t *Task) (*Task, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockRepository) Get(ctx context.Context, id core.ID) (*Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, filter *Filter) ([]*Task, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Task), args.Error(1)
}

func (m *MockRepository) Exists(ctx context.Context, filter *Filter) (bool, error) {
	args := m.Called(ctx, filter)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, t *Task, from Status) error {
	args := m.Called(ctx, t, from)
	return args.Error(0)
}

func (m *MockRepository) UpdateProgress(ctx context.Context, id core.ID, current int64) error {
	args := m.Called(ctx, id, current)
	return args.Error(0)
}

func (m *MockRepository) Delete(ctx context.Context, filter *Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) Tenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
