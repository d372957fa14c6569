package mocks

import (
	"context"
	"time"

	"filedrop/internal/model"
	"filedrop/internal/repository"

	"github.com/stretchr/testify/mock"
)

type MockEntryRepository struct {
	mock.Mock
}

func (m *MockEntryRepository) FindByDigest(ctx context.Context, digest string) (*model.Entry, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) FindByID(ctx context.Context, id int64) (*model.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) FindByAddr(ctx context.Context, addr string) ([]*model.Entry, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) Create(ctx context.Context, e *model.Entry) (int64, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEntryRepository) Save(ctx context.Context, e *model.Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEntryRepository) ListScanCandidates(ctx context.Context, staleBefore *time.Time) ([]*model.Entry, error) {
	args := m.Called(ctx, staleBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.Entry, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Entry), args.Error(1)
}

func (m *MockEntryRepository) ApplyScanResults(ctx context.Context, updates []repository.ScanUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}
