package mocks

import (
	"context"

	"filedrop/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockShortLinkRepository struct {
	mock.Mock
}

func (m *MockShortLinkRepository) FindByURL(ctx context.Context, url string) (*model.ShortLink, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShortLink), args.Error(1)
}

func (m *MockShortLinkRepository) FindByID(ctx context.Context, id int64) (*model.ShortLink, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShortLink), args.Error(1)
}

func (m *MockShortLinkRepository) Create(ctx context.Context, url string) (int64, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(int64), args.Error(1)
}
