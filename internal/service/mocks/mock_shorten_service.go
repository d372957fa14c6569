package mocks

import (
	"context"

	"filedrop/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockShortenService struct {
	mock.Mock
}

func (m *MockShortenService) Shorten(ctx context.Context, target string) (*model.ShortLink, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShortLink), args.Error(1)
}
