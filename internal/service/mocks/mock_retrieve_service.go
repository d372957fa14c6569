package mocks

import (
	"context"

	"filedrop/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockRetrieveService struct {
	mock.Mock
}

func (m *MockRetrieveService) LookupFile(ctx context.Context, name, secret string) (*model.Entry, error) {
	args := m.Called(ctx, name, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}

func (m *MockRetrieveService) LookupLink(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockRetrieveService) DeleteByToken(ctx context.Context, name, tok string) error {
	args := m.Called(ctx, name, tok)
	return args.Error(0)
}

func (m *MockRetrieveService) UpdateExpirationByToken(ctx context.Context, name, tok string, requested int64) (*model.Entry, error) {
	args := m.Called(ctx, name, tok, requested)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entry), args.Error(1)
}
