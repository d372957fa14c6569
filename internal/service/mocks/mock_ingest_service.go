package mocks

import (
	"context"

	"filedrop/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Ingest(ctx context.Context, req service.IngestRequest) (*service.UploadResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockIngestService) IngestRemote(ctx context.Context, rawURL string, req service.IngestRequest) (*service.UploadResult, error) {
	args := m.Called(ctx, rawURL, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}
