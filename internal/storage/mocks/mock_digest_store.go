package mocks

import (
	"github.com/stretchr/testify/mock"
)

type MockDigestStore struct {
	mock.Mock
}

func (m *MockDigestStore) Put(digest string, data []byte) error {
	args := m.Called(digest, data)
	return args.Error(0)
}

func (m *MockDigestStore) Delete(digest string) error {
	args := m.Called(digest)
	return args.Error(0)
}

func (m *MockDigestStore) Path(digest string) string {
	args := m.Called(digest)
	return args.String(0)
}

func (m *MockDigestStore) Exists(digest string) bool {
	args := m.Called(digest)
	return args.Bool(0)
}

func (m *MockDigestStore) Quarantine(digest, name string) error {
	args := m.Called(digest, name)
	return args.Error(0)
}
