package mocks

import (
	"io"

	"github.com/stretchr/testify/mock"
)

// MockRawStore implements storage.RawStore
type MockRawStore struct {
	mock.Mock
}

// Save archives a raw message and returns the relative path
func (m *MockRawStore) Save(content io.Reader) (string, error) {
	args := m.Called(content)
	return args.String(0), args.Error(1)
}

// Get retrieves an archived raw message by its path
func (m *MockRawStore) Get(filePath string) (io.ReadCloser, error) {
	args := m.Called(filePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// Delete removes an archived raw message by its path
func (m *MockRawStore) Delete(filePath string) error {
	args := m.Called(filePath)
	return args.Error(0)
}
