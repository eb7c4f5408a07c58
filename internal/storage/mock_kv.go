package storage

import (
	"github.com/stretchr/testify/mock"
)

type MockKV struct {
	mock.Mock
}

func (m *MockKV) Get(key string) (string, bool, error) {
	args := m.Called(key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKV) Set(key string, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockKV) Delete(key string) error {
	args := m.Called(key)
	return args.Error(0)
}
