package storagefake

import (
	"github.com/stretchr/testify/mock"

	"github.com/nicolagi/dfs/storageref"
)

// CommandMock is a testify/mock-based CommandOp double for tests that
// want to set expectations on individual calls (as opposed to Server,
// which just records everything it sees).
type CommandMock struct {
	mock.Mock
}

func (m *CommandMock) Create(path string) (bool, error) {
	args := m.Called(path)
	return args.Bool(0), args.Error(1)
}

func (m *CommandMock) Delete(path string) error {
	return m.Called(path).Error(0)
}

func (m *CommandMock) Copy(path string, source storageref.Endpoint) error {
	return m.Called(path, source).Error(0)
}
