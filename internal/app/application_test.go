package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

type fakeShutdowner struct {
	calls int
}

func (f *fakeShutdowner) Shutdown(...fx.ShutdownOption) error {
	f.calls++
	return nil
}

func TestRequestShutdownRecordsRecoveredPanic(t *testing.T) {
	sd := &fakeShutdowner{}
	var runErr error

	func() {
		defer requestShutdown(sd, &runErr)
		panic("boom")
	}()

	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "job execution panicked")
	assert.Equal(t, 1, sd.calls)
}

func TestRequestShutdownKeepsExistingError(t *testing.T) {
	sd := &fakeShutdowner{}
	jobErr := errors.New("job failed first")
	runErr := jobErr

	func() {
		defer requestShutdown(sd, &runErr)
		panic("boom")
	}()

	assert.Equal(t, jobErr, runErr)
	assert.Equal(t, 1, sd.calls)
}

func TestRequestShutdownWithoutPanic(t *testing.T) {
	sd := &fakeShutdowner{}
	var runErr error

	func() {
		defer requestShutdown(sd, &runErr)
	}()

	assert.NoError(t, runErr)
	assert.Equal(t, 1, sd.calls)
}
