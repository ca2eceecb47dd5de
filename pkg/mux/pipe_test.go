package mux_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toruslabs/casper-provider-go/pkg/mux"
)

func TestPipe_BothDirections(t *testing.T) {
	t.Parallel()

	a, b := mux.Pipe()

	require.NoError(t, a.WriteMessage([]byte("ping")))
	msg, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(msg))

	require.NoError(t, b.WriteMessage([]byte("pong")))
	msg, err = a.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(msg))
}

func TestPipe_ReadDrainsBufferedAfterClose(t *testing.T) {
	t.Parallel()

	a, b := mux.Pipe()

	require.NoError(t, a.WriteMessage([]byte("first")))
	require.NoError(t, a.WriteMessage([]byte("second")))
	require.NoError(t, a.Close())

	msg, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg))

	msg, err = b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "second", string(msg))

	_, err = b.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipe_WriteAfterClose(t *testing.T) {
	t.Parallel()

	a, b := mux.Pipe()
	require.NoError(t, b.Close())

	err := a.WriteMessage([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestPipe_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	a, b := mux.Pipe()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestPipe_CloseUnblocksPendingRead(t *testing.T) {
	t.Parallel()

	a, b := mux.Pipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := a.ReadMessage()
		errCh <- err
	}()

	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-errCh, io.EOF)
}
