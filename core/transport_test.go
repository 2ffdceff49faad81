package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportFIFOWithinChannel(t *testing.T) {
	tr := NewTransport(16)
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.Send("a-to-b", Frame{Kind: FrameSignal, Payload: i}))
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		frame, err := tr.Receive(ctx, "a-to-b")
		require.NoError(t, err)
		assert.Equal(t, i, frame.Payload)
	}
}

func TestTransportBackPressure(t *testing.T) {
	tr := NewTransport(2)
	require.NoError(t, tr.Send("ch", Frame{Kind: FrameSignal}))
	require.NoError(t, tr.Send("ch", Frame{Kind: FrameSignal}))

	err := tr.Send("ch", Frame{Kind: FrameSignal})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackPressure))

	// Draining one frame frees a slot.
	_, ok := tr.TryReceive("ch")
	assert.True(t, ok)
	assert.NoError(t, tr.Send("ch", Frame{Kind: FrameSignal}))
}

func TestTransportReceiveHonoursContext(t *testing.T) {
	tr := NewTransport(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Receive(ctx, "empty")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransportClose(t *testing.T) {
	tr := NewTransport(4)
	require.NoError(t, tr.Send("ch", Frame{Kind: FrameGradient}))
	tr.Close()

	err := tr.Send("ch", Frame{Kind: FrameGradient})
	assert.ErrorIs(t, err, ErrShuttingDown)

	// Queued frames stay receivable after close.
	frame, err := tr.Receive(context.Background(), "ch")
	require.NoError(t, err)
	assert.Equal(t, FrameGradient, frame.Kind)
}

func TestTransportDepth(t *testing.T) {
	tr := NewTransport(8)
	assert.Equal(t, 0, tr.Depth("ch"))
	require.NoError(t, tr.Send("ch", Frame{}))
	require.NoError(t, tr.Send("ch", Frame{}))
	assert.Equal(t, 2, tr.Depth("ch"))
}
