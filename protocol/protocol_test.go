package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2lab-ai/hal9go/core"
)

func TestVersionCompatibility(t *testing.T) {
	tests := []struct {
		receiver, sender Version
		compatible       bool
	}{
		{Version{1, 2, 0}, Version{1, 2, 0}, true},
		{Version{1, 3, 0}, Version{1, 2, 5}, true},
		{Version{1, 1, 0}, Version{1, 2, 0}, false},
		{Version{2, 0, 0}, Version{1, 9, 0}, false},
		{Version{1, 2, 9}, Version{1, 2, 0}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.compatible, tt.receiver.CompatibleWith(tt.sender),
			"receiver %s sender %s", tt.receiver, tt.sender)
	}
}

func TestNegotiateSelectsIntersection(t *testing.T) {
	ours := Handshake{Version: Version{1, 2, 0}, Capabilities: DefaultCapabilities()}
	peer := Handshake{
		Version: Version{1, 1, 0},
		Capabilities: Capabilities{
			Compression:     []Compression{CompressionNone},
			Encryption:      []Encryption{EncryptionNone},
			Streaming:       true,
			OrderedDelivery: false,
			MaxMessageSize:  1 << 20,
		},
	}

	agreed, err := Negotiate(ours, peer)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, agreed.Compression)
	assert.True(t, agreed.Streaming)
	assert.False(t, agreed.OrderedDelivery)
	assert.Equal(t, 1<<20, agreed.MaxMessageSize)
}

func TestNegotiatePrefersGzipWhenShared(t *testing.T) {
	ours := Handshake{Version: Version{1, 2, 0}, Capabilities: DefaultCapabilities()}
	peer := Handshake{Version: Version{1, 0, 0}, Capabilities: DefaultCapabilities()}

	agreed, err := Negotiate(ours, peer)
	require.NoError(t, err)
	assert.Equal(t, CompressionGzip, agreed.Compression)
}

func TestNegotiateRejectsIncompatibleVersion(t *testing.T) {
	ours := Handshake{Version: Version{1, 2, 0}, Capabilities: DefaultCapabilities()}
	peer := Handshake{Version: Version{2, 0, 0}, Capabilities: DefaultCapabilities()}

	_, err := Negotiate(ours, peer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrVersionMismatch))
	assert.True(t, core.IsProtocolError(err))
}

func TestRegisterProtocolRejectsDuplicate(t *testing.T) {
	m := NewManager(core.NewTransport(8), "test", nil)
	handler := HandlerFunc(func(ctx context.Context, msg Message) error { return nil })

	require.NoError(t, m.RegisterProtocol("signal", handler))
	err := m.RegisterProtocol("signal", handler)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicate))
}

func TestSendReceiveRoundTrip(t *testing.T) {
	m := NewManager(core.NewTransport(8), "loop", nil)
	require.NoError(t, m.Send(KindSignal, "hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindSignal, msg.Kind)
	assert.Equal(t, "hello", msg.Payload)

	sent, delivered, dropped := m.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(0), dropped)
}

func TestUnknownKindDroppedAndCounted(t *testing.T) {
	transport := core.NewTransport(8)
	m := NewManager(transport, "loop", nil)

	// Inject a message with a kind this build does not understand, then a
	// good one behind it.
	bogus := Message{Kind: MessageKind("telepathy"), Version: CurrentVersion, Payload: "?"}
	require.NoError(t, transport.Send("loop", core.Frame{Kind: core.FrameSignal, Payload: bogus}))
	require.NoError(t, m.Send(KindGradient, "after"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindGradient, msg.Kind)

	_, _, dropped := m.Stats()
	assert.Equal(t, uint64(1), dropped)
}

func TestFramingCorruptionIsFatal(t *testing.T) {
	transport := core.NewTransport(8)
	m := NewManager(transport, "loop", nil)
	require.NoError(t, transport.Send("loop", core.Frame{Kind: core.FrameSignal, Payload: 42}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := m.Receive(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFramingCorruption))
}

func TestSendUnknownKindRejected(t *testing.T) {
	m := NewManager(core.NewTransport(8), "loop", nil)
	err := m.Send(MessageKind("telepathy"), "?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownMessageKind))
}

func TestManagerNegotiateWithPinsCapabilities(t *testing.T) {
	m := NewManager(core.NewTransport(8), "peer", nil)
	_, ok := m.Agreed()
	assert.False(t, ok)

	peer := Handshake{Version: Version{1, 0, 0}, Capabilities: DefaultCapabilities()}
	agreed, err := m.NegotiateWith(peer)
	require.NoError(t, err)

	pinned, ok := m.Agreed()
	require.True(t, ok)
	assert.Equal(t, agreed, pinned)
}
