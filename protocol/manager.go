package protocol

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/2lab-ai/hal9go/core"
)

// MessageKind identifies the semantic type of a protocol message.
type MessageKind string

const (
	KindSignal    MessageKind = "signal"
	KindGradient  MessageKind = "gradient"
	KindConsensus MessageKind = "consensus"
)

// frameKindOf maps a message kind to its transport frame kind.
func frameKindOf(kind MessageKind) (core.FrameKind, bool) {
	switch kind {
	case KindSignal:
		return core.FrameSignal, true
	case KindGradient:
		return core.FrameGradient, true
	case KindConsensus:
		return core.FrameConsensus, true
	default:
		return "", false
	}
}

// Message is a typed envelope over the transport.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Version Version     `json:"version"`
	Payload interface{} `json:"payload"`
}

// Handler processes received messages of one registered protocol.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Manager frames typed messages over a core.Transport channel and
// dispatches inbound messages to registered handlers. Unknown message
// kinds are dropped and counted rather than failing the connection;
// framing corruption is fatal for that connection only.
type Manager struct {
	transport *core.Transport
	channel   string
	version   Version
	logger    core.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	agreed *AgreedCapabilities

	dropped   atomic.Uint64
	sent      atomic.Uint64
	delivered atomic.Uint64
}

// NewManager creates a protocol manager bound to one transport channel.
func NewManager(transport *core.Transport, channel string, logger core.Logger) *Manager {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Manager{
		transport: transport,
		channel:   channel,
		version:   CurrentVersion,
		logger:    logger,
		handlers:  make(map[string]Handler),
	}
}

// RegisterProtocol installs a named handler. Registering the same name
// twice is rejected.
func (m *Manager) RegisterProtocol(name string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[name]; exists {
		return fmt.Errorf("protocol %q: %w", name, core.ErrDuplicate)
	}
	m.handlers[name] = handler
	return nil
}

// Handshake returns this manager's negotiation offer.
func (m *Manager) Handshake() Handshake {
	return Handshake{Version: m.version, Capabilities: DefaultCapabilities()}
}

// NegotiateWith runs capability negotiation against a peer handshake and
// pins the agreed set on this connection.
func (m *Manager) NegotiateWith(peer Handshake) (AgreedCapabilities, error) {
	agreed, err := Negotiate(m.Handshake(), peer)
	if err != nil {
		return AgreedCapabilities{}, err
	}
	m.mu.Lock()
	m.agreed = &agreed
	m.mu.Unlock()
	m.logger.Debug("protocol negotiated", map[string]interface{}{
		"channel":     m.channel,
		"compression": string(agreed.Compression),
		"streaming":   agreed.Streaming,
	})
	return agreed, nil
}

// Agreed returns the negotiated capabilities, if negotiation ran.
func (m *Manager) Agreed() (AgreedCapabilities, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.agreed == nil {
		return AgreedCapabilities{}, false
	}
	return *m.agreed, true
}

// Send frames a payload as the given kind and enqueues it. Backpressure
// bubbles to the caller untouched.
func (m *Manager) Send(kind MessageKind, payload interface{}) error {
	frameKind, ok := frameKindOf(kind)
	if !ok {
		return fmt.Errorf("send %q: %w", kind, core.ErrUnknownMessageKind)
	}
	msg := Message{Kind: kind, Version: m.version, Payload: payload}
	if err := m.transport.Send(m.channel, core.Frame{Kind: frameKind, Payload: msg}); err != nil {
		return err
	}
	m.sent.Add(1)
	return nil
}

// Receive blocks for the next well-formed message. Frames that do not
// carry a Message are framing corruption and fail the connection; frames
// with an unknown kind are dropped, counted and skipped.
func (m *Manager) Receive(ctx context.Context) (Message, error) {
	for {
		frame, err := m.transport.Receive(ctx, m.channel)
		if err != nil {
			return Message{}, err
		}
		msg, ok := frame.Payload.(Message)
		if !ok {
			return Message{}, fmt.Errorf("channel %q: %w", m.channel, core.ErrFramingCorruption)
		}
		if _, known := frameKindOf(msg.Kind); !known {
			m.dropped.Add(1)
			m.logger.Warn("dropping message of unknown kind", map[string]interface{}{
				"channel": m.channel,
				"kind":    string(msg.Kind),
			})
			continue
		}
		if !m.version.CompatibleWith(msg.Version) {
			m.dropped.Add(1)
			continue
		}
		m.delivered.Add(1)
		return msg, nil
	}
}

// Dispatch receives messages until the context ends, routing each to the
// handler registered under the message kind's name. Kinds without a
// handler are dropped and counted.
func (m *Manager) Dispatch(ctx context.Context) error {
	for {
		msg, err := m.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		m.mu.RLock()
		handler, ok := m.handlers[string(msg.Kind)]
		m.mu.RUnlock()
		if !ok {
			m.dropped.Add(1)
			continue
		}
		if err := handler.Handle(ctx, msg); err != nil {
			m.logger.ErrorWithContext(ctx, "message handler failed", map[string]interface{}{
				"channel": m.channel,
				"kind":    string(msg.Kind),
				"error":   err.Error(),
			})
		}
	}
}

// Stats reports send/receive/drop counters for this connection.
func (m *Manager) Stats() (sent, delivered, dropped uint64) {
	return m.sent.Load(), m.delivered.Load(), m.dropped.Load()
}
