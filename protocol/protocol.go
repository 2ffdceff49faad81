// Package protocol wraps transport frames as typed messages and negotiates
// protocol version and capabilities per connection.
//
// Compatibility follows semantic versioning: peers must agree on the major
// version and the receiver's minor version must be at least the sender's.
// Capability negotiation selects the intersection of what both sides
// support; the agreed set applies to every message on the connection.
package protocol

import (
	"fmt"

	"github.com/2lab-ai/hal9go/core"
)

// Version is a semantic protocol version.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// CurrentVersion is the protocol version this build speaks.
var CurrentVersion = Version{Major: 1, Minor: 2, Patch: 0}

// String formats the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// CompatibleWith reports whether a receiver at version v can accept
// messages from a sender at version peer.
func (v Version) CompatibleWith(peer Version) bool {
	return v.Major == peer.Major && v.Minor >= peer.Minor
}

// Compression selects payload compression on a connection.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// Encryption selects payload encryption on a connection. Only "none" is
// currently shipped; the type exists so negotiation carries it through.
type Encryption string

const (
	EncryptionNone Encryption = "none"
)

// Capabilities describes what one side of a connection supports.
type Capabilities struct {
	Compression     []Compression `json:"compression"`
	Encryption      []Encryption  `json:"encryption"`
	Streaming       bool          `json:"streaming"`
	OrderedDelivery bool          `json:"ordered_delivery"`
	MaxMessageSize  int           `json:"max_message_size"`
}

// DefaultCapabilities is what this build offers during negotiation.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Compression:     []Compression{CompressionNone, CompressionGzip},
		Encryption:      []Encryption{EncryptionNone},
		Streaming:       true,
		OrderedDelivery: true,
		MaxMessageSize:  4 << 20,
	}
}

// AgreedCapabilities is the negotiated intersection for one connection.
type AgreedCapabilities struct {
	Compression     Compression `json:"compression"`
	Encryption      Encryption  `json:"encryption"`
	Streaming       bool        `json:"streaming"`
	OrderedDelivery bool        `json:"ordered_delivery"`
	MaxMessageSize  int         `json:"max_message_size"`
}

// Handshake carries a peer's version and capabilities.
type Handshake struct {
	Version      Version      `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
}

// Negotiate computes the agreed capability set between ours and a peer's
// handshake. Version incompatibility rejects the handshake outright.
func Negotiate(ours Handshake, peer Handshake) (AgreedCapabilities, error) {
	if !ours.Version.CompatibleWith(peer.Version) {
		return AgreedCapabilities{}, fmt.Errorf(
			"local %s vs peer %s: %w", ours.Version, peer.Version, core.ErrVersionMismatch)
	}

	agreed := AgreedCapabilities{
		Compression:     CompressionNone,
		Encryption:      EncryptionNone,
		Streaming:       ours.Capabilities.Streaming && peer.Capabilities.Streaming,
		OrderedDelivery: ours.Capabilities.OrderedDelivery && peer.Capabilities.OrderedDelivery,
		MaxMessageSize:  minInt(ours.Capabilities.MaxMessageSize, peer.Capabilities.MaxMessageSize),
	}

	// Prefer the strongest compression both sides list.
	if containsCompression(ours.Capabilities.Compression, CompressionGzip) &&
		containsCompression(peer.Capabilities.Compression, CompressionGzip) {
		agreed.Compression = CompressionGzip
	}

	return agreed, nil
}

func containsCompression(list []Compression, c Compression) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
