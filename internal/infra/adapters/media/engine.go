package media

import (
	"context"
	"encoding/json"

	"github.com/okaypadak/everup-backend/internal/domain/voice"
)

// Engine allocates media resources for rooms and peers. Room orchestration
// treats every handle as opaque: it never inspects media traffic, it only
// creates, pauses and closes resources in a defined order.
type Engine interface {
	// CreateRouter allocates the per-room routing context. Called once per
	// room lifetime, closed when the room is destroyed.
	CreateRouter(ctx context.Context, roomID string) (Router, error)

	Close() error
}

// Router is the per-room media context.
type Router interface {
	// Capabilities describes what receivers must support to consume media
	// routed through this room.
	Capabilities() json.RawMessage

	CreateTransport(peerID string, direction voice.Direction) (Transport, error)

	// CanConsume reports whether a receiver with the given capabilities can
	// consume the producer's encoding.
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool

	Close() error
}

// Transport is one negotiated network path between a peer and the engine.
type Transport interface {
	ID() string
	Direction() voice.Direction
	Info() *TransportInfo

	// Connect finishes transport negotiation with the client-supplied
	// parameters and returns the engine's side of the handshake.
	Connect(dtlsParameters json.RawMessage) (json.RawMessage, error)

	// Produce turns an inbound stream on a send transport into a named
	// producer.
	Produce(kind string, rtpParameters json.RawMessage) (Producer, error)

	// Consume subscribes this (receive) transport to an existing producer.
	// Consumers start paused and must be resumed explicitly.
	Consume(producerID string, rtpCapabilities json.RawMessage) (Consumer, error)

	Close() error
}

type Producer interface {
	ID() string
	Kind() string
	Pause()
	Resume()
	Close() error
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	Info() *ConsumerInfo
	Resume()
	Close() error
}

// TransportInfo is handed to the client after createTransport.
type TransportInfo struct {
	ID         string          `json:"id"`
	Direction  voice.Direction `json:"direction"`
	ICEServers json.RawMessage `json:"iceServers,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ConsumerInfo is handed to the client after consume.
type ConsumerInfo struct {
	ID            string          `json:"consumerId"`
	ProducerID    string          `json:"producerId"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtpParameters,omitempty"`
	Paused        bool            `json:"paused"`
}
