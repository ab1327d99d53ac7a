package events

import (
	"encoding/json"

	"github.com/okaypadak/everup-backend/internal/domain/voice"
)

// Message is the signaling envelope. Every frame on the wire, inbound or
// outbound, is one of these.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound payloads.

type JoinEvent struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type LeaveEvent struct {
	RoomID string `json:"roomId"`
}

type CreateTransportEvent struct {
	RoomID    string `json:"roomId"`
	Direction string `json:"direction"`
}

type ConnectTransportEvent struct {
	RoomID         string          `json:"roomId"`
	TransportID    string          `json:"transportId"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

type ProduceEvent struct {
	RoomID        string          `json:"roomId"`
	TransportID   string          `json:"transportId"`
	Kind          string          `json:"kind"`
	RtpParameters json.RawMessage `json:"rtpParameters"`
}

type ConsumeEvent struct {
	RoomID          string          `json:"roomId"`
	ProducerID      string          `json:"producerId"`
	RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
}

type ResumeConsumerEvent struct {
	RoomID     string `json:"roomId"`
	ConsumerID string `json:"consumerId"`
}

type SetMuteEvent struct {
	RoomID string `json:"roomId"`
	Muted  bool   `json:"muted"`
}

type TransferHostEvent struct {
	RoomID       string `json:"roomId"`
	TargetPeerID string `json:"targetPeerId"`
}

type LockRoomEvent struct {
	RoomID string `json:"roomId"`
}

type KickPeerEvent struct {
	RoomID       string `json:"roomId"`
	TargetPeerID string `json:"targetPeerId"`
	Ban          bool   `json:"ban"`
}

type ParticipantsEvent struct {
	RoomID string `json:"roomId"`
}

// Outbound payloads.

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConnectedEvent struct {
	ClientID string `json:"clientId"`
	Username string `json:"username"`
}

type ParticipantListEvent struct {
	Participants []voice.Participant `json:"participants"`
	Locked       bool                `json:"locked"`
}

type PeerUpdatedEvent struct {
	PeerID string `json:"peerId"`
	Muted  bool   `json:"muted"`
}

type NewProducerEvent struct {
	ProducerID string `json:"producerId"`
	PeerID     string `json:"peerId"`
	Kind       string `json:"kind"`
}

type HostChangedEvent struct {
	HostID string `json:"hostId"`
}

type RoomLockedEvent struct {
	Locked bool `json:"locked"`
}

type PeerKickedEvent struct {
	PeerID string `json:"peerId"`
	Banned bool   `json:"banned"`
}

type KickedEvent struct {
	RoomID string `json:"roomId"`
	Banned bool   `json:"banned"`
}

// New builds an envelope. Payloads in this package are plain structs that
// cannot fail to encode, so the marshal error is dropped.
func New(msgType string, payload any) Message {
	data, _ := json.Marshal(payload)
	return Message{Type: msgType, Data: data}
}
