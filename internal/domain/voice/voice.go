package voice

import (
	"encoding/json"
	"errors"
)

// Direction of a peer transport: towards the media engine or from it.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionSend, DirectionRecv:
		return Direction(s), true
	default:
		return "", false
	}
}

// Operation outcomes. Room operations return these as values across the
// serialization boundary so a failed call never poisons room state.
var (
	ErrRoomNotFound             = errors.New("room not found")
	ErrPeerNotFound             = errors.New("peer not found in room")
	ErrTransportNotFound        = errors.New("transport not found")
	ErrProducerNotFound         = errors.New("producer not found in room")
	ErrConsumerNotFound         = errors.New("consumer not found")
	ErrBanned                   = errors.New("peer is banned from room")
	ErrRoomLocked               = errors.New("room is locked")
	ErrNotHost                  = errors.New("peer is not the room host")
	ErrInvalidDirection         = errors.New("transport is not configured for sending")
	ErrNoReceiveTransport       = errors.New("no receiving transport available for peer")
	ErrIncompatibleCapabilities = errors.New("peer cannot consume the specified producer")
	ErrRateLimited              = errors.New("too many messages")
)

// ErrorCode maps an operation outcome to its wire code. Unrecognized errors
// collapse to internal-error so engine failures are never leaked verbatim.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room-not-found"
	case errors.Is(err, ErrPeerNotFound):
		return "peer-not-found"
	case errors.Is(err, ErrTransportNotFound):
		return "transport-not-found"
	case errors.Is(err, ErrProducerNotFound):
		return "producer-not-found"
	case errors.Is(err, ErrConsumerNotFound):
		return "consumer-not-found"
	case errors.Is(err, ErrBanned):
		return "banned"
	case errors.Is(err, ErrRoomLocked):
		return "room-locked"
	case errors.Is(err, ErrNotHost):
		return "not-host"
	case errors.Is(err, ErrInvalidDirection):
		return "invalid-direction"
	case errors.Is(err, ErrNoReceiveTransport):
		return "no-recv-transport"
	case errors.Is(err, ErrIncompatibleCapabilities):
		return "incompatible-capabilities"
	case errors.Is(err, ErrRateLimited):
		return "rate-limit"
	default:
		return "internal-error"
	}
}

// Participant is the public shape of one room member.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Muted    bool   `json:"muted"`
	IsHost   bool   `json:"isHost"`
}

// JoinResult is returned to the joining peer.
type JoinResult struct {
	RoomID             string          `json:"roomId"`
	PeerID             string          `json:"peerId"`
	IsHost             bool            `json:"isHost"`
	Locked             bool            `json:"locked"`
	RouterCapabilities json.RawMessage `json:"routerRtpCapabilities"`
	Participants       []Participant   `json:"participants"`
}

// RoomState is the observable snapshot of a room, used by the REST surface.
type RoomState struct {
	RoomID       string        `json:"roomId"`
	HostID       string        `json:"hostId,omitempty"`
	Locked       bool          `json:"locked"`
	Peers        []PeerState   `json:"peers"`
	Participants []Participant `json:"participants"`
}

type PeerState struct {
	PeerID    string          `json:"peerId"`
	Username  string          `json:"username"`
	Muted     bool            `json:"muted"`
	Producers []ProducerState `json:"producers"`
	Consumers []ConsumerState `json:"consumers"`
}

type ProducerState struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type ConsumerState struct {
	ID         string `json:"id"`
	ProducerID string `json:"producerId"`
	Kind       string `json:"kind"`
}
