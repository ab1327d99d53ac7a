package constant

// Shared structured logging keys.
const (
	Error    = "error"
	UserID   = "user_id"
	ClientID = "client_id"
	RoomID   = "room_id"
	PeerID   = "peer_id"
)
