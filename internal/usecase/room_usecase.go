package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/okaypadak/everup-backend/internal/application/constant"
	"github.com/okaypadak/everup-backend/internal/application/metric"
	"github.com/okaypadak/everup-backend/internal/domain/events"
	"github.com/okaypadak/everup-backend/internal/domain/voice"
	"github.com/okaypadak/everup-backend/internal/infra/adapters/media"
	"github.com/okaypadak/everup-backend/internal/infra/adapters/memory"
)

// Close codes delivered to a peer removed by the host.
const (
	CloseKicked = 4403
)

type RoomUsecase interface {
	Join(ctx context.Context, roomID, peerID, username string) (*voice.JoinResult, error)
	Leave(ctx context.Context, roomID, peerID string) error

	CreateTransport(ctx context.Context, roomID, peerID string, direction voice.Direction) (*media.TransportInfo, error)
	ConnectTransport(ctx context.Context, roomID, peerID, transportID string, dtlsParameters json.RawMessage) (json.RawMessage, error)
	Produce(ctx context.Context, roomID, peerID, transportID, kind string, rtpParameters json.RawMessage) (string, error)
	Consume(ctx context.Context, roomID, peerID, producerID string, rtpCapabilities json.RawMessage) (*media.ConsumerInfo, error)
	ResumeConsumer(ctx context.Context, roomID, peerID, consumerID string) error

	SetMute(ctx context.Context, roomID, peerID string, muted bool) error
	TransferHost(ctx context.Context, roomID, byPeerID, targetPeerID string) error
	SetLocked(ctx context.Context, roomID, byPeerID string, locked bool) error
	Kick(ctx context.Context, roomID, byPeerID, targetPeerID string, ban bool) (bool, error)

	Participants(ctx context.Context, roomID string) ([]voice.Participant, bool, error)
	RoomState(ctx context.Context, roomID string) (*voice.RoomState, error)
	RouterCapabilities(ctx context.Context, roomID string) (json.RawMessage, error)

	Shutdown(ctx context.Context)
}

// peerSession is everything one connection owns inside one room.
type peerSession struct {
	id       string
	username string
	muted    bool

	transports map[string]media.Transport
	producers  map[string]media.Producer
	consumers  map[string]media.Consumer
}

func newPeerSession(id, username string) *peerSession {
	return &peerSession{
		id:         id,
		username:   username,
		transports: make(map[string]media.Transport),
		producers:  make(map[string]media.Producer),
		consumers:  make(map[string]media.Consumer),
	}
}

// closeResources releases every engine handle the session owns. Consumers
// reference producers and producers reference transports, so the close order
// is consumers, then producers, then transports.
func (p *peerSession) closeResources() {
	for id, consumer := range p.consumers {
		if err := consumer.Close(); err != nil {
			slog.Warn("close consumer", slog.String("consumer_id", id), slog.Any(constant.Error, err))
		}
		delete(p.consumers, id)
	}

	for id, producer := range p.producers {
		if err := producer.Close(); err != nil {
			slog.Warn("close producer", slog.String("producer_id", id), slog.Any(constant.Error, err))
		}
		delete(p.producers, id)
	}

	for id, transport := range p.transports {
		if err := transport.Close(); err != nil {
			slog.Warn("close transport", slog.String("transport_id", id), slog.Any(constant.Error, err))
		}
		delete(p.transports, id)
	}
}

func (p *peerSession) recvTransport() (media.Transport, bool) {
	for _, t := range p.transports {
		if t.Direction() == voice.DirectionRecv {
			return t, true
		}
	}
	return nil, false
}

// room is one live conference. mu is the room's serialization domain: at
// most one operation runs inside it at a time, media engine calls included,
// so the next operation always observes a fully applied previous one.
type room struct {
	mu sync.Mutex

	id        string
	hostID    string
	locked    bool
	destroyed bool
	router    media.Router
	peers     map[string]*peerSession
}

type roomUsecase struct {
	// mu guards rooms and bans. Lock order: a room's mutex may be held
	// while taking mu, never the other way around.
	mu    sync.RWMutex
	rooms map[string]*room

	// bans outlives the room object on purpose: a ban issued for a logical
	// room id still applies after the room emptied and was recreated.
	bans map[string]map[string]struct{}

	engine media.Engine
	conns  memory.WebsocketConnectionRepository
}

func NewRoomUsecase(engine media.Engine, conns memory.WebsocketConnectionRepository) RoomUsecase {
	return &roomUsecase{
		rooms:  make(map[string]*room),
		bans:   make(map[string]map[string]struct{}),
		engine: engine,
		conns:  conns,
	}
}

func (u *roomUsecase) Join(ctx context.Context, roomID, peerID, username string) (*voice.JoinResult, error) {
	var r *room

	// A room can be destroyed between the registry lookup and its own lock;
	// retry against a fresh instance instead of resurrecting a dead one.
	for {
		r = u.getOrCreateRoom(roomID)
		r.mu.Lock()
		if !r.destroyed {
			break
		}
		r.mu.Unlock()
	}
	defer r.mu.Unlock()

	if u.isBanned(roomID, peerID) {
		// Do not leave behind a room that only ever saw a rejected join.
		if len(r.peers) == 0 {
			u.removeRoom(r)
		}
		return nil, voice.ErrBanned
	}

	_, alreadyMember := r.peers[peerID]

	if r.locked && len(r.peers) > 0 && peerID != r.hostID && !alreadyMember {
		return nil, voice.ErrRoomLocked
	}

	// Rejoin with the same peer id tears the stale session down first.
	if alreadyMember {
		r.peers[peerID].closeResources()
		delete(r.peers, peerID)
		metric.DecVoicePeers()
	}

	if r.router == nil {
		router, err := u.engine.CreateRouter(ctx, roomID)
		if err != nil {
			if len(r.peers) == 0 {
				u.removeRoom(r)
			}
			return nil, fmt.Errorf("create router: %w", err)
		}
		r.router = router
	}

	sess := newPeerSession(peerID, username)
	r.peers[peerID] = sess
	metric.IncVoicePeers()

	if r.hostID == "" {
		r.hostID = peerID
	}

	slog.Info("peer joined room",
		slog.String(constant.PeerID, peerID),
		slog.String(constant.RoomID, roomID),
		slog.Bool("is_host", r.hostID == peerID),
	)

	result := &voice.JoinResult{
		RoomID:             roomID,
		PeerID:             peerID,
		IsHost:             r.hostID == peerID,
		Locked:             r.locked,
		RouterCapabilities: r.router.Capabilities(),
		Participants:       u.participantsLocked(r),
	}

	u.broadcastParticipantsLocked(r)

	return result, nil
}

// Leave is idempotent: a peer that already left, or a room that no longer
// exists, is a no-op.
func (u *roomUsecase) Leave(ctx context.Context, roomID, peerID string) error {
	r, ok := u.getRoom(roomID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return nil
	}

	if _, ok := r.peers[peerID]; !ok {
		return nil
	}

	u.removePeerLocked(r, peerID)

	slog.Info("peer left room",
		slog.String(constant.PeerID, peerID),
		slog.String(constant.RoomID, roomID),
	)

	if !r.destroyed {
		u.broadcastParticipantsLocked(r)
	}

	return nil
}

func (u *roomUsecase) CreateTransport(ctx context.Context, roomID, peerID string, direction voice.Direction) (*media.TransportInfo, error) {
	var info *media.TransportInfo

	err := u.withRoom(roomID, func(r *room) error {
		sess, ok := r.peers[peerID]
		if !ok {
			return voice.ErrPeerNotFound
		}

		transport, err := r.router.CreateTransport(peerID, direction)
		if err != nil {
			return fmt.Errorf("create transport: %w", err)
		}

		sess.transports[transport.ID()] = transport
		info = transport.Info()
		return nil
	})

	return info, err
}

func (u *roomUsecase) ConnectTransport(ctx context.Context, roomID, peerID, transportID string, dtlsParameters json.RawMessage) (json.RawMessage, error) {
	var answer json.RawMessage

	err := u.withRoom(roomID, func(r *room) error {
		sess, ok := r.peers[peerID]
		if !ok {
			return voice.ErrPeerNotFound
		}

		transport, ok := sess.transports[transportID]
		if !ok {
			return voice.ErrTransportNotFound
		}

		out, err := transport.Connect(dtlsParameters)
		if err != nil {
			return fmt.Errorf("connect transport: %w", err)
		}

		answer = out
		return nil
	})

	return answer, err
}

func (u *roomUsecase) Produce(ctx context.Context, roomID, peerID, transportID, kind string, rtpParameters json.RawMessage) (string, error) {
	var producerID string

	err := u.withRoom(roomID, func(r *room) error {
		sess, ok := r.peers[peerID]
		if !ok {
			return voice.ErrPeerNotFound
		}

		transport, ok := sess.transports[transportID]
		if !ok {
			return voice.ErrTransportNotFound
		}

		if transport.Direction() != voice.DirectionSend {
			return voice.ErrInvalidDirection
		}

		producer, err := transport.Produce(kind, rtpParameters)
		if err != nil {
			return fmt.Errorf("produce: %w", err)
		}

		sess.producers[producer.ID()] = producer

		// A muted peer keeps publishing, paused, so unmute is instant.
		if sess.muted {
			producer.Pause()
		}

		producerID = producer.ID()

		u.broadcastLocked(r, events.New("new-producer", events.NewProducerEvent{
			ProducerID: producer.ID(),
			PeerID:     peerID,
			Kind:       producer.Kind(),
		}))

		return nil
	})

	return producerID, err
}

func (u *roomUsecase) Consume(ctx context.Context, roomID, peerID, producerID string, rtpCapabilities json.RawMessage) (*media.ConsumerInfo, error) {
	var info *media.ConsumerInfo

	err := u.withRoom(roomID, func(r *room) error {
		sess, ok := r.peers[peerID]
		if !ok {
			return voice.ErrPeerNotFound
		}

		if !u.producerExistsLocked(r, producerID) {
			return voice.ErrProducerNotFound
		}

		recv, ok := sess.recvTransport()
		if !ok {
			return voice.ErrNoReceiveTransport
		}

		if !r.router.CanConsume(producerID, rtpCapabilities) {
			return voice.ErrIncompatibleCapabilities
		}

		consumer, err := recv.Consume(producerID, rtpCapabilities)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}

		sess.consumers[consumer.ID()] = consumer
		info = consumer.Info()
		return nil
	})

	return info, err
}

func (u *roomUsecase) ResumeConsumer(ctx context.Context, roomID, peerID, consumerID string) error {
	return u.withRoom(roomID, func(r *room) error {
		sess, ok := r.peers[peerID]
		if !ok {
			return voice.ErrPeerNotFound
		}

		consumer, ok := sess.consumers[consumerID]
		if !ok {
			return voice.ErrConsumerNotFound
		}

		consumer.Resume()
		return nil
	})
}

func (u *roomUsecase) SetMute(ctx context.Context, roomID, peerID string, muted bool) error {
	return u.withRoom(roomID, func(r *room) error {
		sess, ok := r.peers[peerID]
		if !ok {
			return voice.ErrPeerNotFound
		}

		sess.muted = muted

		for _, producer := range sess.producers {
			if muted {
				producer.Pause()
			} else {
				producer.Resume()
			}
		}

		u.broadcastLocked(r, events.New("peer-updated", events.PeerUpdatedEvent{
			PeerID: peerID,
			Muted:  muted,
		}))

		return nil
	})
}

func (u *roomUsecase) TransferHost(ctx context.Context, roomID, byPeerID, targetPeerID string) error {
	return u.withRoom(roomID, func(r *room) error {
		if byPeerID != r.hostID {
			return voice.ErrNotHost
		}

		if _, ok := r.peers[targetPeerID]; !ok {
			return voice.ErrPeerNotFound
		}

		r.hostID = targetPeerID

		slog.Info("host transferred",
			slog.String(constant.RoomID, roomID),
			slog.String(constant.PeerID, targetPeerID),
		)

		u.broadcastLocked(r, events.New("host-changed", events.HostChangedEvent{HostID: targetPeerID}))
		u.broadcastParticipantsLocked(r)

		return nil
	})
}

func (u *roomUsecase) SetLocked(ctx context.Context, roomID, byPeerID string, locked bool) error {
	return u.withRoom(roomID, func(r *room) error {
		if byPeerID != r.hostID {
			return voice.ErrNotHost
		}

		r.locked = locked

		u.broadcastLocked(r, events.New("room-locked", events.RoomLockedEvent{Locked: locked}))

		return nil
	})
}

// Kick removes the target from the room and, with ban, blocks the peer id
// from any future join under this room id. The target's connection receives
// a kicked notice and is closed.
func (u *roomUsecase) Kick(ctx context.Context, roomID, byPeerID, targetPeerID string, ban bool) (bool, error) {
	err := u.withRoom(roomID, func(r *room) error {
		if byPeerID != r.hostID {
			return voice.ErrNotHost
		}

		if _, ok := r.peers[targetPeerID]; !ok {
			return voice.ErrPeerNotFound
		}

		if ban {
			u.addBan(roomID, targetPeerID)
		}

		u.removePeerLocked(r, targetPeerID)

		metric.CountKick(ban)

		slog.Info("peer kicked",
			slog.String(constant.RoomID, roomID),
			slog.String(constant.PeerID, targetPeerID),
			slog.Bool("ban", ban),
		)

		if !r.destroyed {
			u.broadcastLocked(r, events.New("peer-kicked", events.PeerKickedEvent{
				PeerID: targetPeerID,
				Banned: ban,
			}))
		}

		u.conns.Write(targetPeerID, events.New("kicked", events.KickedEvent{RoomID: roomID, Banned: ban}))
		u.conns.CloseWithCode(targetPeerID, CloseKicked, "kicked")

		if !r.destroyed {
			u.broadcastParticipantsLocked(r)
		}

		return nil
	})

	return ban && err == nil, err
}

func (u *roomUsecase) Participants(ctx context.Context, roomID string) ([]voice.Participant, bool, error) {
	var (
		participants []voice.Participant
		locked       bool
	)

	err := u.withRoom(roomID, func(r *room) error {
		participants = u.participantsLocked(r)
		locked = r.locked
		return nil
	})

	return participants, locked, err
}

// RoomState reports an absent room as an empty snapshot, mirroring the REST
// surface contract: state lookups are observational and never create rooms.
func (u *roomUsecase) RoomState(ctx context.Context, roomID string) (*voice.RoomState, error) {
	state := &voice.RoomState{RoomID: roomID, Peers: []voice.PeerState{}, Participants: []voice.Participant{}}

	err := u.withRoom(roomID, func(r *room) error {
		state.HostID = r.hostID
		state.Locked = r.locked
		state.Participants = u.participantsLocked(r)

		for peerID, sess := range r.peers {
			ps := voice.PeerState{
				PeerID:    peerID,
				Username:  sess.username,
				Muted:     sess.muted,
				Producers: []voice.ProducerState{},
				Consumers: []voice.ConsumerState{},
			}

			for _, producer := range sess.producers {
				ps.Producers = append(ps.Producers, voice.ProducerState{ID: producer.ID(), Kind: producer.Kind()})
			}
			for _, consumer := range sess.consumers {
				ps.Consumers = append(ps.Consumers, voice.ConsumerState{
					ID:         consumer.ID(),
					ProducerID: consumer.ProducerID(),
					Kind:       consumer.Kind(),
				})
			}

			state.Peers = append(state.Peers, ps)
		}

		sort.Slice(state.Peers, func(i, j int) bool { return state.Peers[i].PeerID < state.Peers[j].PeerID })
		return nil
	})
	if err != nil && !errors.Is(err, voice.ErrRoomNotFound) {
		return nil, err
	}

	// An absent room reports as empty: rooms exist exactly while occupied.
	return state, nil
}

func (u *roomUsecase) RouterCapabilities(ctx context.Context, roomID string) (json.RawMessage, error) {
	var caps json.RawMessage

	err := u.withRoom(roomID, func(r *room) error {
		caps = r.router.Capabilities()
		return nil
	})

	return caps, err
}

// Shutdown closes every room and its engine resources. Connections are torn
// down separately by the HTTP server shutdown.
func (u *roomUsecase) Shutdown(ctx context.Context) {
	u.mu.Lock()
	rooms := make([]*room, 0, len(u.rooms))
	for _, r := range u.rooms {
		rooms = append(rooms, r)
	}
	u.rooms = make(map[string]*room)
	u.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		for peerID, sess := range r.peers {
			sess.closeResources()
			delete(r.peers, peerID)
			metric.DecVoicePeers()
		}
		if r.router != nil {
			if err := r.router.Close(); err != nil {
				slog.Warn("close router", slog.String(constant.RoomID, r.id), slog.Any(constant.Error, err))
			}
		}
		r.destroyed = true
		metric.DecVoiceRooms()
		r.mu.Unlock()
	}
}

// --- internals ---

// withRoom runs fn inside the room's serialization slot. fn runs to
// completion once admitted; there is no mid-operation cancellation.
func (u *roomUsecase) withRoom(roomID string, fn func(r *room) error) error {
	r, ok := u.getRoom(roomID)
	if !ok {
		return voice.ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return voice.ErrRoomNotFound
	}

	return fn(r)
}

func (u *roomUsecase) getRoom(roomID string) (*room, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	r, ok := u.rooms[roomID]
	return r, ok
}

func (u *roomUsecase) getOrCreateRoom(roomID string) *room {
	u.mu.Lock()
	defer u.mu.Unlock()

	if r, ok := u.rooms[roomID]; ok {
		return r
	}

	r := &room{
		id:    roomID,
		peers: make(map[string]*peerSession),
	}
	u.rooms[roomID] = r
	metric.IncVoiceRooms()

	slog.Info("room created", slog.String(constant.RoomID, roomID))

	return r
}

// removeRoom unregisters a room. Caller holds r.mu.
func (u *roomUsecase) removeRoom(r *room) {
	r.destroyed = true
	metric.DecVoiceRooms()

	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.rooms, r.id)
}

// removePeerLocked removes a session, releases its resources, hands the host
// role over if needed and destroys the room when it empties. Caller holds
// r.mu and has verified the peer exists.
func (u *roomUsecase) removePeerLocked(r *room, peerID string) {
	sess := r.peers[peerID]
	sess.closeResources()
	delete(r.peers, peerID)
	metric.DecVoicePeers()

	if len(r.peers) == 0 {
		r.hostID = ""
		if r.router != nil {
			if err := r.router.Close(); err != nil {
				slog.Warn("close router", slog.String(constant.RoomID, r.id), slog.Any(constant.Error, err))
			}
			r.router = nil
		}
		u.removeRoom(r)

		slog.Info("room destroyed", slog.String(constant.RoomID, r.id))
		return
	}

	if r.hostID == peerID {
		for id := range r.peers {
			r.hostID = id
			break
		}
		u.broadcastLocked(r, events.New("host-changed", events.HostChangedEvent{HostID: r.hostID}))
	}
}

func (u *roomUsecase) producerExistsLocked(r *room, producerID string) bool {
	for _, sess := range r.peers {
		if _, ok := sess.producers[producerID]; ok {
			return true
		}
	}
	return false
}

func (u *roomUsecase) participantsLocked(r *room) []voice.Participant {
	participants := make([]voice.Participant, 0, len(r.peers))

	for id, sess := range r.peers {
		participants = append(participants, voice.Participant{
			ID:       id,
			Username: sess.username,
			Muted:    sess.muted,
			IsHost:   id == r.hostID,
		})
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Username != participants[j].Username {
			return participants[i].Username < participants[j].Username
		}
		return participants[i].ID < participants[j].ID
	})

	return participants
}

func (u *roomUsecase) broadcastLocked(r *room, msg events.Message) {
	for peerID := range r.peers {
		u.conns.Write(peerID, msg)
	}
}

func (u *roomUsecase) broadcastParticipantsLocked(r *room) {
	u.broadcastLocked(r, events.New("participants", events.ParticipantListEvent{
		Participants: u.participantsLocked(r),
		Locked:       r.locked,
	}))
}

func (u *roomUsecase) isBanned(roomID, peerID string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	_, ok := u.bans[roomID][peerID]
	return ok
}

func (u *roomUsecase) addBan(roomID, peerID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.bans[roomID]; !ok {
		u.bans[roomID] = make(map[string]struct{})
	}
	u.bans[roomID][peerID] = struct{}{}
}
