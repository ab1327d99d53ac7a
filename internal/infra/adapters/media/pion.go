package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/okaypadak/everup-backend/internal/application/config"
	"github.com/okaypadak/everup-backend/internal/domain/voice"
)

var errEngineClosed = errors.New("media engine is closed")

// routerCapabilities is the codec surface advertised to joining peers.
type routerCapabilities struct {
	Codecs []codecCapability `json:"codecs"`
}

type codecCapability struct {
	MimeType  string `json:"mimeType"`
	Kind      string `json:"kind"`
	ClockRate uint32 `json:"clockRate"`
	Channels  uint16 `json:"channels,omitempty"`
}

// PionEngine is the production Engine, built on pion/webrtc. The webrtc API
// object is the engine core: it is created lazily on first use and rebuilt
// after an allocation failure, so a wedged core never outlives one bad call.
type PionEngine struct {
	mu  sync.Mutex
	api *webrtc.API

	iceServers []webrtc.ICEServer
	closed     bool
}

func NewPionEngine(cfg *config.Config) *PionEngine {
	return &PionEngine{
		iceServers: cfg.ICEServers(),
	}
}

func (e *PionEngine) CreateRouter(ctx context.Context, roomID string) (Router, error) {
	api, err := e.ensureAPI()
	if err != nil {
		return nil, err
	}

	caps, err := json.Marshal(routerCapabilities{
		Codecs: []codecCapability{
			{MimeType: webrtc.MimeTypeOpus, Kind: "audio", ClockRate: 48000, Channels: 2},
			{MimeType: webrtc.MimeTypeVP8, Kind: "video", ClockRate: 90000},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal capabilities: %w", err)
	}

	return &pionRouter{
		engine: e,
		api:    api,
		roomID: roomID,
		caps:   caps,
		relays: make(map[string]*relay),
	}, nil
}

func (e *PionEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.api = nil
	return nil
}

func (e *PionEngine) ensureAPI() (*webrtc.API, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errEngineClosed
	}

	if e.api != nil {
		return e.api, nil
	}

	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register vp8: %w", err)
	}

	e.api = webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return e.api, nil
}

// dropAPI discards the engine core so the next allocation rebuilds it.
func (e *PionEngine) dropAPI() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.api = nil
}

type pionRouter struct {
	engine *PionEngine
	api    *webrtc.API
	roomID string
	caps   json.RawMessage

	mu     sync.Mutex
	relays map[string]*relay
	closed bool
}

func (r *pionRouter) Capabilities() json.RawMessage {
	return r.caps
}

func (r *pionRouter) CreateTransport(peerID string, direction voice.Direction) (Transport, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errEngineClosed
	}
	r.mu.Unlock()

	pc, err := r.api.NewPeerConnection(webrtc.Configuration{ICEServers: r.engine.iceServers})
	if err != nil {
		r.engine.dropAPI()
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	t := &pionTransport{
		id:        uuid.NewString(),
		peerID:    peerID,
		direction: direction,
		pc:        pc,
		router:    r,
	}

	if direction == voice.DirectionSend {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			t.attachRemote(track)
		})
	}

	return t, nil
}

func (r *pionRouter) CanConsume(producerID string, rtpCapabilities json.RawMessage) bool {
	rel := r.relay(producerID)
	if rel == nil {
		return false
	}

	var caps routerCapabilities
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return false
	}

	for _, codec := range caps.Codecs {
		if strings.HasPrefix(strings.ToLower(codec.MimeType), rel.kind+"/") {
			return true
		}
	}

	return false
}

func (r *pionRouter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rel := range r.relays {
		rel.stop()
		delete(r.relays, id)
	}
	r.closed = true

	return nil
}

func (r *pionRouter) registerRelay(rel *relay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relays[rel.id] = rel
}

func (r *pionRouter) removeRelay(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relays, id)
}

func (r *pionRouter) relay(id string) *relay {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relays[id]
}

type pionTransport struct {
	id        string
	peerID    string
	direction voice.Direction
	pc        *webrtc.PeerConnection
	router    *pionRouter

	mu sync.Mutex
	// unbound holds producers still waiting for their inbound track, in
	// produce order. OnTrack binds the first one of the matching kind.
	unbound []*relay
}

func (t *pionTransport) ID() string {
	return t.id
}

func (t *pionTransport) Direction() voice.Direction {
	return t.direction
}

func (t *pionTransport) Info() *TransportInfo {
	iceServers, _ := json.Marshal(t.router.engine.iceServers)

	return &TransportInfo{
		ID:         t.id,
		Direction:  t.direction,
		ICEServers: iceServers,
	}
}

// Connect takes the client's SDP offer and returns the engine's answer with
// candidates gathered, finishing the transport handshake in one round trip.
func (t *pionTransport) Connect(dtlsParameters json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(dtlsParameters, &offer); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}

	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(t.pc)

	if err = t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	<-gathered

	out, err := json.Marshal(t.pc.LocalDescription())
	if err != nil {
		return nil, fmt.Errorf("marshal answer: %w", err)
	}

	return out, nil
}

func (t *pionTransport) Produce(kind string, rtpParameters json.RawMessage) (Producer, error) {
	if kind != "audio" && kind != "video" {
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}

	rel := newRelay(uuid.NewString(), kind)

	t.mu.Lock()
	t.unbound = append(t.unbound, rel)
	t.mu.Unlock()

	t.router.registerRelay(rel)

	return &pionProducer{relay: rel, router: t.router}, nil
}

func (t *pionTransport) Consume(producerID string, rtpCapabilities json.RawMessage) (Consumer, error) {
	rel := t.router.relay(producerID)
	if rel == nil {
		return nil, voice.ErrProducerNotFound
	}

	consumerID := uuid.NewString()

	out, err := rel.addOut(consumerID)
	if err != nil {
		return nil, err
	}

	sender, err := t.pc.AddTrack(out.track)
	if err != nil {
		rel.removeOut(consumerID)
		return nil, fmt.Errorf("add track: %w", err)
	}

	rtpParameters, _ := json.Marshal(codecCapability{
		MimeType:  out.track.Codec().MimeType,
		Kind:      rel.kind,
		ClockRate: out.track.Codec().ClockRate,
		Channels:  out.track.Codec().Channels,
	})

	return &pionConsumer{
		id:            consumerID,
		relay:         rel,
		out:           out,
		transport:     t,
		sender:        sender,
		rtpParameters: rtpParameters,
	}, nil
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

// attachRemote hands an inbound track to the oldest producer of that kind
// still waiting for one.
func (t *pionTransport) attachRemote(track *webrtc.TrackRemote) {
	kind := track.Kind().String()

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, rel := range t.unbound {
		if rel.kind != kind {
			continue
		}

		t.unbound = append(t.unbound[:i], t.unbound[i+1:]...)
		rel.attach(track)
		return
	}
}

type pionProducer struct {
	relay  *relay
	router *pionRouter
}

func (p *pionProducer) ID() string {
	return p.relay.id
}

func (p *pionProducer) Kind() string {
	return p.relay.kind
}

func (p *pionProducer) Pause() {
	p.relay.paused.Store(true)
}

func (p *pionProducer) Resume() {
	p.relay.paused.Store(false)
}

func (p *pionProducer) Close() error {
	p.relay.stop()
	p.router.removeRelay(p.relay.id)
	return nil
}

type pionConsumer struct {
	id            string
	relay         *relay
	out           *outTrack
	transport     *pionTransport
	sender        *webrtc.RTPSender
	rtpParameters json.RawMessage
}

func (c *pionConsumer) ID() string {
	return c.id
}

func (c *pionConsumer) ProducerID() string {
	return c.relay.id
}

func (c *pionConsumer) Kind() string {
	return c.relay.kind
}

func (c *pionConsumer) Info() *ConsumerInfo {
	return &ConsumerInfo{
		ID:            c.id,
		ProducerID:    c.relay.id,
		Kind:          c.relay.kind,
		RtpParameters: c.rtpParameters,
		Paused:        c.out.paused.Load(),
	}
}

func (c *pionConsumer) Resume() {
	c.out.paused.Store(false)
}

func (c *pionConsumer) Close() error {
	c.relay.removeOut(c.id)
	return c.transport.pc.RemoveTrack(c.sender)
}
