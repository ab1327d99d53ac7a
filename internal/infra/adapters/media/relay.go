package media

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// relay fans one producer's RTP stream out to per-consumer local tracks.
// The source track arrives asynchronously (when the peer's offer lands), so
// a relay may exist before it has anything to forward.
type relay struct {
	id   string
	kind string

	// paused mirrors the producer's pause state; outs carry their own flag.
	paused  atomic.Bool
	stopped atomic.Bool

	mu   sync.RWMutex
	outs map[string]*outTrack
}

type outTrack struct {
	track  *webrtc.TrackLocalStaticRTP
	paused atomic.Bool
}

func newRelay(id, kind string) *relay {
	return &relay{
		id:   id,
		kind: kind,
		outs: make(map[string]*outTrack),
	}
}

// attach binds the inbound track and starts forwarding. Called from the
// transport's OnTrack callback.
func (r *relay) attach(src *webrtc.TrackRemote) {
	go r.loop(src)
}

func (r *relay) loop(src *webrtc.TrackRemote) {
	for {
		if r.stopped.Load() {
			return
		}

		pkt, _, err := src.ReadRTP()
		if err != nil {
			return
		}

		r.forward(pkt)
	}
}

func (r *relay) forward(pkt *rtp.Packet) {
	if r.paused.Load() {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, out := range r.outs {
		if out.paused.Load() {
			continue
		}
		// Drop on error; a stalled subscriber must not break the fan-out.
		_ = out.track.WriteRTP(pkt)
	}
}

func (r *relay) addOut(consumerID string) (*outTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	if r.kind == "video" {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	}

	track, err := webrtc.NewTrackLocalStaticRTP(capability, r.kind, consumerID)
	if err != nil {
		return nil, fmt.Errorf("create out track: %w", err)
	}

	out := &outTrack{track: track}
	out.paused.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs[consumerID] = out

	return out, nil
}

func (r *relay) removeOut(consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outs, consumerID)
}

func (r *relay) stop() {
	r.stopped.Store(true)
}
