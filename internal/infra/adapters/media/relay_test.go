package media

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

func TestRelayOutStartsPausedWithMatchingCodec(t *testing.T) {
	audio := newRelay("p1", "audio")

	out, err := audio.addOut("c1")
	if err != nil {
		t.Fatalf("add out: %v", err)
	}
	if !out.paused.Load() {
		t.Error("new out track must start paused")
	}
	if got := out.track.Codec().MimeType; got != webrtc.MimeTypeOpus {
		t.Errorf("audio relay codec: got %s, want %s", got, webrtc.MimeTypeOpus)
	}

	video := newRelay("p2", "video")
	out, err = video.addOut("c2")
	if err != nil {
		t.Fatalf("add video out: %v", err)
	}
	if got := out.track.Codec().MimeType; got != webrtc.MimeTypeVP8 {
		t.Errorf("video relay codec: got %s, want %s", got, webrtc.MimeTypeVP8)
	}
}

func TestRelayRemoveOut(t *testing.T) {
	r := newRelay("p1", "audio")

	if _, err := r.addOut("c1"); err != nil {
		t.Fatalf("add out: %v", err)
	}
	r.removeOut("c1")

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.outs) != 0 {
		t.Errorf("expected no out tracks after remove, got %d", len(r.outs))
	}
}

func TestRelayForwardTolerantOfPausedAndUnbound(t *testing.T) {
	r := newRelay("p1", "audio")

	if _, err := r.addOut("c1"); err != nil {
		t.Fatalf("add out: %v", err)
	}

	pkt := &rtp.Packet{Header: rtp.Header{SequenceNumber: 1}}

	// Paused producer: forward is a no-op.
	r.paused.Store(true)
	r.forward(pkt)

	// Resumed producer with a paused, unbound subscriber: still no panic,
	// no write.
	r.paused.Store(false)
	r.forward(pkt)

	// Stopped relay: loop exit path only, forward itself stays callable.
	r.stop()
	r.forward(pkt)
}
