// This file wires Signaling and a Responder over a data channel negotiated
// directly between two local pion PeerConnections, without the HTTP offer
// route.

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/backkem/renderhints/pkg/hints"
	"github.com/backkem/renderhints/pkg/responder"
	"github.com/backkem/renderhints/pkg/transport"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// TestE2E_WebRTCDataChannel negotiates a data channel between a subscriber
// PeerConnection and a server PeerConnection and exchanges render hints.
func TestE2E_WebRTCDataChannel(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping WebRTC E2E test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loggerFactory := logging.NewDefaultLoggerFactory()

	// No ICE servers for local testing
	config := webrtc.Configuration{}

	serverPC, err := webrtc.NewPeerConnection(config)
	if err != nil {
		t.Fatalf("Failed to create server PeerConnection: %v", err)
	}
	defer serverPC.Close()

	subscriberPC, err := webrtc.NewPeerConnection(config)
	if err != nil {
		t.Fatalf("Failed to create subscriber PeerConnection: %v", err)
	}
	defer subscriberPC.Close()

	// Server: answer on every render_hints channel once it opens.
	responders := make(chan *responder.Responder, 1)
	serverPC.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.Logf("Server received data channel: %s", dc.Label())
		ch := transport.NewDataChannel(dc)
		dc.OnOpen(func() {
			r, err := responder.New(responder.Config{Channel: ch, LoggerFactory: loggerFactory})
			if err != nil {
				t.Errorf("responder.New failed: %v", err)
				return
			}
			if err := r.Start(); err != nil {
				t.Errorf("responder Start failed: %v", err)
			}
			responders <- r
		})
	})

	// Subscriber: the channel must exist before the offer is created.
	dc, err := subscriberPC.CreateDataChannel(transport.DataChannelLabel, nil)
	if err != nil {
		t.Fatalf("Failed to create data channel: %v", err)
	}

	results := make(chan hints.Result, 8)
	sig, err := hints.New(hints.Config{
		Acquire:       transport.AwaitDataChannel(dc),
		LoggerFactory: loggerFactory,
		OnResult:      func(r hints.Result) { results <- r },
	})
	if err != nil {
		t.Fatalf("hints.New failed: %v", err)
	}
	defer sig.Close()

	// Hints recorded before the transport is bound are flushed on ready.
	sig.SendTrackHint("TR_early", hints.Patch{Enabled: hints.Bool(true)})
	if err := sig.Setup("webrtc-subscriber"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	// Subscriber: create offer
	offer, err := subscriberPC.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(subscriberPC)
	if err := subscriberPC.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription failed: %v", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		t.Fatal("Timeout waiting for subscriber ICE gathering")
	}

	// Server: answer
	if err := serverPC.SetRemoteDescription(*subscriberPC.LocalDescription()); err != nil {
		t.Fatalf("Server SetRemoteDescription failed: %v", err)
	}
	answer, err := serverPC.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("Server CreateAnswer failed: %v", err)
	}
	gatherComplete = webrtc.GatheringCompletePromise(serverPC)
	if err := serverPC.SetLocalDescription(answer); err != nil {
		t.Fatalf("Server SetLocalDescription failed: %v", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		t.Fatal("Timeout waiting for server ICE gathering")
	}

	if err := subscriberPC.SetRemoteDescription(*serverPC.LocalDescription()); err != nil {
		t.Fatalf("Subscriber SetRemoteDescription failed: %v", err)
	}

	select {
	case <-sig.Ready():
		t.Log("Subscriber data channel bound")
	case <-ctx.Done():
		t.Fatal("Timeout waiting for data channel")
	}

	var r *responder.Responder
	select {
	case r = <-responders:
	case <-ctx.Done():
		t.Fatal("Timeout waiting for server data channel")
	}
	defer r.Close()

	select {
	case res := <-results:
		if res.TrackSID != "TR_early" || res.Result != hints.ResultOK {
			t.Errorf("result = %+v, want TR_early OK", res)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for early hint result")
	}

	sig.SendTrackHint("TR_cam", hints.Patch{RenderDimension: hints.Dim(640, -1)})
	select {
	case res := <-results:
		if res.TrackSID != "TR_cam" || res.Result != hints.ResultInvalidRenderHint {
			t.Errorf("result = %+v, want TR_cam INVALID_RENDER_HINT", res)
		}
	case <-ctx.Done():
		t.Fatal("Timeout waiting for TR_cam result")
	}

	if got := r.Requests(); got != 2 {
		t.Errorf("Requests() = %d, want 2", got)
	}
	received := r.Received()
	if len(received) != 2 || received[0].Hints[0].TrackSID != "TR_early" {
		t.Errorf("Received() = %+v", received)
	}
}

// TestE2E_WebRTCAcquireCancelled checks that a data channel that never opens
// leaves the subscriber unbound when acquisition is abandoned.
func TestE2E_WebRTCAcquireCancelled(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("Failed to create PeerConnection: %v", err)
	}
	defer pc.Close()

	dc, err := pc.CreateDataChannel(transport.DataChannelLabel, nil)
	if err != nil {
		t.Fatalf("Failed to create data channel: %v", err)
	}

	sig, err := hints.New(hints.Config{Acquire: transport.AwaitDataChannel(dc)})
	if err != nil {
		t.Fatalf("hints.New failed: %v", err)
	}
	if err := sig.Setup("never-offered"); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	sig.SendTrackHint("TR_a", hints.Patch{Enabled: hints.Bool(true)})
	time.Sleep(100 * time.Millisecond)
	sig.Close()

	if sig.IsReady() {
		t.Error("IsReady() = true without an open channel")
	}
	if dirty := sig.DirtyTracks(); len(dirty) != 1 || dirty[0] != "TR_a" {
		t.Errorf("DirtyTracks() = %v, want [TR_a]", dirty)
	}
}
