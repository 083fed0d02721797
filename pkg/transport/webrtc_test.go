package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type openedPeer struct {
	ch         *PeerChannel
	subscriber string
}

func offerServer(t *testing.T) (*OfferHandler, <-chan openedPeer, string) {
	t.Helper()

	opened := make(chan openedPeer, 1)
	h, err := NewOfferHandler(WebRTCConfig{}, func(ch *PeerChannel, sub string) {
		opened <- openedPeer{ch: ch, subscriber: sub}
	})
	if err != nil {
		t.Fatalf("NewOfferHandler() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return h, opened, srv.URL + "/offer"
}

func TestNewOfferHandler_RequiresHandler(t *testing.T) {
	if _, err := NewOfferHandler(WebRTCConfig{}, nil); !errors.Is(err, ErrNoHandler) {
		t.Errorf("NewOfferHandler(nil) error = %v, want %v", err, ErrNoHandler)
	}
}

func TestOfferHandler_RejectsGet(t *testing.T) {
	_, _, endpoint := offerServer(t)

	resp, err := http.Get(endpoint)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestOfferHandler_RejectsGarbage(t *testing.T) {
	_, _, endpoint := offerServer(t)

	resp, err := http.Post(endpoint, ContentTypeSDP, strings.NewReader("not sdp"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestWebRTC_DialAndExchange(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping WebRTC exchange in short mode")
	}

	h, opened, endpoint := offerServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tr, err := DialWebRTC(endpoint, WebRTCConfig{})(ctx, "sub-7")
	if err != nil {
		t.Fatalf("DialWebRTC failed: %v", err)
	}
	client := tr.(*PeerChannel)
	defer client.Close()

	if client.Label() != DataChannelLabel {
		t.Errorf("Label() = %q, want %q", client.Label(), DataChannelLabel)
	}

	var server openedPeer
	select {
	case server = <-opened:
	case <-ctx.Done():
		t.Fatal("timeout waiting for server data channel")
	}
	if server.subscriber != "sub-7" {
		t.Errorf("subscriber = %q, want sub-7", server.subscriber)
	}
	if h.Peers() != 1 {
		t.Errorf("Peers() = %d, want 1", h.Peers())
	}

	fromClient := make(chan []byte, 1)
	server.ch.OnMessage(func(data []byte) { fromClient <- data })
	fromServer := make(chan []byte, 1)
	client.OnMessage(func(data []byte) { fromServer <- data })

	if err := client.Publish([]byte("ping")); err != nil {
		t.Fatalf("client Publish failed: %v", err)
	}
	select {
	case got := <-fromClient:
		if string(got) != "ping" {
			t.Errorf("server got %q, want ping", got)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for client message")
	}

	if err := server.ch.Publish([]byte("pong")); err != nil {
		t.Fatalf("server Publish failed: %v", err)
	}
	select {
	case got := <-fromServer:
		if string(got) != "pong" {
			t.Errorf("client got %q, want pong", got)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for server message")
	}
}

func TestWebRTC_OfferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := DialWebRTC(srv.URL, WebRTCConfig{})(ctx, "sub")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("DialWebRTC() error = %v, want status 403", err)
	}
}

func TestOfferHandler_Closed(t *testing.T) {
	h, _, endpoint := offerServer(t)
	h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := DialWebRTC(endpoint, WebRTCConfig{})(ctx, "sub"); err == nil {
		t.Error("DialWebRTC() against closed handler should fail")
	}
	if h.Peers() != 0 {
		t.Errorf("Peers() = %d, want 0", h.Peers())
	}
}
