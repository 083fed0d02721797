package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// DataChannelLabel is the label of the data channel carrying render hints.
const DataChannelLabel = "render_hints"

// ContentTypeSDP is the media type of offer and answer bodies.
const ContentTypeSDP = "application/sdp"

// maxSDPSize bounds an offer or answer body.
const maxSDPSize = 64 * 1024

// WebRTCConfig configures offer/answer exchange.
type WebRTCConfig struct {
	// Configuration is passed to every new PeerConnection.
	Configuration webrtc.Configuration

	// API creates PeerConnections. If nil, the pion default API is used.
	API *webrtc.API

	// HTTPClient posts offers. If nil, http.DefaultClient is used.
	HTTPClient *http.Client

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *WebRTCConfig) newPeerConnection() (*webrtc.PeerConnection, error) {
	if c.API != nil {
		return c.API.NewPeerConnection(c.Configuration)
	}
	return webrtc.NewPeerConnection(c.Configuration)
}

// PeerChannel is a DataChannel that owns its PeerConnection.
type PeerChannel struct {
	*DataChannel
	pc *webrtc.PeerConnection
}

// PeerConnection returns the underlying peer connection.
func (p *PeerChannel) PeerConnection() *webrtc.PeerConnection {
	return p.pc
}

// Close closes the peer connection and with it the data channel.
func (p *PeerChannel) Close() error {
	return p.pc.Close()
}

// DialWebRTC returns an Acquirer that creates a PeerConnection with a
// render_hints data channel, posts the offer to endpoint and applies the
// answer from the response body. It resolves once the channel is open.
func DialWebRTC(endpoint string, config WebRTCConfig) Acquirer {
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("transport-webrtc")
	}

	return func(ctx context.Context, subscriberContextID string) (Transport, error) {
		pc, err := config.newPeerConnection()
		if err != nil {
			return nil, fmt.Errorf("transport: new peer connection: %w", err)
		}

		ch, err := offer(ctx, pc, client, endpoint, subscriberContextID, log)
		if err != nil {
			pc.Close()
			return nil, err
		}
		return ch, nil
	}
}

func offer(ctx context.Context, pc *webrtc.PeerConnection, client *http.Client, endpoint, subscriberContextID string, log logging.LeveledLogger) (*PeerChannel, error) {
	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: create data channel: %w", err)
	}
	await := AwaitDataChannel(dc)

	sdp, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("transport: create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(sdp); err != nil {
		return nil, fmt.Errorf("transport: set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport: parse offer url: %w", err)
	}
	q := u.Query()
	q.Set(SubscriberQueryParam, subscriberContextID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewBufferString(pc.LocalDescription().SDP))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ContentTypeSDP)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: post offer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSDPSize))
	if err != nil {
		return nil, fmt.Errorf("transport: read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: offer rejected with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  string(body),
	}); err != nil {
		return nil, fmt.Errorf("transport: set remote description: %w", err)
	}

	if log != nil {
		log.Debugf("answer applied, waiting for data channel %q", dc.Label())
	}

	tr, err := await(ctx, subscriberContextID)
	if err != nil {
		return nil, err
	}

	return &PeerChannel{DataChannel: tr.(*DataChannel), pc: pc}, nil
}

// OfferHandlerFunc is called once the render_hints data channel offered by a
// peer is open.
type OfferHandlerFunc func(ch *PeerChannel, subscriberContextID string)

// OfferHandler answers WebRTC offers posted over HTTP.
type OfferHandler struct {
	config WebRTCConfig
	onOpen OfferHandlerFunc
	log    logging.LeveledLogger
	mu     sync.Mutex
	peers  map[*webrtc.PeerConnection]struct{}
	closed bool
}

// NewOfferHandler creates an OfferHandler calling onOpen for each opened
// render_hints data channel.
func NewOfferHandler(config WebRTCConfig, onOpen OfferHandlerFunc) (*OfferHandler, error) {
	if onOpen == nil {
		return nil, ErrNoHandler
	}
	h := &OfferHandler{
		config: config,
		onOpen: onOpen,
		peers:  make(map[*webrtc.PeerConnection]struct{}),
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("transport-webrtc")
	}
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *OfferHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSDPSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := h.answer(r.Context(), string(body), r.URL.Query().Get(SubscriberQueryParam))
	if err != nil {
		if h.log != nil {
			h.log.Warnf("offer from %s failed: %v", r.RemoteAddr, err)
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", ContentTypeSDP)
	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, answer)
}

func (h *OfferHandler) answer(ctx context.Context, offerSDP, subscriberContextID string) (string, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrClosed
	}
	h.mu.Unlock()

	pc, err := h.config.newPeerConnection()
	if err != nil {
		return "", err
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			if h.log != nil {
				h.log.Debugf("ignoring data channel %q", dc.Label())
			}
			return
		}
		ch := &PeerChannel{DataChannel: NewDataChannel(dc), pc: pc}
		dc.OnOpen(func() {
			h.onOpen(ch, subscriberContextID)
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			h.forget(pc)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return "", err
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	sdp, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", err
	}
	if err := pc.SetLocalDescription(sdp); err != nil {
		pc.Close()
		return "", err
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		pc.Close()
		return "", ctx.Err()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		pc.Close()
		return "", ErrClosed
	}
	h.peers[pc] = struct{}{}
	h.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// forget drops pc from the tracked peers and closes it.
func (h *OfferHandler) forget(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	_, ok := h.peers[pc]
	delete(h.peers, pc)
	h.mu.Unlock()

	if ok {
		go pc.Close()
	}
}

// Peers returns the number of tracked peer connections.
func (h *OfferHandler) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Close closes every peer connection and rejects further offers.
func (h *OfferHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	peers := h.peers
	h.peers = nil
	h.mu.Unlock()

	for pc := range peers {
		pc.Close()
	}
	return nil
}

// Verify OfferHandler implements http.Handler.
var _ http.Handler = (*OfferHandler)(nil)
