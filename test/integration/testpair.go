// Package integration provides test infrastructure for render hint E2E tests.
package integration

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/backkem/renderhints/examples/common"
	"github.com/backkem/renderhints/examples/server"
	"github.com/backkem/renderhints/pkg/hints"
	"github.com/backkem/renderhints/pkg/transport"
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Endpoint selects how a subscriber reaches the server.
type Endpoint int

const (
	// EndpointWebSocket dials the /hints WebSocket route.
	EndpointWebSocket Endpoint = iota

	// EndpointTCP dials the framed TCP listener.
	EndpointTCP

	// EndpointWebRTC posts an SDP offer to the /offer route.
	EndpointWebRTC
)

// String returns a human-readable name for the endpoint.
func (e Endpoint) String() string {
	switch e {
	case EndpointWebSocket:
		return "WebSocket"
	case EndpointTCP:
		return "TCP"
	case EndpointWebRTC:
		return "WebRTC"
	default:
		return "Unknown"
	}
}

// TestPair holds a running server and one subscriber bound to it.
//
// Example usage:
//
//	pair := NewTestPair(t, EndpointWebSocket)
//	defer pair.Close()
//	pair.Signaling.SendTrackHint("TR_a", hints.Patch{Enabled: hints.Bool(true)})
//	r := pair.NextResult(t)
type TestPair struct {
	// Server is the server under test.
	Server *server.Server

	// Registry holds the server metrics.
	Registry *prometheus.Registry

	// Signaling is the subscriber side, already bound.
	Signaling *hints.Signaling

	// Subscriber is the subscriber context id.
	Subscriber string

	// Results receives every result reported by Signaling.
	Results chan hints.Result

	t             *testing.T
	loggerFactory logging.LoggerFactory
	mu            sync.Mutex
	transport     transport.Transport
}

// TestPairConfig configures the test pair creation.
type TestPairConfig struct {
	// Server overrides the server options. ListenAddr and TCPAddr default
	// to ephemeral loopback ports.
	Server common.ServerOptions

	// Signaling overrides the subscriber configuration. Acquire and
	// OnResult are always set by the pair.
	Signaling hints.Config

	// Subscriber is the subscriber context id (default: "test-subscriber").
	Subscriber string

	// SetupTimeout bounds binding the transport. Defaults to 15 seconds.
	SetupTimeout time.Duration

	// LoggerFactory for logging. If nil, uses DefaultLoggerFactory.
	LoggerFactory logging.LoggerFactory
}

// DefaultTestPairConfig returns default configuration for test pairs.
func DefaultTestPairConfig() TestPairConfig {
	return TestPairConfig{
		Server: common.ServerOptions{
			ListenAddr: "127.0.0.1:0",
			TCPAddr:    "127.0.0.1:0",
		},
		Subscriber:   "test-subscriber",
		SetupTimeout: 15 * time.Second,
	}
}

// NewTestPair starts a server and binds a subscriber over endpoint.
func NewTestPair(t *testing.T, endpoint Endpoint) *TestPair {
	return NewTestPairWithConfig(t, endpoint, DefaultTestPairConfig())
}

// NewTestPairWithConfig starts a server and binds a subscriber over
// endpoint using config.
func NewTestPairWithConfig(t *testing.T, endpoint Endpoint, config TestPairConfig) *TestPair {
	t.Helper()

	if config.SetupTimeout == 0 {
		config.SetupTimeout = 15 * time.Second
	}
	if config.Subscriber == "" {
		config.Subscriber = "test-subscriber"
	}
	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = "127.0.0.1:0"
	}
	if config.Server.TCPAddr == "" {
		config.Server.TCPAddr = "127.0.0.1:0"
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	reg := prometheus.NewRegistry()
	srv, err := server.New(server.Config{
		Options:       config.Server,
		Registry:      reg,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(); err != nil {
		srv.Stop()
		t.Fatalf("Failed to start server: %v", err)
	}

	p := &TestPair{
		Server:        srv,
		Registry:      reg,
		Subscriber:    config.Subscriber,
		Results:       make(chan hints.Result, 64),
		t:             t,
		loggerFactory: loggerFactory,
	}

	sigConfig := config.Signaling
	acquire := p.Acquirer(endpoint)
	sigConfig.Acquire = func(ctx context.Context, sub string) (transport.Transport, error) {
		tr, err := acquire(ctx, sub)
		p.mu.Lock()
		p.transport = tr
		p.mu.Unlock()
		return tr, err
	}
	sigConfig.OnResult = func(r hints.Result) { p.Results <- r }
	if sigConfig.LoggerFactory == nil {
		sigConfig.LoggerFactory = loggerFactory
	}

	sig, err := hints.New(sigConfig)
	if err != nil {
		srv.Stop()
		t.Fatalf("Failed to create signaling: %v", err)
	}
	p.Signaling = sig

	if err := sig.Setup(config.Subscriber); err != nil {
		p.Close()
		t.Fatalf("Setup failed: %v", err)
	}

	select {
	case <-sig.Ready():
	case <-time.After(config.SetupTimeout):
		p.Close()
		t.Fatalf("%s transport not ready after %v", endpoint, config.SetupTimeout)
	}

	return p
}

// Acquirer returns an Acquirer dialing the server over endpoint.
func (p *TestPair) Acquirer(endpoint Endpoint) transport.Acquirer {
	httpAddr := p.Server.Addr().String()

	switch endpoint {
	case EndpointTCP:
		return transport.DialTCP(p.Server.TCPAddr().String(), p.loggerFactory)
	case EndpointWebRTC:
		return transport.DialWebRTC("http://"+httpAddr+server.PathOffer, transport.WebRTCConfig{
			LoggerFactory: p.loggerFactory,
		})
	default:
		return transport.DialWebSocket("ws://"+httpAddr+server.PathHints, nil, transport.WebSocketConfig{
			LoggerFactory: p.loggerFactory,
		})
	}
}

// NextResult waits for the next result reported to the subscriber.
func (p *TestPair) NextResult(t *testing.T) hints.Result {
	t.Helper()
	select {
	case r := <-p.Results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for result")
		return hints.Result{}
	}
}

// ExpectNoResult fails if a result arrives within wait.
func (p *TestPair) ExpectNoResult(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case r := <-p.Results:
		t.Fatalf("unexpected result %+v", r)
	case <-time.After(wait):
	}
}

// WaitIdle waits until no request is outstanding and nothing is dirty.
func (p *TestPair) WaitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.Signaling.State() == hints.StateIdle && len(p.Signaling.DirtyTracks()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("signaling not idle: state=%s dirty=%v", p.Signaling.State(), p.Signaling.DirtyTracks())
}

// Close cleans up resources used by the pair.
// Should be called with defer after creating the pair.
func (p *TestPair) Close() {
	if p.Signaling != nil {
		p.Signaling.Close()
	}
	p.mu.Lock()
	tr := p.transport
	p.mu.Unlock()
	if c, ok := tr.(io.Closer); ok {
		c.Close()
	}
	if p.Server != nil {
		p.Server.Stop()
	}
}

// Context returns a context for operations on this pair.
func (p *TestPair) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// LoggerFactory returns the logger factory used by this pair.
func (p *TestPair) LoggerFactory() logging.LoggerFactory {
	return p.loggerFactory
}

// HTTPURL returns the base http:// URL of the server.
func (p *TestPair) HTTPURL() string {
	return "http://" + p.Server.Addr().String()
}
