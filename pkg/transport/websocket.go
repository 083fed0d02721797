package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// SubscriberQueryParam is the query parameter carrying the subscriber
// context id when dialing a WebSocket endpoint.
const SubscriberQueryParam = "subscriber"

// DefaultWriteTimeout bounds a single WebSocket write.
const DefaultWriteTimeout = 5 * time.Second

// WebSocketConfig configures a WebSocket channel.
type WebSocketConfig struct {
	// WriteTimeout bounds each Publish. Default: DefaultWriteTimeout.
	WriteTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// WebSocket adapts a gorilla/websocket connection to Channel.
// Each render hint message travels as one text frame.
type WebSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	log          logging.LeveledLogger

	writeMu sync.Mutex

	inbox inbox

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWebSocket wraps conn and starts its read loop.
func NewWebSocket(conn *websocket.Conn, config WebSocketConfig) *WebSocket {
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	w := &WebSocket{
		conn:         conn,
		writeTimeout: config.WriteTimeout,
		done:         make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		w.log = config.LoggerFactory.NewLogger("transport-ws")
	}

	go w.readLoop()

	return w
}

func (w *WebSocket) readLoop() {
	defer close(w.done)

	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.RLock()
			closed := w.closed
			w.mu.RUnlock()
			if !closed && w.log != nil {
				w.log.Debugf("websocket read loop ended: %v", err)
			}
			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		w.inbox.push(data)
	}
}

// Publish implements Channel.
func (w *WebSocket) Publish(msg []byte) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrClosed
	}
	w.mu.RUnlock()

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// OnMessage implements Channel.
func (w *WebSocket) OnMessage(handler MessageHandler) {
	w.inbox.set(handler)
}

// Done is closed when the read loop exits.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

// Close sends a close frame and closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.writeMu.Lock()
	deadline := time.Now().Add(w.writeTimeout)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	w.writeMu.Unlock()

	err := w.conn.Close()
	<-w.done
	return err
}

// Kind implements Transport. A WebSocket carries render hints directly.
func (w *WebSocket) Kind() Kind { return KindData }

// Channel implements Transport.
func (w *WebSocket) Channel() (Channel, error) { return w, nil }

// DialWebSocket returns an Acquirer that dials endpoint, adding the subscriber
// context id as a query parameter.
func DialWebSocket(endpoint string, dialer *websocket.Dialer, config WebSocketConfig) Acquirer {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return func(ctx context.Context, subscriberContextID string) (Transport, error) {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("transport: parse websocket url: %w", err)
		}
		q := u.Query()
		q.Set(SubscriberQueryParam, subscriberContextID)
		u.RawQuery = q.Encode()

		conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("transport: dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
			}
			return nil, fmt.Errorf("transport: dial %s: %w", u.Redacted(), err)
		}

		return NewWebSocket(conn, config), nil
	}
}

// Upgrader upgrades inbound HTTP requests to WebSocket channels.
type Upgrader struct {
	upgrader websocket.Upgrader
	config   WebSocketConfig
}

// NewUpgrader creates an Upgrader. CheckOrigin accepts every origin when nil.
func NewUpgrader(checkOrigin func(r *http.Request) bool, config WebSocketConfig) *Upgrader {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		config:   config,
	}
}

// Upgrade upgrades the request and returns the channel together with the
// subscriber context id found in the query string.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocket, string, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, "", err
	}
	return NewWebSocket(conn, u.config), r.URL.Query().Get(SubscriberQueryParam), nil
}

// Verify WebSocket implements Channel and Transport.
var (
	_ Channel   = (*WebSocket)(nil)
	_ Transport = (*WebSocket)(nil)
)
