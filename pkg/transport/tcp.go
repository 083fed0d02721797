package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Stream framing parameters.
const (
	// LengthPrefixSize is the size of the little-endian frame length prefix.
	LengthPrefixSize = 4

	// MaxFrameSize bounds a single stream frame.
	MaxFrameSize = 64 * 1024

	// HelloTimeout bounds how long an accepted peer may take to announce
	// its subscriber context id.
	HelloTimeout = 5 * time.Second
)

// Stream framing errors.
var (
	ErrInvalidLengthPrefix = errors.New("transport: invalid length prefix")
	ErrFrameTooLong        = errors.New("transport: frame too long")
)

// writeFrame writes data with a 4-byte little-endian length prefix.
func writeFrame(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidLengthPrefix
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLong
	}

	buf := make([]byte, LengthPrefixSize+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	_, err := w.Write(buf)
	return err
}

// readFrame reads one length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, ErrInvalidLengthPrefix
	}
	if n > MaxFrameSize {
		return nil, ErrFrameTooLong
	}

	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// Stream is a Channel over a reliable byte stream such as TCP.
// Messages are framed with a 4-byte little-endian length prefix.
type Stream struct {
	conn net.Conn
	log  logging.LeveledLogger

	writeMu sync.Mutex

	inbox inbox

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewStream wraps conn and starts its read loop.
func NewStream(conn net.Conn, loggerFactory logging.LoggerFactory) *Stream {
	s := &Stream{
		conn: conn,
		done: make(chan struct{}),
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("transport-tcp")
	}

	go s.readLoop()

	return s
}

func (s *Stream) readLoop() {
	defer close(s.done)

	for {
		data, err := readFrame(s.conn)
		if err != nil {
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if !closed && err != io.EOF && s.log != nil {
				s.log.Debugf("stream read loop ended: %v", err)
			}
			return
		}

		s.inbox.push(data)
	}
}

// Publish implements Channel.
func (s *Stream) Publish(msg []byte) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := writeFrame(s.conn, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// OnMessage implements Channel.
func (s *Stream) OnMessage(handler MessageHandler) {
	s.inbox.set(handler)
}

// RemoteAddr returns the address of the peer.
func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Done is closed when the read loop exits.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close closes the connection and waits for the read loop.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}

// Kind implements Transport.
func (s *Stream) Kind() Kind { return KindData }

// Channel implements Transport.
func (s *Stream) Channel() (Channel, error) { return s, nil }

// StreamHandler is called for each accepted stream together with the
// subscriber context id announced by the peer.
type StreamHandler func(s *Stream, subscriberContextID string)

// TCPConfig configures a TCPListener.
type TCPConfig struct {
	// Listener is an optional pre-existing Listener to use.
	// If nil, a new listener will be created using ListenAddr.
	Listener net.Listener

	// ListenAddr is the address to listen on (e.g., ":7881").
	// Ignored if Listener is provided.
	ListenAddr string

	// Handler is called for each accepted stream. Required.
	Handler StreamHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// TCPListener accepts framed streams. The first frame a peer sends is its
// subscriber context id; every later frame is a message.
type TCPListener struct {
	listener      net.Listener
	handler       StreamHandler
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
	closeCh       chan struct{}
	wg            sync.WaitGroup

	streamsMu sync.Mutex
	streams   map[*Stream]struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewTCPListener creates a TCP listener with the given configuration.
func NewTCPListener(config TCPConfig) (*TCPListener, error) {
	if config.Handler == nil {
		return nil, ErrNoHandler
	}

	t := &TCPListener{
		listener:      config.Listener,
		handler:       config.Handler,
		loggerFactory: config.LoggerFactory,
		closeCh:       make(chan struct{}),
		streams:       make(map[*Stream]struct{}),
	}

	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}

	if t.listener == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0" // Use ephemeral port
		}

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		t.listener = listener
	}

	return t, nil
}

// Start begins accepting connections.
func (t *TCPListener) Start() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Infof("starting TCP listener on %s", t.listener.Addr())
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

// Stop closes the listener and every accepted stream.
func (t *TCPListener) Stop() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	t.mu.Unlock()

	if t.log != nil {
		t.log.Info("stopping TCP listener")
	}

	close(t.closeCh)
	t.listener.Close()

	t.streamsMu.Lock()
	streams := make([]*Stream, 0, len(t.streams))
	for s := range t.streams {
		streams = append(streams, s)
	}
	t.streamsMu.Unlock()

	for _, s := range streams {
		s.Close()
	}

	t.wg.Wait()
	return nil
}

// Addr returns the local address the listener is bound to.
func (t *TCPListener) Addr() net.Addr {
	return t.listener.Addr()
}

func (t *TCPListener) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closeCh:
				return
			default:
				if t.log != nil {
					t.log.Warnf("accept failed: %v", err)
				}
				continue
			}
		}

		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

func (t *TCPListener) handleConn(conn net.Conn) {
	defer t.wg.Done()

	_ = conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	hello, err := readFrame(conn)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		if t.log != nil {
			t.log.Debugf("dropping %s: no subscriber id: %v", conn.RemoteAddr(), err)
		}
		conn.Close()
		return
	}

	s := NewStream(conn, t.loggerFactory)

	t.streamsMu.Lock()
	t.streams[s] = struct{}{}
	t.streamsMu.Unlock()

	t.handler(s, string(hello))

	select {
	case <-s.Done():
	case <-t.closeCh:
		s.Close()
	}

	t.streamsMu.Lock()
	delete(t.streams, s)
	t.streamsMu.Unlock()
}

// DialTCP returns an Acquirer that connects to addr and announces the
// subscriber context id as the first frame.
func DialTCP(addr string, loggerFactory logging.LoggerFactory) Acquirer {
	return func(ctx context.Context, subscriberContextID string) (Transport, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
		}

		if err := writeFrame(conn, []byte(subscriberContextID)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: announce subscriber: %w", err)
		}

		return NewStream(conn, loggerFactory), nil
	}
}

// Verify Stream implements Channel and Transport.
var (
	_ Channel   = (*Stream)(nil)
	_ Transport = (*Stream)(nil)
)
