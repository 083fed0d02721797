package transport

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// maxPipeMessageSize bounds a single message read from the bridge.
const maxPipeMessageSize = 64 * 1024

// NetworkCondition configures network behavior simulation.
// Use this to test protocol behavior under adverse network conditions.
type NetworkCondition struct {
	// DropRate is the probability of dropping a message (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each message.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each message.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic message delivery in a background goroutine.
	// Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for messages.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides a bidirectional in-memory message channel between two
// endpoints. It wraps pion's test.Bridge and adds network condition
// simulation and publish fault injection.
//
// By default, Pipe automatically delivers messages in a background goroutine.
// Use PipeConfig{AutoProcess: false} and Tick/Process for manual control.
type Pipe struct {
	bridge *test.Bridge
	ends   [2]*PipeEnd

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if config.ProcessInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	p.ends[0] = newPipeEnd(p, p.bridge.GetConn0())
	p.ends[1] = newPipeEnd(p, p.bridge.GetConn1())

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

// startAutoProcess starts the background message delivery goroutine.
func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures network condition simulation.
// The conditions apply to messages in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// End0 returns the channel for endpoint 0.
func (p *Pipe) End0() *PipeEnd { return p.ends[0] }

// End1 returns the channel for endpoint 1.
func (p *Pipe) End1() *PipeEnd { return p.ends[1] }

// Tick delivers one message in each direction (if available).
// Returns the number of messages delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued messages.
// Returns the number of messages delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Close closes both endpoints of the pipe and stops auto-processing.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	// Wait for goroutine outside lock
	p.wg.Wait()

	err0 := p.ends[0].close()
	err1 := p.ends[1].close()
	if err0 != nil {
		return err0
	}
	return err1
}

// PipeEnd is one endpoint of a Pipe. It implements Channel.
type PipeEnd struct {
	pipe *Pipe
	conn net.Conn

	mu         sync.Mutex
	handler    MessageHandler
	publishErr error
	published  int
	closed     bool
}

func newPipeEnd(p *Pipe, conn net.Conn) *PipeEnd {
	e := &PipeEnd{
		pipe: p,
		conn: conn,
	}
	go e.readLoop()
	return e
}

// readLoop delivers bridge packets to the registered handler.
func (e *PipeEnd) readLoop() {
	buf := make([]byte, maxPipeMessageSize)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			return
		}

		e.mu.Lock()
		handler := e.handler
		closed := e.closed
		e.mu.Unlock()

		if closed {
			return
		}
		if handler == nil {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		handler(data)
	}
}

// Publish implements Channel.
func (e *PipeEnd) Publish(msg []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if err := e.publishErr; err != nil {
		e.publishErr = nil
		e.mu.Unlock()
		return err
	}
	e.published++
	e.mu.Unlock()

	e.pipe.mu.RLock()
	cond := e.pipe.condition
	rng := e.pipe.rng
	e.pipe.mu.RUnlock()

	if cond.DropRate > 0 && rng.Float64() < cond.DropRate {
		return nil // Silently drop
	}

	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += time.Duration(rng.Int63n(int64(cond.DelayMax - cond.DelayMin)))
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if _, err := e.conn.Write(msg); err != nil {
		return err
	}
	return nil
}

// OnMessage implements Channel.
func (e *PipeEnd) OnMessage(handler MessageHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// SetPublishError makes the next Publish call fail with err without
// sending anything.
func (e *PipeEnd) SetPublishError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishErr = err
}

// Published returns the number of messages handed to the pipe so far.
func (e *PipeEnd) Published() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published
}

func (e *PipeEnd) close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.conn.Close()
}

// Verify PipeEnd implements Channel.
var _ Channel = (*PipeEnd)(nil)
