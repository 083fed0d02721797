package responder

import (
	"sync"
	"time"

	"github.com/backkem/renderhints/pkg/hints"
	"github.com/backkem/renderhints/pkg/transport"
	"github.com/pion/logging"
)

// Validator decides the result code for a single hint.
type Validator func(h hints.Hint) hints.ResultCode

// DefaultValidator rejects render dimensions with a non-positive width or
// height and accepts everything else.
func DefaultValidator(h hints.Hint) hints.ResultCode {
	if d := h.RenderDimension; d != nil && (d.Width <= 0 || d.Height <= 0) {
		return hints.ResultInvalidRenderHint
	}
	return hints.ResultOK
}

// MaxDimensionValidator extends DefaultValidator by also rejecting render
// dimensions wider or taller than max. A zero max component is unbounded.
func MaxDimensionValidator(max hints.Dimension) Validator {
	return func(h hints.Hint) hints.ResultCode {
		if code := DefaultValidator(h); !code.IsOK() {
			return code
		}
		if d := h.RenderDimension; d != nil {
			if (max.Width > 0 && d.Width > max.Width) || (max.Height > 0 && d.Height > max.Height) {
				return hints.ResultInvalidRenderHint
			}
		}
		return hints.ResultOK
	}
}

// DefaultHistory is the number of requests Received keeps by default.
const DefaultHistory = 32

// Config configures a Responder.
type Config struct {
	// Channel is the channel requests arrive on and replies are sent to.
	// Required.
	Channel transport.Channel

	// Validator computes per-hint results. Default: DefaultValidator.
	Validator Validator

	// Delay postpones every reply.
	Delay time.Duration

	// Metrics records request and result counts. Optional.
	Metrics *Metrics

	// History is the number of most recent requests kept for Received.
	// Zero uses DefaultHistory; a negative value keeps none.
	History int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Responder answers render_hints requests on a channel.
type Responder struct {
	channel   transport.Channel
	validator Validator
	delay     time.Duration
	metrics   *Metrics
	log       logging.LeveledLogger

	wg sync.WaitGroup

	mu       sync.Mutex
	started  bool
	closed   bool
	held     bool
	queued   []hints.Reply
	requests int
	history  int
	received []hints.Request
}

// New creates a Responder. Call Start to begin answering.
func New(config Config) (*Responder, error) {
	if config.Channel == nil {
		return nil, ErrNoChannel
	}

	r := &Responder{
		channel:   config.Channel,
		validator: config.Validator,
		delay:     config.Delay,
		metrics:   config.Metrics,
		history:   config.History,
	}

	if r.history == 0 {
		r.history = DefaultHistory
	}

	if r.validator == nil {
		r.validator = DefaultValidator
	}

	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("responder")
	}

	return r, nil
}

// Start registers the responder on its channel.
func (r *Responder) Start() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	r.channel.OnMessage(r.handleMessage)
	if r.metrics != nil {
		r.metrics.Subscribers.Inc()
	}
	return nil
}

// Close stops answering. Held replies are discarded and pending delayed
// replies are waited for.
func (r *Responder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	r.queued = nil
	r.mu.Unlock()

	if started {
		r.channel.OnMessage(nil)
		if r.metrics != nil {
			r.metrics.Subscribers.Dec()
		}
	}
	r.wg.Wait()
	return nil
}

func (r *Responder) handleMessage(data []byte) {
	req, err := hints.DecodeRequest(data)
	if err != nil {
		if r.log != nil {
			r.log.Debugf("ignoring message: %v", err)
		}
		return
	}

	reply := hints.Reply{ID: req.ID, Hints: make([]hints.Result, 0, len(req.Hints))}
	for _, h := range req.Hints {
		code := r.validator(h)
		reply.Hints = append(reply.Hints, hints.Result{TrackSID: h.TrackSID, Result: code})
		if r.metrics != nil {
			r.metrics.Results.WithLabelValues(string(code)).Inc()
		}
	}
	if r.metrics != nil {
		r.metrics.Requests.Inc()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.requests++
	r.recordLocked(req)
	if r.held {
		r.queued = append(r.queued, reply)
		r.mu.Unlock()
		if r.log != nil {
			r.log.Tracef("holding reply %d", req.ID)
		}
		return
	}
	r.mu.Unlock()

	if r.log != nil {
		r.log.Debugf("request %d with %d hints", req.ID, len(req.Hints))
	}

	r.send(reply)
}

// send publishes reply, after the configured delay if any.
func (r *Responder) send(reply hints.Reply) {
	if r.delay <= 0 {
		r.publish(reply)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	time.AfterFunc(r.delay, func() {
		defer r.wg.Done()
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			r.publish(reply)
		}
	})
}

func (r *Responder) publish(reply hints.Reply) {
	data, err := hints.EncodeReply(reply)
	if err == nil {
		err = r.channel.Publish(data)
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.ReplyErrors.Inc()
		}
		if r.log != nil {
			r.log.Warnf("reply %d not sent: %v", reply.ID, err)
		}
	}
}

// Hold queues replies instead of sending them until Release.
func (r *Responder) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = true
}

// Release sends every queued reply in arrival order and stops holding.
// It returns the number of replies released.
func (r *Responder) Release() int {
	r.mu.Lock()
	queued := r.queued
	r.queued = nil
	r.held = false
	r.mu.Unlock()

	for _, reply := range queued {
		r.send(reply)
	}
	return len(queued)
}

// recordLocked appends req to the history, dropping the oldest entry once
// the history is full.
func (r *Responder) recordLocked(req hints.Request) {
	if r.history <= 0 {
		return
	}
	if len(r.received) == r.history {
		copy(r.received, r.received[1:])
		r.received = r.received[:r.history-1]
	}
	r.received = append(r.received, req)
}

// Requests returns the number of requests received so far.
func (r *Responder) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Received returns a copy of the most recent requests, oldest first.
func (r *Responder) Received() []hints.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]hints.Request, len(r.received))
	copy(out, r.received)
	return out
}
