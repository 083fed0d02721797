package hints

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/backkem/renderhints/pkg/transport"
	"github.com/pion/logging"
	"github.com/pion/randutil"
)

// DefaultCoalesceWindow is the flush delay used when Config.CoalesceWindow
// is zero.
const DefaultCoalesceWindow = 5 * time.Millisecond

// Config configures a Signaling instance.
type Config struct {
	// Acquire resolves the transport for the subscriber context passed to
	// Setup. Required.
	Acquire transport.Acquirer

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// OnReady is called once, when the transport becomes bound.
	OnReady func()

	// OnResult is called for each per-track result of an accepted reply
	// that refers to a track still known locally.
	OnResult func(Result)

	// StrictReplyMatching makes the state machine ignore replies whose id
	// differs from the outstanding request id. By default any render_hints
	// reply completes the outstanding request.
	StrictReplyMatching bool

	// ReplyTimeout enables re-sending of a batch whose reply never arrives.
	// Zero waits forever.
	ReplyTimeout time.Duration

	// CoalesceWindow delays each flush so that hints changed in quick
	// succession go out in one batch. Zero uses DefaultCoalesceWindow;
	// a negative value flushes as soon as possible.
	CoalesceWindow time.Duration

	// IDGenerator returns request ids. Default: pion/randutil math generator.
	IDGenerator func() uint32

	// Random is the jitter source for reply timeout backoff.
	// If nil, DefaultRandomSource is used.
	Random RandomSource
}

// PendingRequest describes the batch currently awaiting a reply.
type PendingRequest struct {
	// ID is the subscriber id of the published request.
	ID uint32

	// TrackSIDs are the tracks included in the batch, in send order.
	TrackSIDs []string

	// SentAt is when the batch was handed to the channel.
	SentAt time.Time
}

// Signaling tracks per-track render hints and keeps the remote peer in sync
// with at most one render_hints request in flight.
//
// All methods are safe for concurrent use. SendTrackHint and
// DeleteTrackState only touch local state; publishing happens on a
// dedicated flush goroutine, so batches reach the channel in order.
type Signaling struct {
	config  Config
	log     logging.LeveledLogger
	nextID  func() uint32
	backoff *BackoffCalculator

	ctx     context.Context
	cancel  context.CancelFunc
	ready   chan struct{}
	kick    chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	channel   transport.Channel
	setupDone bool
	closed    bool
	tracks    map[string]*TrackHintState
	dirty     *dirtySet
	state     State
	pending   *PendingRequest
	timer     *time.Timer
	timeouts  int
	lastID    uint32
}

// New creates a Signaling instance. No network activity happens until Setup.
func New(config Config) (*Signaling, error) {
	if config.Acquire == nil {
		return nil, ErrNoAcquirer
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Signaling{
		config:  config,
		nextID:  config.IDGenerator,
		backoff: NewBackoffCalculator(config.Random),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		kick:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		tracks:  make(map[string]*TrackHintState),
		dirty:   newDirtySet(),
		state:   StateIdle,
	}

	if s.nextID == nil {
		s.nextID = randomIDGenerator()
	}
	if s.config.CoalesceWindow == 0 {
		s.config.CoalesceWindow = DefaultCoalesceWindow
	}

	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("hints")
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

// randomIDGenerator returns non-zero random request ids.
func randomIDGenerator() func() uint32 {
	gen := randutil.NewMathRandomGenerator()
	return func() uint32 {
		for {
			if id := gen.Uint32(); id != 0 {
				return id
			}
		}
	}
}

// Setup binds the instance to a subscriber context and starts acquiring the
// transport in the background. It may be called once.
func (s *Signaling) Setup(subscriberContextID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.setupDone {
		s.mu.Unlock()
		return ErrAlreadySetup
	}
	s.setupDone = true
	s.mu.Unlock()

	if s.log != nil {
		s.log.Debugf("acquiring transport for subscriber %s", subscriberContextID)
	}

	go s.acquire(subscriberContextID)

	return nil
}

// acquire resolves the transport once. Failures leave the instance unbound.
func (s *Signaling) acquire(subscriberContextID string) {
	t, err := s.config.Acquire(s.ctx, subscriberContextID)
	if err == nil && t == nil {
		err = transport.ErrNoChannel
	}
	if err != nil {
		if s.log != nil {
			s.log.Errorf("transport acquisition for subscriber %s failed: %v", subscriberContextID, err)
		}
		return
	}

	if kind := t.Kind(); kind != transport.KindData {
		if s.log != nil {
			s.log.Warnf("transport of kind %s cannot carry render hints, staying unbound", kind)
		}
		return
	}

	ch, err := t.Channel()
	if err != nil {
		if s.log != nil {
			s.log.Errorf("failed to obtain data channel: %v", err)
		}
		return
	}

	s.bind(ch)
}

// bind stores the channel, emits ready and flushes whatever accumulated.
func (s *Signaling) bind(ch transport.Channel) {
	ch.OnMessage(s.handleMessage)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ch.OnMessage(nil)
		return
	}
	s.channel = ch
	queued := s.dirty.len()
	s.mu.Unlock()

	close(s.ready)

	if s.log != nil {
		s.log.Infof("render hint transport ready (%d tracks queued)", queued)
	}

	if s.config.OnReady != nil {
		s.config.OnReady()
	}

	s.kickFlush()
}

// Ready is closed once the transport is bound.
func (s *Signaling) Ready() <-chan struct{} {
	return s.ready
}

// IsReady returns true once the transport is bound.
func (s *Signaling) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// SendTrackHint merges patch into the state of trackSID, marks the track
// dirty and attempts a flush.
func (s *Signaling) SendTrackHint(trackSID string, patch Patch) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.applyLocked(trackSID, patch)
	s.mu.Unlock()

	s.kickFlush()
}

// TrackPatch is a patch addressed to one track.
type TrackPatch struct {
	TrackSID string
	Patch    Patch
}

// SendTrackHints applies every patch in order as SendTrackHint would, then
// attempts one flush. All tracks are marked dirty before the flush goroutine
// is woken, so they go out in the same batch when no request is outstanding.
func (s *Signaling) SendTrackHints(patches ...TrackPatch) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, p := range patches {
		s.applyLocked(p.TrackSID, p.Patch)
	}
	s.mu.Unlock()

	if len(patches) > 0 {
		s.kickFlush()
	}
}

func (s *Signaling) applyLocked(trackSID string, patch Patch) {
	t, ok := s.tracks[trackSID]
	if !ok {
		t = &TrackHintState{TrackSID: trackSID}
		s.tracks[trackSID] = t
	}
	t.merge(patch)
	s.dirty.add(trackSID)
}

// DeleteTrackState forgets trackSID. A batch already published is not
// recalled, but results referring to the track are ignored from now on.
func (s *Signaling) DeleteTrackState(trackSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tracks, trackSID)
	s.dirty.remove(trackSID)
}

// kickFlush schedules a flush attempt without blocking.
func (s *Signaling) kickFlush() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// flushLoop runs flush attempts one at a time until Close.
func (s *Signaling) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closeCh:
			return
		case <-s.kick:
		}

		// The window starts once there is something to send.
		if !s.flushable() {
			continue
		}

		if w := s.config.CoalesceWindow; w > 0 {
			timer := time.NewTimer(w)
			select {
			case <-s.closeCh:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		s.flush()
	}
}

// flushable reports whether a flush would publish right now.
func (s *Signaling) flushable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.channel != nil && s.state == StateIdle && s.dirty.len() > 0
}

// flush publishes the dirty tracks if the transport is bound and no request
// is outstanding. It is a no-op otherwise. Only called from flushLoop.
func (s *Signaling) flush() {
	s.mu.Lock()
	ch, req, ok := s.prepareLocked()
	s.mu.Unlock()

	if !ok {
		return
	}

	payload, err := EncodeRequest(req)
	if err == nil {
		err = ch.Publish(payload)
	}
	if err != nil {
		s.publishFailed(req, err)
		return
	}

	if s.log != nil {
		s.log.Debugf("published render_hints request %d with %d hints", req.ID, len(req.Hints))
	}
}

// prepareLocked moves the dirty set into a pending request.
func (s *Signaling) prepareLocked() (transport.Channel, Request, bool) {
	if s.closed || s.channel == nil || s.state != StateIdle || s.dirty.len() == 0 {
		return nil, Request{}, false
	}

	sids := s.dirty.snapshot()
	batch := make([]Hint, 0, len(sids))
	sent := make([]string, 0, len(sids))
	for _, sid := range sids {
		t, ok := s.tracks[sid]
		if !ok {
			continue
		}
		batch = append(batch, t.Hint())
		sent = append(sent, sid)
	}
	s.dirty.removeAll(sids)

	if len(batch) == 0 {
		return nil, Request{}, false
	}

	req := Request{ID: s.freshIDLocked(), Hints: batch}

	s.state = StateAwaitingReply
	s.pending = &PendingRequest{ID: req.ID, TrackSIDs: sent, SentAt: time.Now()}
	s.armTimerLocked(req.ID)

	return s.channel, req, true
}

// freshIDLocked returns an id different from the previous request's.
func (s *Signaling) freshIDLocked() uint32 {
	id := s.nextID()
	for i := 0; id == s.lastID && i < 8; i++ {
		id = s.nextID()
	}
	s.lastID = id
	return id
}

// publishFailed returns the batch to the dirty set. The next trigger retries.
func (s *Signaling) publishFailed(req Request, err error) {
	if s.log != nil {
		s.log.Warnf("failed to publish render_hints request %d: %v", req.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Mutations made during the failed publish do not trigger a retry.
	select {
	case <-s.kick:
	default:
	}

	sids := make([]string, len(req.Hints))
	for i, h := range req.Hints {
		sids[i] = h.TrackSID
	}
	s.requeueLocked(sids)

	if s.pending != nil && s.pending.ID == req.ID {
		s.stopTimerLocked()
		s.pending = nil
		s.state = StateIdle
	}
}

// requeueLocked merges sids back in front of the dirty set, skipping tracks
// deleted in the meantime.
func (s *Signaling) requeueLocked(sids []string) {
	kept := make([]string, 0, len(sids))
	for _, sid := range sids {
		if _, ok := s.tracks[sid]; ok {
			kept = append(kept, sid)
		}
	}
	s.dirty.prepend(kept)
}

// handleMessage processes one inbound message from the channel.
func (s *Signaling) handleMessage(data []byte) {
	msgType, err := MessageType(data)
	if err != nil {
		if s.log != nil {
			s.log.Debugf("ignoring inbound message: %v", err)
		}
		return
	}
	if msgType != MessageTypeRenderHints {
		if s.log != nil {
			s.log.Tracef("ignoring inbound message of type %q", msgType)
		}
		return
	}

	rep, decodeErr := DecodeReply(data)
	if decodeErr != nil && s.log != nil {
		s.log.Debugf("render_hints reply has no usable payload: %v", decodeErr)
	}

	s.mu.Lock()
	if s.state != StateAwaitingReply || s.pending == nil {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Debugf("ignoring render_hints reply %d: no request outstanding", rep.ID)
		}
		return
	}
	if s.config.StrictReplyMatching && (decodeErr != nil || rep.ID != s.pending.ID) {
		pendingID := s.pending.ID
		s.mu.Unlock()
		if s.log != nil {
			s.log.Debugf("ignoring render_hints reply %d: awaiting %d", rep.ID, pendingID)
		}
		return
	}

	pending := s.pending
	s.stopTimerLocked()
	s.pending = nil
	s.state = StateIdle
	s.timeouts = 0

	var known, unknown []Result
	for _, r := range rep.Hints {
		if _, ok := s.tracks[r.TrackSID]; ok {
			known = append(known, r)
		} else {
			unknown = append(unknown, r)
		}
	}
	s.mu.Unlock()

	s.reportResults(pending, rep.ID, known, unknown)

	s.kickFlush()
}

// reportResults logs per-track results and forwards them to OnResult.
func (s *Signaling) reportResults(pending *PendingRequest, replyID uint32, known, unknown []Result) {
	if s.log != nil {
		s.log.Debugf("render_hints request %d completed by reply %d after %v",
			pending.ID, replyID, time.Since(pending.SentAt))
		for _, r := range unknown {
			s.log.Debugf("ignoring result %s for unknown track %s", r.Result, r.TrackSID)
		}
		for _, r := range known {
			if r.Result.IsOK() {
				s.log.Tracef("track %s: hint applied", r.TrackSID)
			} else {
				s.log.Warnf("track %s: hint rejected: %s", r.TrackSID, r.Result)
			}
		}
	}

	if s.config.OnResult != nil {
		for _, r := range known {
			s.config.OnResult(r)
		}
	}
}

// armTimerLocked starts the reply timer for request id, if enabled.
func (s *Signaling) armTimerLocked(id uint32) {
	if s.config.ReplyTimeout <= 0 {
		return
	}
	wait := s.backoff.Calculate(s.config.ReplyTimeout, s.timeouts)
	s.timer = time.AfterFunc(wait, func() { s.onReplyTimeout(id) })
}

func (s *Signaling) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// onReplyTimeout treats request id as lost and requeues its tracks.
func (s *Signaling) onReplyTimeout(id uint32) {
	s.mu.Lock()
	if s.closed || s.pending == nil || s.pending.ID != id {
		s.mu.Unlock()
		return
	}
	sids := s.pending.TrackSIDs
	s.timer = nil
	s.pending = nil
	s.state = StateIdle
	s.timeouts++
	timeouts := s.timeouts
	s.requeueLocked(sids)
	s.mu.Unlock()

	if s.log != nil {
		s.log.Warnf("no reply to render_hints request %d (timeout #%d), requeueing %d tracks",
			id, timeouts, len(sids))
	}

	s.kickFlush()
}

// TrackHint returns a copy of the stored state of trackSID.
func (s *Signaling) TrackHint(trackSID string) (TrackHintState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracks[trackSID]
	if !ok {
		return TrackHintState{}, false
	}
	return t.clone(), true
}

// TrackHints returns copies of all stored states, sorted by track SID.
func (s *Signaling) TrackHints() []TrackHintState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TrackHintState, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackSID < out[j].TrackSID })
	return out
}

// DirtyTracks returns the tracks waiting to be sent, in send order.
func (s *Signaling) DirtyTracks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty.snapshot()
}

// State returns the current state of the flush state machine.
func (s *Signaling) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the outstanding request, if any.
func (s *Signaling) Pending() (PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return PendingRequest{}, false
	}
	p := *s.pending
	p.TrackSIDs = append([]string(nil), s.pending.TrackSIDs...)
	return p, true
}

// Close stops acquisition, the flush goroutine and the reply timer, and
// detaches from the channel. Local state is kept for inspection.
func (s *Signaling) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	ch := s.channel
	s.mu.Unlock()

	s.cancel()
	close(s.closeCh)
	s.wg.Wait()
	if ch != nil {
		ch.OnMessage(nil)
	}

	if s.log != nil {
		s.log.Debug("render hint signaling closed")
	}
	return nil
}

// String implements fmt.Stringer for debugging.
func (s *Signaling) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Signaling{state=%s, tracks=%d, dirty=%d, bound=%t}",
		s.state, len(s.tracks), s.dirty.len(), s.channel != nil)
}
