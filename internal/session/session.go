// Package session runs one two-party negotiation: it bootstraps the peer
// transport over a control link and exposes the resulting unordered,
// unreliable data channel.
//
// All state transitions happen on a single goroutine that consumes events
// from the control link and the peer transport one at a time. Close may be
// called from any goroutine and takes effect immediately; results of peer
// transport calls that complete after Close are discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/1ureka/dcbridge/internal/signaling"
	"github.com/1ureka/dcbridge/internal/transport"
	"github.com/1ureka/dcbridge/internal/util"
)

const eventBufferSize = 64

// Options configures a Session.
type Options struct {
	Role Role

	// Greeting is sent once when the channel opens. Empty disables it.
	Greeting []byte
	// ProbeReply is sent once, on the first inbound channel message.
	// Empty disables it.
	ProbeReply []byte

	// OnMessage receives inbound channel messages.
	OnMessage func([]byte)
	// OnStateChange observes every transition. It runs on the session's
	// event goroutine or on the goroutine calling Close.
	OnStateChange func(from, to State)

	// Counters receives traffic accounting; a fresh set is used when nil.
	Counters *util.Counters
}

// Session is a single negotiation plus the channel it produces. It is
// created idle, started with Connect or Start, and ends Closed or Failed.
// A failed session is never retried; create a new one.
type Session struct {
	id       string
	role     Role
	peer     transport.Peer
	opts     Options
	log      *util.Logger
	counters *util.Counters

	events chan event

	ready     chan struct{} // closed on Connected
	readyOnce sync.Once
	done      chan struct{} // closed on Closed or Failed
	doneOnce  sync.Once

	mu      sync.Mutex
	state   State
	err     error
	started bool
	link    signaling.Link
	relay   *signaling.Relay
	local   transport.Description
	remote  transport.Description
	pending []transport.Candidate // remote candidates received before the remote description
	channel *DataChannel
}

// New creates an idle session driving peer. It registers the peer's
// callbacks, so peer must not be shared with another session.
func New(peer transport.Peer, opts Options) *Session {
	counters := opts.Counters
	if counters == nil {
		counters = &util.Counters{}
	}

	id := uuid.NewString()
	s := &Session{
		id:       id,
		role:     opts.Role,
		peer:     peer,
		opts:     opts,
		log:      util.NewLogger(id[:8]),
		counters: counters,
		events:   make(chan event, eventBufferSize),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		state:    Idle,
	}

	peer.OnCandidate(func(c transport.Candidate) {
		s.post(candidateDiscovered{candidate: c})
	})
	peer.OnChannel(func(ch transport.Channel) {
		s.post(channelOpened{ch: ch})
	})
	peer.OnConnectionStateChange(func(state string) {
		s.post(connectionStateChanged{state: state})
	})

	return s
}

// Connect opens the control link to address and starts negotiating. A link
// that cannot be opened fails the session with ErrConnection, which is also
// returned.
func (s *Session) Connect(ctx context.Context, opener signaling.Opener, address string) error {
	if err := s.begin(); err != nil {
		return err
	}

	link, err := opener.Open(ctx, address)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, err)
		s.fail(err)
		return err
	}
	return s.attach(link)
}

// Start begins negotiating over a link that is already open, e.g. one
// accepted by a signaling.Server.
func (s *Session) Start(link signaling.Link) error {
	if err := s.begin(); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			link.Close()
		}
		return err
	}
	return s.attach(link)
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return ErrSessionClosed
	}
	if s.started {
		return errors.New("session already started")
	}
	s.started = true
	return nil
}

// attach installs link and starts the event loop and the link reader.
func (s *Session) attach(link signaling.Link) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		link.Close()
		return ErrSessionClosed
	}
	s.link = link
	s.relay = signaling.NewRelay(link)
	s.mu.Unlock()

	go s.run()

	// linkOpened must be queued before the reader can queue any message.
	s.post(linkOpened{})
	go s.readLink(link)

	return nil
}

// readLink turns inbound link traffic into events until the link closes.
func (s *Session) readLink(link signaling.Link) {
	for {
		data, err := link.Read()
		if err != nil {
			s.post(linkClosed{err: err})
			return
		}
		s.post(linkMessage{data: data})
	}
}

// post queues ev for the event loop. Events posted after the session ended
// are discarded.
func (s *Session) post(ev event) {
	select {
	case <-s.done:
		discard(ev)
		return
	default:
	}

	select {
	case s.events <- ev:
	case <-s.done:
		discard(ev)
	}
}

// discard releases resources carried by an event that will not be handled.
func discard(ev event) {
	if opened, ok := ev.(channelOpened); ok {
		opened.ch.Close()
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Role returns the role the session was created with.
func (s *Session) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of failure, or nil unless the session Failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready returns a channel that is closed when the session reaches Connected.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done returns a channel that is closed when the session is Closed or Failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// WaitConnected blocks until the session is Connected, has ended, or ctx is
// done.
func (s *Session) WaitConnected(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		select {
		case <-s.ready:
			return nil
		default:
		}
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Channel returns the data channel, or nil before Connected.
func (s *Session) Channel() *DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// LocalDescription returns the description set locally, if any.
func (s *Session) LocalDescription() transport.Description {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// RemoteDescription returns the description applied as remote, if any.
func (s *Session) RemoteDescription() transport.Description {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// Stats returns a snapshot of the session's traffic counters.
func (s *Session) Stats() util.Snapshot {
	return s.counters.Snapshot()
}

// Send writes data to the channel, best-effort. It fails with
// ErrChannelNotOpen unless the session is Connected.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	ch, state := s.channel, s.state
	s.mu.Unlock()

	if ch == nil || state != Connected {
		return ErrChannelNotOpen
	}
	return ch.Send(data)
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// Close ends the session. Queued candidates are discarded, the channel
// becomes unusable and the link and peer transport are released. Closing an
// ended session is a no-op.
func (s *Session) Close() error {
	s.shutdown(Closed, nil)
	return nil
}

// fail moves the session to Failed with cause.
func (s *Session) fail(cause error) {
	if s.shutdown(Failed, cause) {
		s.log.Error("session failed: %v", cause)
	}
}

// shutdown performs the single transition into a terminal state. It reports
// false if the session had already ended.
func (s *Session) shutdown(to State, cause error) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	from := s.state
	s.state = to
	if cause != nil {
		s.err = fmt.Errorf("%w: %w", ErrSessionFailed, cause)
	}
	s.pending = nil
	link, ch := s.link, s.channel
	s.mu.Unlock()

	s.doneOnce.Do(func() { close(s.done) })

	if ch != nil {
		ch.Close()
	}
	if link != nil {
		link.Close()
	}
	if err := s.peer.Close(); err != nil {
		s.log.Debug("closing peer transport: %v", err)
	}

	s.notify(from, to)
	return true
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// transition moves from → to. It reports false, changing nothing, when the
// session is no longer in from (typically because it was closed while a
// peer transport call was in flight).
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.notify(from, to)
	return true
}

func (s *Session) notify(from, to State) {
	s.log.Debug("state %s → %s", from, to)
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(from, to)
	}
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) terminated() bool {
	return s.currentState().Terminal()
}
