package session

import (
	"errors"
	"fmt"

	"github.com/1ureka/dcbridge/internal/protocol"
	"github.com/1ureka/dcbridge/internal/transport"
)

// run consumes events one at a time until the session ends. Each handler
// runs to completion before the next event is taken, so handlers never
// interleave. Peer transport calls are made inline; every handler re-checks
// for a terminal state after such a call returns.
func (s *Session) run() {
	for {
		select {
		case ev := <-s.events:
			s.handle(ev)
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain releases whatever is still queued once the session has ended.
func (s *Session) drain() {
	for {
		select {
		case ev := <-s.events:
			discard(ev)
		default:
			return
		}
	}
}

func (s *Session) handle(ev event) {
	if s.terminated() {
		discard(ev)
		return
	}

	switch ev := ev.(type) {
	case linkOpened:
		s.onLinkOpened()
	case linkMessage:
		s.onLinkMessage(ev.data)
	case linkClosed:
		s.onLinkClosed(ev.err)
	case candidateDiscovered:
		s.onLocalCandidate(ev.candidate)
	case channelOpened:
		s.onChannelOpened(ev.ch)
	case channelClosed:
		s.onChannelClosed()
	case connectionStateChanged:
		s.log.Debug("peer connection state: %s", ev.state)
	}
}

// ---------------------------------------------------------------------------
// Control link
// ---------------------------------------------------------------------------

func (s *Session) onLinkOpened() {
	if !s.transition(Idle, LinkOpen) {
		return
	}
	s.log.Info("control link open (%s)", s.role)

	if s.role == Initiator {
		s.sendOffer()
	}
}

// sendOffer creates the local description, applies it and sends it as the
// session's single offer.
func (s *Session) sendOffer() {
	offer, err := s.peer.CreateOffer()
	if s.terminated() {
		return
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: create offer: %w", ErrNegotiation, err))
		return
	}

	if err := s.peer.SetLocalDescription(offer); err != nil {
		s.fail(fmt.Errorf("%w: set local offer: %w", ErrNegotiation, err))
		return
	}
	if s.terminated() {
		return
	}
	s.setLocal(offer)

	if err := s.sendMessage(protocol.NewOffer(offer)); err != nil {
		s.fail(err)
		return
	}
	if s.transition(LinkOpen, OfferSent) {
		s.log.Info("offer sent")
	}
}

// sendMessage encodes msg and writes it to the control link.
func (s *Session) sendMessage(msg *protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrNegotiation, msg.Type, err)
	}

	s.mu.Lock()
	link := s.link
	s.mu.Unlock()

	if err := link.Send(frame); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSend, msg.Type, err)
	}
	return nil
}

func (s *Session) onLinkMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.counters.Malformed.Add(1)
		if msg != nil && msg.Type == s.expectedDescription() {
			s.fail(fmt.Errorf("%w: %s: %w", ErrNegotiation, msg.Type, err))
			return
		}
		s.log.Warn("discarding control message: %v", err)
		return
	}

	switch msg.Type {
	case protocol.TypeAnswer:
		s.onAnswer(transport.Description(msg.Payload))
	case protocol.TypeOffer:
		s.onOffer(transport.Description(msg.Payload))
	case protocol.TypeCandidate:
		s.onRemoteCandidate(msg)
	}
}

// expectedDescription returns the description type the session is waiting
// for, or "" when none is expected.
func (s *Session) expectedDescription() protocol.MessageType {
	state := s.currentState()
	switch {
	case s.role == Initiator && state == OfferSent:
		return protocol.TypeAnswer
	case s.role == Responder && state == LinkOpen:
		return protocol.TypeOffer
	}
	return ""
}

// onLinkClosed fails a session still negotiating. Once connected the link
// is no longer needed and its loss is ignored.
func (s *Session) onLinkClosed(err error) {
	if s.currentState() == Connected {
		s.log.Debug("control link closed after connect: %v", err)
		return
	}
	s.fail(fmt.Errorf("%w: link closed before connect: %w", ErrConnection, err))
}

// ---------------------------------------------------------------------------
// Descriptions
// ---------------------------------------------------------------------------

// onAnswer applies the remote answer, then every queued candidate in arrival
// order.
func (s *Session) onAnswer(answer transport.Description) {
	if s.role != Initiator || s.currentState() != OfferSent {
		s.log.Warn("unexpected answer in state %s, discarding", s.currentState())
		return
	}

	if err := s.peer.SetRemoteDescription(answer); err != nil {
		s.fail(fmt.Errorf("%w: apply answer: %w", ErrNegotiation, err))
		return
	}
	if s.terminated() {
		return
	}
	s.log.Info("answer applied")

	if !s.flushPending(answer) {
		return
	}
	s.transition(OfferSent, AnswerApplied)
}

// onOffer answers a remote offer. Only a responder accepts offers.
func (s *Session) onOffer(offer transport.Description) {
	if s.role != Responder || s.currentState() != LinkOpen {
		s.log.Warn("unexpected offer in state %s, discarding", s.currentState())
		return
	}

	if err := s.peer.SetRemoteDescription(offer); err != nil {
		s.fail(fmt.Errorf("%w: apply offer: %w", ErrNegotiation, err))
		return
	}
	if s.terminated() {
		return
	}
	if !s.flushPending(offer) {
		return
	}

	answer, err := s.peer.CreateAnswer()
	if s.terminated() {
		return
	}
	if err != nil {
		s.fail(fmt.Errorf("%w: create answer: %w", ErrNegotiation, err))
		return
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		s.fail(fmt.Errorf("%w: set local answer: %w", ErrNegotiation, err))
		return
	}
	if s.terminated() {
		return
	}
	s.setLocal(answer)

	if err := s.sendMessage(protocol.NewAnswer(answer)); err != nil {
		s.fail(err)
		return
	}
	if s.transition(LinkOpen, AnswerSent) {
		s.log.Info("answer sent")
	}
}

func (s *Session) setLocal(d transport.Description) {
	s.mu.Lock()
	s.local = d
	s.mu.Unlock()
}

// flushPending records the remote description and applies the candidates
// queued before it, in order. It reports false if the session ended while
// doing so.
func (s *Session) flushPending(remote transport.Description) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.remote = remote
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(queued) > 0 {
		s.log.Debug("applying %d queued candidates", len(queued))
	}
	for _, c := range queued {
		if s.terminated() {
			return false
		}
		s.applyCandidate(c)
	}
	return !s.terminated()
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

// onRemoteCandidate applies a remote candidate, or queues it until the
// remote description is known.
func (s *Session) onRemoteCandidate(msg *protocol.Message) {
	raw, err := s.relay.Decode(msg)
	if err != nil {
		s.counters.Malformed.Add(1)
		s.log.Warn("discarding candidate: %v", err)
		return
	}
	s.counters.CandidatesRecv.Add(1)
	c := transport.Candidate(raw)

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.remote == nil {
		s.pending = append(s.pending, c)
		n := len(s.pending)
		s.mu.Unlock()
		s.log.Debug("queued remote candidate (%d pending)", n)
		return
	}
	s.mu.Unlock()

	s.applyCandidate(c)
}

// applyCandidate hands c to the peer transport. Late and duplicate
// candidates are expected, so failures are logged and ignored.
func (s *Session) applyCandidate(c transport.Candidate) {
	if err := s.peer.AddCandidate(c); err != nil {
		s.log.Debug("ignoring candidate: %v", err)
		return
	}
	s.counters.CandidatesApplied.Add(1)
}

// onLocalCandidate forwards a locally discovered candidate. A write failure
// is fatal while negotiating; after connect the candidate is just dropped.
func (s *Session) onLocalCandidate(c transport.Candidate) {
	dropped, err := s.relay.Forward(c)
	switch {
	case dropped:
		s.counters.CandidatesDropped.Add(1)
		s.log.Debug("control link closed, dropping local candidate")
	case err != nil:
		s.counters.CandidatesDropped.Add(1)
		if s.currentState() == Connected {
			s.log.Debug("dropping local candidate: %v", err)
			return
		}
		s.fail(fmt.Errorf("%w: %w", ErrSend, err))
	default:
		s.counters.CandidatesSent.Add(1)
	}
}

// ---------------------------------------------------------------------------
// Channel
// ---------------------------------------------------------------------------

// onChannelOpened completes the session once descriptions have been
// exchanged.
func (s *Session) onChannelOpened(ch transport.Channel) {
	want := AnswerApplied
	if s.role == Responder {
		want = AnswerSent
	}

	s.mu.Lock()
	if s.state != want || s.channel != nil {
		state := s.state
		s.mu.Unlock()
		s.log.Warn("channel opened in state %s, closing it", state)
		ch.Close()
		return
	}
	dc := newDataChannel(ch, s)
	s.channel = dc
	s.state = Connected
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.notify(want, Connected)
	s.log.Info("data channel %q open", ch.Label())

	// Outside the lock: a channel that is already closed reports it here.
	dc.attach()

	if len(s.opts.Greeting) > 0 {
		if err := dc.Send(s.opts.Greeting); err != nil && !errors.Is(err, ErrChannelNotOpen) {
			s.log.Warn("sending greeting: %v", err)
		}
	}
}

func (s *Session) onChannelClosed() {
	if s.currentState() != Connected {
		return
	}
	s.log.Info("data channel closed")
	s.shutdown(Closed, nil)
}
