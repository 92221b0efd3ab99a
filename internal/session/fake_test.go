package session

import (
	"sync"

	"github.com/1ureka/dcbridge/internal/transport"
)

// fakePeer is a scripted transport.Peer that records every negotiation call
// in order.
type fakePeer struct {
	offer  transport.Description
	answer transport.Description

	offerErr  error
	answerErr error
	remoteErr error
	addErr    error

	// remoteGate, when set, blocks SetRemoteDescription until closed.
	remoteGate   chan struct{}
	remoteCalled chan struct{}

	mu          sync.Mutex
	calls       []string
	closed      bool
	onCandidate func(transport.Candidate)
	onChannel   func(transport.Channel)
	onState     func(string)
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		offer:        transport.Description(`{"type":"offer","sdp":"D1"}`),
		answer:       transport.Description(`{"type":"answer","sdp":"D3"}`),
		remoteCalled: make(chan struct{}, 1),
	}
}

func (p *fakePeer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePeer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePeer) CreateOffer() (transport.Description, error) {
	p.record("create-offer")
	if p.offerErr != nil {
		return nil, p.offerErr
	}
	return p.offer, nil
}

func (p *fakePeer) CreateAnswer() (transport.Description, error) {
	p.record("create-answer")
	if p.answerErr != nil {
		return nil, p.answerErr
	}
	return p.answer, nil
}

func (p *fakePeer) SetLocalDescription(d transport.Description) error {
	p.record("set-local " + string(d))
	return nil
}

func (p *fakePeer) SetRemoteDescription(d transport.Description) error {
	select {
	case p.remoteCalled <- struct{}{}:
	default:
	}
	if p.remoteGate != nil {
		<-p.remoteGate
	}
	p.record("set-remote " + string(d))
	return p.remoteErr
}

func (p *fakePeer) AddCandidate(c transport.Candidate) error {
	p.record("add " + string(c))
	return p.addErr
}

func (p *fakePeer) OnCandidate(fn func(transport.Candidate)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnChannel(fn func(transport.Channel)) {
	p.mu.Lock()
	p.onChannel = fn
	p.mu.Unlock()
}

func (p *fakePeer) OnConnectionStateChange(fn func(string)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// discover emits a locally gathered candidate.
func (p *fakePeer) discover(c string) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	fn(transport.Candidate(c))
}

// openChannel reports a newly opened channel and returns it.
func (p *fakePeer) openChannel() *fakeChannel {
	return p.report(&fakeChannel{label: "dc"})
}

// report hands ch to the session as its opened channel.
func (p *fakePeer) report(ch *fakeChannel) *fakeChannel {
	p.mu.Lock()
	fn := p.onChannel
	p.mu.Unlock()
	fn(ch)
	return ch
}

// fakeChannel is an in-memory transport.Channel.
type fakeChannel struct {
	label string

	mu        sync.Mutex
	sent      []string
	closed    bool
	queueFull bool
	onMessage func([]byte)
	onClose   func()
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrChannelClosed
	}
	if c.queueFull {
		return transport.ErrQueueFull
	}
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *fakeChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *fakeChannel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		fn()
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// deliver simulates an inbound message from the remote party.
func (c *fakeChannel) deliver(data string) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn([]byte(data))
	}
}

func (c *fakeChannel) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
