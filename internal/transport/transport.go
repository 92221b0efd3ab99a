// Package transport defines the peer transport contract the session drives
// and implements it on top of pion/webrtc.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/dcbridge/internal/util"
)

// Description is a session description as produced and consumed by the peer
// transport, in its JSON form. Callers treat it as opaque.
type Description []byte

// Candidate is a connectivity candidate in its JSON form. Callers treat it
// as opaque.
type Candidate []byte

// Peer is the peer-to-peer connectivity capability the negotiation engine
// drives: description negotiation, candidate trickling and channel
// establishment.
type Peer interface {
	CreateOffer() (Description, error)
	CreateAnswer() (Description, error)
	SetLocalDescription(Description) error
	SetRemoteDescription(Description) error
	AddCandidate(Candidate) error

	// OnCandidate registers the callback for locally discovered candidates.
	OnCandidate(func(Candidate))
	// OnChannel registers the callback invoked once the session's channel
	// is open and usable.
	OnChannel(func(Channel))
	// OnConnectionStateChange registers an observer for connectivity state.
	OnConnectionStateChange(func(string))

	Close() error
}

// Channel is an open, unordered and unreliable message channel.
type Channel interface {
	Label() string
	Send([]byte) error
	OnMessage(func([]byte))
	OnClose(func())
	Close() error
}

// Options configures a Transport.
type Options struct {
	// Initiator creates the channel; the other side receives it.
	Initiator    bool
	STUNServers  []string
	ChannelLabel string
	// Counters receives channel traffic accounting. May be nil.
	Counters *util.Counters
}

// Compile-time interface check.
var _ Peer = (*Transport)(nil)

// Transport is a Peer backed by a single pion PeerConnection. On the
// initiating side it also owns the DataChannel created before the offer, so
// the channel is part of the negotiated session.
type Transport struct {
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel // initiator only
	counters *util.Counters

	mu      sync.Mutex
	onState func(string)

	closeOnce sync.Once
}

// New creates a Transport with a fresh PeerConnection.
func New(opts Options) (*Transport, error) {
	pc, err := newPeerConnection(opts.STUNServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	counters := opts.Counters
	if counters == nil {
		counters = &util.Counters{}
	}

	t := &Transport{
		pc:       pc,
		counters: counters,
	}

	if opts.Initiator {
		label := opts.ChannelLabel
		if label == "" {
			label = "dc"
		}
		dc, err := newDataChannel(pc, label)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to create DataChannel: %w", err)
		}
		t.dc = dc
	}

	// PC state is informational only.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()

		if fn != nil {
			fn(state.String())
		}
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Negotiation
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (Description, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (Description, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

// SetLocalDescription applies the local SDP. Setting it also starts
// candidate gathering.
func (t *Transport) SetLocalDescription(d Description) error {
	sdp, err := parseDescription(d)
	if err != nil {
		return err
	}
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(d Description) error {
	sdp, err := parseDescription(d)
	if err != nil {
		return err
	}
	return t.pc.SetRemoteDescription(sdp)
}

// AddCandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddCandidate(c Candidate) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(c, &init); err != nil {
		return fmt.Errorf("invalid ICE candidate: %w", err)
	}
	return t.pc.AddICECandidate(init)
}

// OnCandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. The end-of-gathering signal is not reported.
func (t *Transport) OnCandidate(fn func(Candidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			util.LogWarning("failed to encode ICE candidate: %v", err)
			return
		}
		fn(data)
	})
}

// OnChannel registers the channel-open callback. The initiator reports its
// own DataChannel; the responder reports the first DataChannel announced by
// the remote side.
func (t *Transport) OnChannel(fn func(Channel)) {
	if t.dc != nil {
		dc := t.dc
		var once sync.Once
		dc.OnOpen(func() {
			once.Do(func() { fn(newChannel(dc, t.counters)) })
		})
		return
	}

	var once sync.Once
	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			once.Do(func() { fn(newChannel(dc, t.counters)) })
		})
	})
}

// OnConnectionStateChange registers an observer for PeerConnection state.
func (t *Transport) OnConnectionStateChange(fn func(string)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts down the DataChannel and PeerConnection.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.dc != nil {
			err = t.dc.Close()
		}
		err = errors.Join(err, t.pc.Close())
	})
	return err
}

func parseDescription(d Description) (webrtc.SessionDescription, error) {
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal(d, &sdp); err != nil {
		return sdp, fmt.Errorf("invalid session description: %w", err)
	}
	if sdp.SDP == "" {
		return sdp, errors.New("invalid session description: empty sdp")
	}
	return sdp, nil
}
