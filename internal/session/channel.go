package session

import (
	"errors"
	"sync"

	"github.com/1ureka/dcbridge/internal/transport"
	"github.com/1ureka/dcbridge/internal/util"
)

// DataChannel is the application side of an established session: an
// unordered channel with no retransmission. Sends are best-effort.
type DataChannel struct {
	raw      transport.Channel
	log      *util.Logger
	counters *util.Counters
	probe    []byte

	mu        sync.Mutex
	open      bool
	gotFirst  bool
	onMessage func([]byte)

	closeOnce sync.Once
	onClosed  func()
}

// newDataChannel wraps an open transport channel for s. Inbound messages go
// to s's OnMessage option until replaced with DataChannel.OnMessage.
// Callbacks are not hooked up until attach.
func newDataChannel(raw transport.Channel, s *Session) *DataChannel {
	return &DataChannel{
		raw:       raw,
		log:       s.log,
		counters:  s.counters,
		probe:     s.opts.ProbeReply,
		open:      true,
		onMessage: s.opts.OnMessage,
		onClosed:  func() { s.post(channelClosed{}) },
	}
}

// attach registers d's callbacks on the transport channel. A channel that
// closed before this point reports its close immediately.
func (d *DataChannel) attach() {
	d.raw.OnMessage(d.receive)
	d.raw.OnClose(d.markClosed)
}

// Label returns the channel's label.
func (d *DataChannel) Label() string { return d.raw.Label() }

// IsOpen reports whether Send can currently succeed.
func (d *DataChannel) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Send writes data without waiting for delivery. It returns
// ErrChannelNotOpen once the channel has closed.
func (d *DataChannel) Send(data []byte) error {
	if !d.IsOpen() {
		return ErrChannelNotOpen
	}
	if err := d.raw.Send(data); err != nil {
		switch {
		case errors.Is(err, transport.ErrChannelClosed):
			return ErrChannelNotOpen
		case errors.Is(err, transport.ErrQueueFull):
			// Best-effort: a dropped message is not an error for the caller.
			return nil
		}
		return err
	}
	d.counters.AddSent(len(data))
	return nil
}

// OnMessage replaces the inbound message callback.
func (d *DataChannel) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	d.onMessage = fn
	d.mu.Unlock()
}

// Close closes the channel. The owning session moves to Closed.
func (d *DataChannel) Close() error {
	err := d.raw.Close()
	d.markClosed()
	return err
}

func (d *DataChannel) receive(data []byte) {
	d.counters.AddRecv(len(data))

	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return
	}
	first := !d.gotFirst
	d.gotFirst = true
	fn := d.onMessage
	d.mu.Unlock()

	// The first inbound message is answered once with the probe reply.
	if first && len(d.probe) > 0 {
		if err := d.Send(d.probe); err != nil {
			d.log.Debug("sending probe reply: %v", err)
		}
	}
	if fn != nil {
		fn(data)
	}
}

func (d *DataChannel) markClosed() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.open = false
		d.mu.Unlock()

		if d.onClosed != nil {
			d.onClosed()
		}
	})
}
