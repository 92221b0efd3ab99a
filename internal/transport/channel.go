package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/dcbridge/internal/util"
)

var (
	// ErrChannelClosed is returned by Send after the channel has closed.
	ErrChannelClosed = errors.New("data channel closed")

	// ErrQueueFull is returned by Send when the send queue had no room and
	// the message was dropped.
	ErrQueueFull = errors.New("send queue full")
)

// backlogSize bounds the messages held before OnMessage is registered.
const backlogSize = 64

// Compile-time interface check.
var _ Channel = (*channel)(nil)

// channel adapts an open pion DataChannel to Channel. Outbound messages go
// through the sender queue.
type channel struct {
	raw    *webrtc.DataChannel
	sender *sender

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	onClose   func()
	onMessage func([]byte)
	backlog   [][]byte

	closeOnce sync.Once
}

// newChannel wraps raw, which must already be open.
func newChannel(raw *webrtc.DataChannel, counters *util.Counters) *channel {
	ctx, cancel := context.WithCancel(context.Background())

	c := &channel{
		raw:    raw,
		ctx:    ctx,
		cancel: cancel,
	}
	c.sender = newSender(ctx, raw, counters)

	// Messages can arrive before the owner registers its handler.
	raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		fn := c.onMessage
		if fn == nil {
			if len(c.backlog) < backlogSize {
				c.backlog = append(c.backlog, msg.Data)
			}
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		fn(msg.Data)
	})

	raw.OnClose(c.markClosed)

	// The channel may have closed before OnClose was registered.
	if raw.ReadyState() == webrtc.DataChannelStateClosed {
		c.markClosed()
	}

	return c
}

// markClosed stops the sender and notifies the owner, once.
func (c *channel) markClosed() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		c.closed = true
		fn := c.onClose
		c.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

func (c *channel) Label() string { return c.raw.Label() }

// Send queues data for best-effort delivery. A message that does not fit in
// the queue is dropped and reported with ErrQueueFull.
func (c *channel) Send(data []byte) error {
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}
	if !c.sender.send(append([]byte(nil), data...)) {
		return ErrQueueFull
	}
	return nil
}

// OnMessage registers the inbound message callback and replays anything
// received before it was set.
func (c *channel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.onMessage = fn
	backlog := c.backlog
	c.backlog = nil
	c.mu.Unlock()

	for _, data := range backlog {
		fn(data)
	}
}

// OnClose registers the callback invoked when the channel closes, locally or
// remotely. If the channel has already closed, fn runs immediately.
func (c *channel) OnClose(fn func()) {
	c.mu.Lock()
	c.onClose = fn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		fn()
	}
}

// Close stops the sender and closes the DataChannel.
func (c *channel) Close() error {
	c.cancel()
	return c.raw.Close()
}
