package transport

import (
	"context"

	"github.com/1ureka/dcbridge/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing message channel capacity
)

// bufferedWriter is the part of *webrtc.DataChannel the sender needs.
type bufferedWriter interface {
	Send([]byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(uint64)
	OnBufferedAmountLow(func())
}

// sender is a goroutine-based message writer that serializes all writes to a
// single DataChannel, adding backpressure control. Delivery is best-effort:
// a full queue drops the message instead of blocking the caller.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}
	counters    *util.Counters
}

// newSender creates a sender, wires the backpressure callbacks on w, and
// starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, w bufferedWriter, counters *util.Counters) *sender {
	s := &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
		counters:    counters,
	}

	w.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	w.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, w)

	return s
}

// loop is the single-writer goroutine. It drains the inbox with
// backpressure awareness.
func (s *sender) loop(ctx context.Context, w bufferedWriter) {
	for {
		select {
		case msg := <-s.inbox:
			if w.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := w.Send(msg); err != nil {
				// Unreliable channel: a failed write is a lost message.
				util.LogDebug("failed to send message (%d bytes): %v", len(msg), err)
				s.counters.MessagesDropped.Add(1)
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues msg for transmission. It never blocks: when the queue is
// full the message is dropped and send reports false.
func (s *sender) send(msg []byte) bool {
	select {
	case s.inbox <- msg:
		return true
	default:
		s.counters.MessagesDropped.Add(1)
		return false
	}
}
