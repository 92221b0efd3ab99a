// Package signaling implements the control link used to bootstrap the peer
// transport: a reliable, ordered, message-oriented side channel, plus the
// relay that carries connectivity candidates over it.
package signaling

import (
	"context"
	"errors"
)

// ErrLinkClosed is returned by Link.Send once the link is no longer open.
var ErrLinkClosed = errors.New("control link closed")

// Link is an open control link. Messages are delivered whole and in order
// while the link is open; nothing is guaranteed after close.
type Link interface {
	// Read blocks until the next inbound message arrives. It returns an
	// error once the link is closed, locally or by the remote end.
	Read() ([]byte, error)

	// Send writes one message. It returns ErrLinkClosed if the link is
	// not open.
	Send(text []byte) error

	// Close closes the link. Safe to call multiple times.
	Close() error
}

// Opener opens a control link to address.
type Opener interface {
	Open(ctx context.Context, address string) (Link, error)
}
