package session

import (
	"errors"

	"github.com/1ureka/dcbridge/internal/protocol"
)

var (
	// ErrConnection means the control link could not be opened, or closed
	// before the peer transport connected.
	ErrConnection = errors.New("control link connection error")

	// ErrSend means a message could not be written to a link believed open.
	ErrSend = errors.New("control link send error")

	// ErrNegotiation means a session description could not be created or
	// applied.
	ErrNegotiation = errors.New("negotiation error")

	// ErrMalformedMessage marks a control-link frame that does not match
	// the signaling schema.
	ErrMalformedMessage = protocol.ErrMalformed

	// ErrChannelNotOpen is returned by Send outside the channel's open
	// window. It does not affect session state.
	ErrChannelNotOpen = errors.New("data channel not open")

	// ErrSessionFailed wraps the cause of every failed session.
	ErrSessionFailed = errors.New("session failed")

	// ErrSessionClosed is returned when operating on a closed session.
	ErrSessionClosed = errors.New("session closed")
)
