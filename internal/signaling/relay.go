package signaling

import (
	"errors"
	"fmt"

	"github.com/1ureka/dcbridge/internal/protocol"
)

// Relay carries connectivity candidates between the peer transport and the
// control link. It holds no state beyond the link it writes to.
type Relay struct {
	link Link
}

// NewRelay returns a Relay writing to link.
func NewRelay(link Link) *Relay {
	return &Relay{link: link}
}

// Forward sends a locally discovered candidate to the remote party.
//
// A candidate produced after the link has closed cannot be delivered and is
// dropped: Forward reports dropped=true with a nil error. Late candidates are
// a normal part of gathering, so this is not a failure.
func (r *Relay) Forward(candidate []byte) (dropped bool, err error) {
	frame, err := protocol.Encode(protocol.NewCandidate(candidate))
	if err != nil {
		return false, err
	}
	if err := r.link.Send(frame); err != nil {
		if errors.Is(err, ErrLinkClosed) {
			return true, nil
		}
		return false, fmt.Errorf("forward candidate: %w", err)
	}
	return false, nil
}

// Decode extracts the remote candidate carried by an inbound candidate
// message. The candidate is returned verbatim.
func (r *Relay) Decode(msg *protocol.Message) ([]byte, error) {
	if msg.Type != protocol.TypeCandidate {
		return nil, fmt.Errorf("%w: expected candidate, got %s", protocol.ErrMalformed, msg.Type)
	}
	return []byte(msg.Payload), nil
}
