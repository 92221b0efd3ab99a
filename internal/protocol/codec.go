package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by Decode when a frame does not match the
// signaling message schema.
var ErrMalformed = errors.New("malformed signaling message")

// Encode serializes a Message into a single control-link text frame.
func Encode(msg *Message) ([]byte, error) {
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("%s message has no payload", msg.Type)
	}
	return json.Marshal(msg)
}

// Decode deserializes a control-link frame into a Message.
//
// On schema errors the returned error wraps ErrMalformed. When the frame is
// valid JSON and names a known message type, the partially decoded Message
// is returned alongside the error so the caller can tell which message was
// broken.
func Decode(data []byte) (*Message, error) {
	var raw struct {
		Type    *MessageType    `json:"messageType"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Type == nil {
		return nil, fmt.Errorf("%w: missing messageType", ErrMalformed)
	}
	if !raw.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown messageType %q", ErrMalformed, *raw.Type)
	}

	msg := &Message{Type: *raw.Type}
	if len(raw.Payload) == 0 || bytes.Equal(bytes.TrimSpace(raw.Payload), []byte("null")) {
		return msg, fmt.Errorf("%w: %s message has no payload", ErrMalformed, msg.Type)
	}
	msg.Payload = raw.Payload
	return msg, nil
}
