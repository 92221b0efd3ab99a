// Package protocol defines the control-link wire format used during signaling.
//
// Every control-link text frame carries exactly one JSON object:
//
//	{"messageType": "offer" | "answer" | "candidate", "payload": <opaque JSON>}
//
// The payload is never interpreted here; it is carried byte-for-byte between
// the peer transport and the control link.
package protocol

import "encoding/json"

// MessageType identifies the kind of signaling message.
type MessageType string

// Message type constants.
const (
	TypeOffer     MessageType = "offer"     // Initiator's session description
	TypeAnswer    MessageType = "answer"    // Responder's session description
	TypeCandidate MessageType = "candidate" // Trickled connectivity candidate
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

// Message is a single signaling message exchanged over the control link.
type Message struct {
	Type    MessageType     `json:"messageType"`
	Payload json.RawMessage `json:"payload"`
}

// NewOffer wraps a session description as an offer message.
func NewOffer(description []byte) *Message {
	return &Message{Type: TypeOffer, Payload: json.RawMessage(description)}
}

// NewAnswer wraps a session description as an answer message.
func NewAnswer(description []byte) *Message {
	return &Message{Type: TypeAnswer, Payload: json.RawMessage(description)}
}

// NewCandidate wraps a connectivity candidate as a candidate message.
func NewCandidate(candidate []byte) *Message {
	return &Message{Type: TypeCandidate, Payload: json.RawMessage(candidate)}
}
