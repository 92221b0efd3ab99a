package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestDecodeMalformed verifies that frames not matching the schema are
// rejected with ErrMalformed.
func TestDecodeMalformed(t *testing.T) {
	testCases := []struct {
		name     string
		data     string
		wantType MessageType // type reported alongside the error, if any
	}{
		{"empty", "", ""},
		{"not JSON", "hello", ""},
		{"JSON array", `[1, 2, 3]`, ""},
		{"JSON null", `null`, ""},
		{"missing messageType", `{"payload": {"sdp": "x"}}`, ""},
		{"unknown messageType", `{"messageType": "bye", "payload": {}}`, ""},
		{"messageType wrong kind", `{"messageType": 7, "payload": {}}`, ""},
		{"answer without payload", `{"messageType": "answer"}`, TypeAnswer},
		{"candidate with null payload", `{"messageType": "candidate", "payload": null}`, TypeCandidate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.data))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode(%q) error = %v, want ErrMalformed", tc.data, err)
			}
			if tc.wantType == "" {
				if msg != nil {
					t.Errorf("Decode(%q) returned message %+v, want nil", tc.data, msg)
				}
				return
			}
			if msg == nil || msg.Type != tc.wantType {
				t.Errorf("Decode(%q) message = %+v, want type %q", tc.data, msg, tc.wantType)
			}
		})
	}
}

// TestDecodeKeepsPayloadOpaque verifies that payload fields the codec knows
// nothing about survive decoding untouched.
func TestDecodeKeepsPayloadOpaque(t *testing.T) {
	frame := `{"messageType":"candidate","payload":{"candidate":"candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0,"x-extra":[1,2]}}`

	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Type != TypeCandidate {
		t.Fatalf("Type = %q, want %q", msg.Type, TypeCandidate)
	}

	want := `{"candidate":"candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0,"x-extra":[1,2]}`
	if string(msg.Payload) != want {
		t.Errorf("Payload = %s, want %s", msg.Payload, want)
	}
}

// TestEncodeWireShape verifies the field names used on the wire.
func TestEncodeWireShape(t *testing.T) {
	data, err := Encode(NewOffer([]byte(`{"type":"offer","sdp":"v=0"}`)))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("encoded frame is not a JSON object: %v", err)
	}
	if len(generic) != 2 {
		t.Errorf("encoded frame has %d fields, want 2: %s", len(generic), data)
	}
	if string(generic["messageType"]) != `"offer"` {
		t.Errorf("messageType = %s, want \"offer\"", generic["messageType"])
	}
	if !strings.Contains(string(generic["payload"]), `"sdp":"v=0"`) {
		t.Errorf("payload = %s, want the original description", generic["payload"])
	}
}

// TestEncodeRejectsInvalid verifies that Encode refuses messages that Decode
// on the other side would discard.
func TestEncodeRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		msg  *Message
	}{
		{"unknown type", &Message{Type: "bye", Payload: json.RawMessage(`{}`)}},
		{"empty payload", &Message{Type: TypeAnswer}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.msg); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}
