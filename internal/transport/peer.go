package transport

import (
	"github.com/pion/webrtc/v4"
)

// newPeerConnection creates a PeerConnection using the given STUN servers.
// An empty list gathers host candidates only, which is enough on one
// machine or one LAN.
func newPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: stunServers},
		}
	}
	return webrtc.NewPeerConnection(config)
}

// newDataChannel creates the session's channel on the initiating side. It is
// unordered with zero retransmits: a lost or late message is never resent
// and never blocks the ones behind it.
func newDataChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	ordered := false
	maxRetransmits := uint16(0)

	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &maxRetransmits,
	})
}
