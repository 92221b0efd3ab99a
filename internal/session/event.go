package session

import "github.com/1ureka/dcbridge/internal/transport"

// event is one of the external occurrences that drive the session. Events are
// consumed by a single goroutine, one at a time.
type event interface{ isEvent() }

type (
	linkOpened             struct{}
	linkMessage            struct{ data []byte }
	linkClosed             struct{ err error }
	candidateDiscovered    struct{ candidate transport.Candidate }
	channelOpened          struct{ ch transport.Channel }
	channelClosed          struct{}
	connectionStateChanged struct{ state string }
)

func (linkOpened) isEvent()             {}
func (linkMessage) isEvent()            {}
func (linkClosed) isEvent()             {}
func (candidateDiscovered) isEvent()    {}
func (channelOpened) isEvent()          {}
func (channelClosed) isEvent()          {}
func (connectionStateChanged) isEvent() {}
