package session

// Role selects which side of the offer/answer exchange a session plays. The
// caller designates exactly one initiator per session pair; simultaneous
// offers are not arbitrated.
type Role int

const (
	Initiator Role = iota
	Responder
)

func (r Role) String() string {
	if r == Responder {
		return "responder"
	}
	return "initiator"
}

// State is a session lifecycle state.
//
//	Initiator: Idle → LinkOpen → OfferSent → AnswerApplied → Connected → Closed
//	Responder: Idle → LinkOpen → AnswerSent → Connected → Closed
//
// Failed is reachable from every non-terminal state.
type State int

const (
	Idle State = iota
	LinkOpen
	OfferSent
	AnswerApplied
	AnswerSent
	Connected
	Closed
	Failed
)

var stateNames = [...]string{
	Idle:          "idle",
	LinkOpen:      "link-open",
	OfferSent:     "offer-sent",
	AnswerApplied: "answer-applied",
	AnswerSent:    "answer-sent",
	Connected:     "connected",
	Closed:        "closed",
	Failed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}
