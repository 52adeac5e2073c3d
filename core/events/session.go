package events

const (
	KindSessionStarted Kind = "session.started"
	KindSessionEnded   Kind = "session.ended"
)

type SessionStarted struct {
	Base
	Candidate string
	Position  string
}

func NewSessionStarted(sessionID, candidate, position string) SessionStarted {
	return SessionStarted{
		Base:      NewBase(KindSessionStarted, sessionID),
		Candidate: candidate,
		Position:  position,
	}
}

// SessionEnded carries the terminal status. Err is set for aborted sessions.
type SessionEnded struct {
	Base
	Status string
	Reason string
	Err    error
}

func NewSessionEnded(sessionID, status, reason string, err error) SessionEnded {
	return SessionEnded{
		Base:   NewBase(KindSessionEnded, sessionID),
		Status: status,
		Reason: reason,
		Err:    err,
	}
}
