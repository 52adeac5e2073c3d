package events

const KindTurnStateChanged Kind = "turn_state.changed"

type TurnStateChanged struct {
	Base
	From string
	To   string
}

func NewTurnStateChanged(sessionID, from, to string) TurnStateChanged {
	return TurnStateChanged{Base: NewBase(KindTurnStateChanged, sessionID), From: from, To: to}
}
