package events

import "github.com/koscakluka/ema-interview/core/phases"

const (
	KindPhaseChanged  Kind = "phase.changed"
	KindScoreRecorded Kind = "phase.score_recorded"
)

// PhaseChanged reports a phase transition. Forced is set when the exchange
// limit or the session timeout moved the interview on.
type PhaseChanged struct {
	Base
	From   phases.Phase
	To     phases.Phase
	Forced bool
}

func NewPhaseChanged(sessionID string, from, to phases.Phase, forced bool) PhaseChanged {
	return PhaseChanged{
		Base:   NewBase(KindPhaseChanged, sessionID),
		From:   from,
		To:     to,
		Forced: forced,
	}
}

type ScoreRecorded struct {
	Base
	Phase     phases.Phase
	Dimension phases.Dimension
	Value     int
}

func NewScoreRecorded(sessionID string, phase phases.Phase, dimension phases.Dimension, value int) ScoreRecorded {
	return ScoreRecorded{
		Base:      NewBase(KindScoreRecorded, sessionID),
		Phase:     phase,
		Dimension: dimension,
		Value:     value,
	}
}
