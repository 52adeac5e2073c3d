package orchestration

import (
	"time"

	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/phases"
)

// TurnState says who holds the floor in a session.
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnCandidateSpeaking
	TurnProcessing
	TurnInterviewerSpeaking
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnCandidateSpeaking:
		return "candidate_speaking"
	case TurnProcessing:
		return "processing"
	case TurnInterviewerSpeaking:
		return "interviewer_speaking"
	default:
		return "unknown"
	}
}

func (s TurnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether the session has ended.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// State is a point-in-time snapshot of a session.
type State struct {
	SessionID string    `json:"session_id"`
	Candidate string    `json:"candidate"`
	Position  string    `json:"position"`
	RoomRef   string    `json:"room_ref,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	Status    Status       `json:"status"`
	Phase     phases.Phase `json:"phase"`
	TurnState TurnState    `json:"turn_state"`
	Exchanges int          `json:"exchanges"`
	// PendingTurn is set while a candidate turn waits for the controller to
	// return to idle.
	PendingTurn bool `json:"pending_turn"`

	// Scores holds the cumulative scores so far. ScoresFinal is set once the
	// interview entered Closing.
	Scores      ledger.Scores `json:"scores"`
	ScoresFinal bool          `json:"scores_final"`

	EndReason string `json:"end_reason,omitempty"`
	Err       error  `json:"-"`
}
