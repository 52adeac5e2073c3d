// Package persistence defines how interview records leave the orchestrator
// and ships an in-memory store.
package persistence

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/phases"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrInvalidID = errors.New("invalid session id")
)

// Store receives ledger appends while a session runs and the summary once it
// ends. Callers treat failures as non-fatal.
type Store interface {
	AppendUtterance(ctx context.Context, sessionID string, utterance ledger.Utterance) error
	FinalizeSession(ctx context.Context, sessionID string, summary Summary) error
}

type Summary struct {
	SessionID string    `json:"session_id"`
	Candidate string    `json:"candidate"`
	Position  string    `json:"position"`
	RoomRef   string    `json:"room_ref,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Status    string    `json:"status"`
	EndReason string    `json:"end_reason,omitempty"`

	Scores         ledger.Scores        `json:"scores"`
	FinalPhase     phases.Phase         `json:"final_phase"`
	PhaseHistory   []ledger.PhaseChange `json:"phase_history,omitempty"`
	Phases         []PhaseBreakdown     `json:"phases"`
	CompletionRate float64              `json:"completion_rate"`
	Utterances     int                  `json:"utterances"`
}

type PhaseBreakdown struct {
	Phase        phases.Phase `json:"phase"`
	Questions    int          `json:"questions"`
	Responses    int          `json:"responses"`
	AverageScore float64      `json:"average_score"`
	Entered      bool         `json:"entered"`
}

// SessionInfo is the session metadata that the ledger does not carry.
type SessionInfo struct {
	SessionID string
	Candidate string
	Position  string
	RoomRef   string
	StartedAt time.Time
	EndedAt   time.Time
	Status    string
	EndReason string
}

// Summarize builds the final record of a session from its ledger.
func Summarize(info SessionInfo, l *ledger.Ledger) Summary {
	summary := Summary{
		SessionID:  info.SessionID,
		Candidate:  info.Candidate,
		Position:   info.Position,
		RoomRef:    info.RoomRef,
		StartedAt:  info.StartedAt,
		EndedAt:    info.EndedAt,
		Status:     info.Status,
		EndReason:  info.EndReason,
		Scores:     l.CumulativeScores(),
		FinalPhase: l.Phase(),
	}

	byPhase := map[phases.Phase]*PhaseBreakdown{}
	for _, phase := range interviewPhases {
		breakdown := PhaseBreakdown{Phase: phase, Entered: phase <= summary.FinalPhase}
		summary.Phases = append(summary.Phases, breakdown)
	}
	for i := range summary.Phases {
		byPhase[summary.Phases[i].Phase] = &summary.Phases[i]
	}

	for _, entry := range l.Entries() {
		switch {
		case entry.Utterance != nil:
			summary.Utterances++
			breakdown, ok := byPhase[entry.Utterance.Phase]
			if !ok {
				continue
			}
			if entry.Utterance.Speaker == ledger.SpeakerInterviewer {
				breakdown.Questions++
			} else if !entry.Utterance.NoAnswer {
				breakdown.Responses++
			}
		case entry.PhaseChange != nil:
			summary.PhaseHistory = append(summary.PhaseHistory, *entry.PhaseChange)
		}
	}

	sums := map[phases.Phase]int{}
	counts := map[phases.Phase]int{}
	for _, score := range l.Scores() {
		sums[score.Phase] += score.Value
		counts[score.Phase]++
	}
	for phase, count := range counts {
		if breakdown, ok := byPhase[phase]; ok {
			breakdown.AverageScore = math.Round(float64(sums[phase])/float64(count)*10) / 10
		}
	}

	summary.CompletionRate = CompletionRate(summary.FinalPhase)
	return summary
}

var interviewPhases = []phases.Phase{
	phases.Introduction,
	phases.Technical,
	phases.Behavioral,
	phases.Closing,
}

// CompletionRate is the share of interview phases left behind, in percent.
// A completed interview scores 100.
func CompletionRate(phase phases.Phase) float64 {
	if phase >= phases.Completed {
		return 100
	}
	return float64(phase-phases.Introduction) / float64(len(interviewPhases)) * 100
}
