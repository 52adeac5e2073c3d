package events

import "time"

const (
	KindCandidateSpeechStarted     Kind = "candidate_input.speech_started"
	KindCandidateSpeechEnded       Kind = "candidate_input.speech_ended"
	KindCandidateTranscriptUpdated Kind = "candidate_input.transcript_updated"
	KindCandidateTurnEnded         Kind = "candidate_input.turn_ended"
)

type CandidateSpeechStarted struct{ Base }

func NewCandidateSpeechStarted(sessionID string) CandidateSpeechStarted {
	return CandidateSpeechStarted{Base: NewBase(KindCandidateSpeechStarted, sessionID)}
}

type CandidateSpeechEnded struct{ Base }

func NewCandidateSpeechEnded(sessionID string) CandidateSpeechEnded {
	return CandidateSpeechEnded{Base: NewBase(KindCandidateSpeechEnded, sessionID)}
}

type CandidateTranscriptUpdated struct {
	Base
	Text    string
	IsFinal bool
}

func NewCandidateTranscriptUpdated(sessionID, text string, isFinal bool) CandidateTranscriptUpdated {
	return CandidateTranscriptUpdated{
		Base:    NewBase(KindCandidateTranscriptUpdated, sessionID),
		Text:    text,
		IsFinal: isFinal,
	}
}

// CandidateTurnEnded carries a closed candidate turn.
type CandidateTurnEnded struct {
	Base
	Text       string
	Start      time.Time
	End        time.Time
	NoResponse bool
}

func NewCandidateTurnEnded(sessionID, text string, start, end time.Time, noResponse bool) CandidateTurnEnded {
	return CandidateTurnEnded{
		Base:       NewBase(KindCandidateTurnEnded, sessionID),
		Text:       text,
		Start:      start,
		End:        end,
		NoResponse: noResponse,
	}
}
