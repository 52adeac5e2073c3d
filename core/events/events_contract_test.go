package events

import (
	"testing"
	"time"

	"github.com/koscakluka/ema-interview/core/phases"
)

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	now := time.Now()
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "candidate speech started", event: NewCandidateSpeechStarted("s"), expected: KindCandidateSpeechStarted},
		{name: "candidate speech ended", event: NewCandidateSpeechEnded("s"), expected: KindCandidateSpeechEnded},
		{name: "candidate transcript updated", event: NewCandidateTranscriptUpdated("s", "text", true), expected: KindCandidateTranscriptUpdated},
		{name: "candidate turn ended", event: NewCandidateTurnEnded("s", "text", now, now, false), expected: KindCandidateTurnEnded},
		{name: "interviewer line planned", event: NewInterviewerLinePlanned("s", "line", false, false), expected: KindInterviewerLinePlanned},
		{name: "interviewer speech started", event: NewInterviewerSpeechStarted("s", "mark"), expected: KindInterviewerSpeechStarted},
		{name: "interviewer speech failed", event: NewInterviewerSpeechFailed("s", "mark", nil), expected: KindInterviewerSpeechFailed},
		{name: "interviewer playback completed", event: NewInterviewerPlaybackCompleted("s", "mark", false), expected: KindInterviewerPlaybackCompleted},
		{name: "turn state changed", event: NewTurnStateChanged("s", "idle", "processing"), expected: KindTurnStateChanged},
		{name: "phase changed", event: NewPhaseChanged("s", phases.Introduction, phases.Technical, false), expected: KindPhaseChanged},
		{name: "score recorded", event: NewScoreRecorded("s", phases.Technical, phases.DimensionTechnical, 4), expected: KindScoreRecorded},
		{name: "session started", event: NewSessionStarted("s", "Ada", "designer"), expected: KindSessionStarted},
		{name: "session ended", event: NewSessionEnded("s", "completed", "", nil), expected: KindSessionEnded},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if got := testCase.event.SessionID(); got != "s" {
				t.Fatalf("expected session id %q, got %q", "s", got)
			}
		})
	}
}

func TestSpeechStartedAndEndedKindsAreDistinct(t *testing.T) {
	started := NewCandidateSpeechStarted("s")
	ended := NewCandidateSpeechEnded("s")

	if started.Kind() == ended.Kind() {
		t.Fatalf("expected speech started and speech ended kinds to differ, both were %q", started.Kind())
	}
}
