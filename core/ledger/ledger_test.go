package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-interview/core/phases"
)

func TestLedgerOrdersEntriesAndKeepsRecordTimeMonotonic(t *testing.T) {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	l := New(WithClock(func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}))

	for _, text := range []string{"hello", "hi there", "tell me about yourself"} {
		if _, err := l.AppendUtterance(Utterance{Speaker: SpeakerCandidate, Text: text}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, entry.Seq)
		}
		if i > 0 && entry.RecordedAt.Before(entries[i-1].RecordedAt) {
			t.Fatalf("entry %d recorded before entry %d", i, i-1)
		}
	}
	if entries[1].Utterance.Text != "hi there" {
		t.Fatalf("expected completion order to be preserved, got %q", entries[1].Utterance.Text)
	}
}

func TestLedgerEntriesAreCopies(t *testing.T) {
	l := New()
	utterance, err := l.AppendUtterance(Utterance{Speaker: SpeakerCandidate, Text: "original"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AppendPhaseChange(PhaseChange{From: phases.Introduction, To: phases.Technical}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.AppendScore(ScoreEvent{UtteranceID: utterance.ID, Phase: phases.Technical, Value: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := l.Entries()
	entries[0].Seq = 99
	entries[0].Utterance.Text = "rewritten"
	entries[1].PhaseChange.To = phases.Closing
	entries[2].Score.Value = 5

	got := l.Entries()
	if got[0].Seq != 1 {
		t.Fatalf("expected sequence 1, got %d", got[0].Seq)
	}
	if text := l.Utterances()[0].Text; text != "original" {
		t.Fatalf("expected utterance text %q, got %q", "original", text)
	}
	if got[1].PhaseChange.To != phases.Technical {
		t.Fatalf("expected phase change to %s, got %s", phases.Technical, got[1].PhaseChange.To)
	}
	if value := l.Scores()[0].Value; value != 3 {
		t.Fatalf("expected score 3, got %d", value)
	}
}

func TestAppendScoreValidation(t *testing.T) {
	l := New()
	utterance, err := l.AppendUtterance(Utterance{Speaker: SpeakerCandidate, Text: "answer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := l.AppendScore(ScoreEvent{UtteranceID: utterance.ID, Phase: phases.Introduction, Value: 6}); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	if _, err := l.AppendScore(ScoreEvent{UtteranceID: utterance.ID, Phase: phases.Technical, Value: 3}); !errors.Is(err, ErrPhaseNotEntered) {
		t.Fatalf("expected ErrPhaseNotEntered, got %v", err)
	}
	if _, err := l.AppendScore(ScoreEvent{UtteranceID: "missing", Phase: phases.Introduction, Value: 3}); !errors.Is(err, ErrUnknownUtterance) {
		t.Fatalf("expected ErrUnknownUtterance, got %v", err)
	}

	if err := l.AppendPhaseChange(PhaseChange{From: phases.Introduction, To: phases.Technical}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	score, err := l.AppendScore(ScoreEvent{UtteranceID: utterance.ID, Phase: phases.Technical, Dimension: phases.DimensionTechnical, Value: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	annotation, ok := l.Annotation(utterance.ID)
	if !ok || annotation.ID != score.ID {
		t.Fatalf("expected utterance annotation %s, got %+v", score.ID, annotation)
	}
}

func TestAppendPhaseChangeRejectsRegression(t *testing.T) {
	l := New()
	if err := l.AppendPhaseChange(PhaseChange{From: phases.Introduction, To: phases.Behavioral}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AppendPhaseChange(PhaseChange{From: phases.Behavioral, To: phases.Technical}); !errors.Is(err, ErrPhaseRegression) {
		t.Fatalf("expected ErrPhaseRegression, got %v", err)
	}
	if err := l.AppendPhaseChange(PhaseChange{From: phases.Introduction, To: phases.Closing}); !errors.Is(err, ErrPhaseRegression) {
		t.Fatalf("expected stale from-phase to be rejected, got %v", err)
	}
	if l.Phase() != phases.Behavioral {
		t.Fatalf("expected ledger phase %s, got %s", phases.Behavioral, l.Phase())
	}
}

func TestCumulativeScoresRoundToOneDecimal(t *testing.T) {
	scores := Cumulative([]ScoreEvent{
		{Dimension: phases.DimensionTechnical, Value: 4},
		{Dimension: phases.DimensionTechnical, Value: 3},
		{Dimension: phases.DimensionTechnical, Value: 3},
		{Dimension: phases.DimensionBehavioral, Value: 5},
	})

	if got := scores[phases.DimensionTechnical]; got != 3.3 {
		t.Fatalf("expected technical 3.3, got %v", got)
	}
	if got := scores[phases.DimensionBehavioral]; got != 5 {
		t.Fatalf("expected behavioral 5, got %v", got)
	}
	if _, ok := Cumulative(nil)[phases.DimensionTechnical]; ok {
		t.Fatalf("expected no technical score without events")
	}
}

func TestMarkAbortedKeepsEntries(t *testing.T) {
	l := New()
	if _, err := l.AppendUtterance(Utterance{Speaker: SpeakerCandidate, Text: "partial"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.MarkAborted()

	if !l.Aborted() {
		t.Fatalf("expected ledger to be marked aborted")
	}
	if l.Len() != 1 {
		t.Fatalf("expected partial ledger to be retained, got %d entries", l.Len())
	}
}
