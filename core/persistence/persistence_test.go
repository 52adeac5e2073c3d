package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/phases"
)

func buildLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	l := ledger.New()
	mustUtterance := func(u ledger.Utterance) ledger.Utterance {
		stored, err := l.AppendUtterance(u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return stored
	}

	mustUtterance(ledger.Utterance{Speaker: ledger.SpeakerInterviewer, Text: "Welcome", Phase: phases.Introduction})
	mustUtterance(ledger.Utterance{Speaker: ledger.SpeakerCandidate, Text: "Hi", Phase: phases.Introduction})
	if err := l.AppendPhaseChange(ledger.PhaseChange{From: phases.Introduction, To: phases.Technical}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustUtterance(ledger.Utterance{Speaker: ledger.SpeakerInterviewer, Text: "Explain REST", Phase: phases.Technical})
	answer := mustUtterance(ledger.Utterance{Speaker: ledger.SpeakerCandidate, Text: "Resources", Phase: phases.Technical})
	mustUtterance(ledger.Utterance{Speaker: ledger.SpeakerCandidate, Phase: phases.Technical, NoAnswer: true})

	for _, value := range []int{4, 3} {
		if _, err := l.AppendScore(ledger.ScoreEvent{
			UtteranceID: answer.ID,
			Phase:       phases.Technical,
			Dimension:   phases.DimensionTechnical,
			Value:       value,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return l
}

func TestSummarize(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	summary := Summarize(SessionInfo{
		SessionID: "s-1",
		Candidate: "Ada",
		Position:  "software engineer",
		StartedAt: started,
		EndedAt:   started.Add(10 * time.Minute),
		Status:    "aborted",
		EndReason: "transport drop",
	}, buildLedger(t))

	if summary.FinalPhase != phases.Technical {
		t.Fatalf("expected final phase technical, got %s", summary.FinalPhase)
	}
	if summary.Scores[phases.DimensionTechnical] != 3.5 {
		t.Fatalf("expected technical score 3.5, got %v", summary.Scores)
	}
	if _, ok := summary.Scores[phases.DimensionBehavioral]; ok {
		t.Fatalf("expected no behavioral score, got %v", summary.Scores)
	}
	if summary.CompletionRate != 25 {
		t.Fatalf("expected completion rate 25, got %v", summary.CompletionRate)
	}
	if len(summary.PhaseHistory) != 1 || summary.PhaseHistory[0].To != phases.Technical {
		t.Fatalf("expected one phase change, got %+v", summary.PhaseHistory)
	}
	if summary.Utterances != 5 {
		t.Fatalf("expected 5 utterances, got %d", summary.Utterances)
	}

	technical := summary.Phases[1]
	if technical.Phase != phases.Technical || technical.Questions != 1 || technical.Responses != 1 {
		t.Fatalf("expected 1 question and 1 response in technical, got %+v", technical)
	}
	if technical.AverageScore != 3.5 || !technical.Entered {
		t.Fatalf("unexpected technical breakdown %+v", technical)
	}
	if summary.Phases[2].Entered {
		t.Fatalf("expected behavioral not to be entered")
	}
}

func TestCompletionRate(t *testing.T) {
	if got := CompletionRate(phases.Introduction); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := CompletionRate(phases.Closing); got != 75 {
		t.Fatalf("expected 75, got %v", got)
	}
	if got := CompletionRate(phases.Completed); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.AppendUtterance(ctx, "", ledger.Utterance{}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := store.LoadSummary(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, text := range []string{"first", "second"} {
		if err := store.AppendUtterance(ctx, "s-1", ledger.Utterance{Speaker: ledger.SpeakerCandidate, Text: text}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	utterances, err := store.Utterances(ctx, "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(utterances) != 2 || utterances[0].Text != "first" || utterances[1].Text != "second" {
		t.Fatalf("expected utterances in append order, got %+v", utterances)
	}

	if err := store.FinalizeSession(ctx, "s-1", Summary{SessionID: "s-1", Status: "completed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	summary, err := store.LoadSummary(ctx, "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Status != "completed" {
		t.Fatalf("expected completed summary, got %+v", summary)
	}
}
