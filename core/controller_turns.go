package orchestration

import (
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/phases"
	"github.com/koscakluka/ema-interview/core/planner"
	"github.com/koscakluka/ema-interview/core/speechtotext"
	"github.com/koscakluka/ema-interview/core/turndetection"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	phaseReasonObjectivesMet = "objectives_met"
	phaseReasonMaxExchanges  = "max_exchanges"
)

func (c *controller) handleFragment(fragment speechtotext.Fragment) {
	if c.machine.Current() >= phases.Completed {
		return
	}

	at := fragment.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	opened := false
	switch fragment.Kind {
	case speechtotext.FragmentSpeechStarted:
		opened = c.detector.SpeechStarted(at)
		c.emit(events.NewCandidateSpeechStarted(c.id))
	case speechtotext.FragmentSpeechEnded:
		c.detector.SpeechEnded(at)
		c.emit(events.NewCandidateSpeechEnded(c.id))
	case speechtotext.FragmentTranscript:
		if strings.TrimSpace(fragment.Text) == "" {
			return
		}
		opened = c.detector.Transcript(fragment.Text, fragment.IsFinal, at)
		c.emit(events.NewCandidateTranscriptUpdated(c.id, fragment.Text, fragment.IsFinal))
	}

	if opened && c.turnState == TurnIdle {
		c.setTurnState(TurnCandidateSpeaking)
	}
}

func (c *controller) tick(now time.Time) {
	if c.machine.Current() >= phases.Completed {
		return
	}
	if turn, ok := c.detector.Tick(now); ok {
		c.endOfTurn(turn)
	}
}

// endOfTurn processes a closed candidate turn, or holds it while the
// interviewer is busy. Only one turn is ever held: a second one is merged
// into it.
func (c *controller) endOfTurn(turn turndetection.EndOfTurn) {
	c.emit(events.NewCandidateTurnEnded(c.id, turn.Text, turn.Start, turn.End, turn.NoResponse))

	switch c.turnState {
	case TurnIdle, TurnCandidateSpeaking:
		c.metrics.Turn("processed")
		c.processTurn(turn)
	default:
		if c.pending == nil {
			c.pending = &turn
			c.metrics.Turn("queued")
		} else {
			merged := mergeTurns(*c.pending, turn)
			c.pending = &merged
			c.metrics.Turn("merged")
		}
		logger.Debug("holding end of turn until idle",
			"session_id", c.id,
			"turn_state", c.turnState.String(),
		)
	}
}

func mergeTurns(held, next turndetection.EndOfTurn) turndetection.EndOfTurn {
	var parts []string
	for _, text := range []string{held.Text, next.Text} {
		if text != "" {
			parts = append(parts, text)
		}
	}

	merged := turndetection.EndOfTurn{
		Text:       strings.Join(parts, " "),
		Start:      held.Start,
		End:        next.End,
		NoResponse: held.NoResponse && next.NoResponse,
		Forced:     held.Forced || next.Forced,
	}
	if next.Start.Before(merged.Start) {
		merged.Start = next.Start
	}
	if held.End.After(merged.End) {
		merged.End = held.End
	}
	return merged
}

func (c *controller) processTurn(turn turndetection.EndOfTurn) {
	c.detector.Disarm()
	c.turnEndedAt = time.Now()
	phase := c.machine.Current()

	noAnswer := false
	if turn.NoResponse {
		if c.retries < c.config.MaxNoResponseRetries {
			c.retries++
			c.metrics.NoResponse("retry")
			c.span.AddEvent("no response", trace.WithAttributes(attribute.Int("interview.retry", c.retries)))
			logger.Info("candidate did not respond, prompting again",
				"session_id", c.id,
				"phase", phase.String(),
				"retry", c.retries,
				"error", ErrDetectionTimeout,
			)
			c.setTurnState(TurnProcessing)
			c.say(c.bank.RetryLine(c.retries-1), speechOptions{retry: true})
			return
		}
		c.metrics.NoResponse("no_answer")
		noAnswer = true
	}
	c.retries = 0

	history := c.ledger.Utterances()
	utterance, err := c.appendUtterance(ledger.Utterance{
		Speaker:  ledger.SpeakerCandidate,
		Text:     turn.Text,
		Start:    turn.Start,
		End:      turn.End,
		Phase:    phase,
		NoAnswer: noAnswer,
	})
	if err != nil {
		c.abort(fmt.Errorf("%w: %w", ErrInternal, err))
		return
	}
	c.setTurnState(TurnProcessing)

	c.seq++
	seq := c.seq
	ctx, span := tracer.Start(c.ctx, "process turn", trace.WithAttributes(
		attribute.String("interview.session_id", c.id),
		attribute.String("interview.phase", phase.String()),
		attribute.Bool("interview.no_answer", noAnswer),
	))
	c.turnSpan = span

	request := planner.Request{
		Phase:        phase,
		Candidate:    c.candidate,
		Position:     c.position,
		Exchange:     c.machine.Exchanges(),
		MaxExchanges: c.config.MaxExchanges[phase],
		History:      history,
		Latest:       turn.Text,
		NoAnswer:     noAnswer,
	}
	c.goSafe(func() {
		started := time.Now()
		decision := c.planner.Plan(ctx, request)
		c.post(plannedEvent{
			seq:         seq,
			utteranceID: utterance.ID,
			decision:    decision,
			duration:    time.Since(started),
		})
	})
}

func (c *controller) handlePlanned(event plannedEvent) {
	if event.seq != c.seq || c.turnState != TurnProcessing {
		logger.Debug("dropping stale planner decision", "session_id", c.id, "seq", event.seq)
		return
	}

	span := c.turnSpan
	c.turnSpan = nil
	defer span.End()

	decision := event.decision
	phase := c.machine.Current()
	c.metrics.PlannerDecision(phase.String(), decision.Fallback, event.duration)

	// A fallback exchange is neither scored nor counted towards the phase.
	var change *phases.Change
	if decision.Fallback {
		err := fmt.Errorf("%w: %w", ErrPlannerFailure, decision.Err)
		_ = recordError(span, err)
		logger.Warn("using fallback interviewer line",
			"session_id", c.id,
			"phase", phase.String(),
			"error", err,
		)
	} else {
		var err error
		if change, err = c.machine.Advance(decision.Signal()); err != nil {
			logger.Warn("failed to advance phase", "session_id", c.id, "phase", phase.String(), "error", err)
		}
	}

	lines := []string{decision.Line}
	if change != nil {
		lines = append(lines, c.phaseLines(change.To)...)
	}
	text := strings.Join(lines, " ")

	now := time.Now()
	if _, err := c.appendUtterance(ledger.Utterance{
		Speaker:  ledger.SpeakerInterviewer,
		Text:     text,
		Start:    now,
		End:      now,
		Phase:    phase,
		Fallback: decision.Fallback,
	}); err != nil {
		c.abort(fmt.Errorf("%w: %w", ErrInternal, err))
		return
	}

	if decision.Score != nil {
		score, err := c.ledger.AppendScore(ledger.ScoreEvent{
			UtteranceID: event.utteranceID,
			Phase:       phase,
			Dimension:   decision.Score.Dimension,
			Value:       decision.Score.Value,
			Rationale:   decision.Score.Rationale,
		})
		if err != nil {
			logger.Warn("failed to record score", "session_id", c.id, "error", err)
		} else {
			span.SetAttributes(attribute.Int("interview.score", score.Value))
			c.emit(events.NewScoreRecorded(c.id, score.Phase, score.Dimension, score.Value))
		}
	}

	options := speechOptions{fallback: decision.Fallback}
	if change != nil {
		reason := phaseReasonObjectivesMet
		if change.Forced {
			reason = phaseReasonMaxExchanges
		}
		c.enterPhase(*change, reason)
		if change.To == phases.Completed {
			options.then = func() { c.finish(StatusCompleted, nil) }
		}
	}

	c.emit(events.NewInterviewerLinePlanned(c.id, text, decision.Fallback, false))
	c.speak(text, options)
}

// phaseLines are spoken after the planner's line when the interview enters
// a new phase.
func (c *controller) phaseLines(to phases.Phase) []string {
	if to == phases.Completed {
		return []string{c.bank.ClosingLine()}
	}

	var lines []string
	if transition := c.bank.TransitionLine(to); transition != "" {
		lines = append(lines, transition)
	}
	return append(lines, c.bank.FallbackLine(to, c.position, 0))
}

func (c *controller) enterPhase(change phases.Change, reason string) {
	if err := c.ledger.AppendPhaseChange(ledger.PhaseChange{
		From:   change.From,
		To:     change.To,
		Forced: change.Forced,
		Reason: reason,
	}); err != nil {
		logger.Error("failed to record phase change", "session_id", c.id, "error", err)
	}

	c.metrics.PhaseTransition(change.To.String(), change.Forced)
	c.emit(events.NewPhaseChanged(c.id, change.From, change.To, change.Forced))
	c.span.AddEvent("phase changed", trace.WithAttributes(
		attribute.String("interview.phase.from", change.From.String()),
		attribute.String("interview.phase.to", change.To.String()),
		attribute.Bool("interview.phase.forced", change.Forced),
	))
	logger.Info("interview phase changed",
		"session_id", c.id,
		"from", change.From.String(),
		"to", change.To.String(),
		"forced", change.Forced,
		"reason", reason,
	)

	if change.To == phases.Closing {
		c.scoresFinal = true
		scores := c.ledger.CumulativeScores()
		logger.Info("scores finalized",
			"session_id", c.id,
			"technical", scores[phases.DimensionTechnical],
			"behavioral", scores[phases.DimensionBehavioral],
		)
	}
}
