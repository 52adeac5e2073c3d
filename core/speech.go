package orchestration

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const fallbackAudioChunkSize = 4096

type speechOptions struct {
	retry    bool
	fallback bool
	// then runs instead of returning to idle once the line has been played.
	then func()
}

// activeSpeech is the interviewer line currently being played. It is
// identified by the playback mark placed after its last frame.
type activeSpeech struct {
	mark    string
	options speechOptions
	timer   *time.Timer

	started        bool
	fallbackPlayed bool
}

func (s *activeSpeech) stop() {
	s.timer.Stop()
}

// say records an interviewer line in the ledger and speaks it.
func (c *controller) say(text string, options speechOptions) {
	now := time.Now()
	if _, err := c.appendUtterance(ledger.Utterance{
		Speaker:  ledger.SpeakerInterviewer,
		Text:     text,
		Start:    now,
		End:      now,
		Phase:    c.machine.Current(),
		Retry:    options.retry,
		Fallback: options.fallback,
	}); err != nil {
		c.abort(fmt.Errorf("%w: %w", ErrInternal, err))
		return
	}
	c.emit(events.NewInterviewerLinePlanned(c.id, text, options.fallback, options.retry))
	c.speak(text, options)
}

func (c *controller) speak(text string, options speechOptions) {
	mark := uuid.NewString()
	speech := &activeSpeech{mark: mark, options: options}
	speech.timer = time.AfterFunc(c.config.MaxSpeakingDuration, func() {
		c.post(speakingTimeoutEvent{mark: mark})
	})
	c.speech = speech
	c.setTurnState(TurnInterviewerSpeaking)

	c.goSafe(func() { c.synthesize(mark, text) })
}

// synthesize streams a line to the transport and places its mark. It runs
// on its own goroutine and reports back through the queue.
func (c *controller) synthesize(mark, text string) {
	ctx, span := tracer.Start(c.ctx, "synthesize speech", trace.WithAttributes(
		attribute.String("interview.session_id", c.id),
		attribute.String("interview.mark", mark),
	))
	defer span.End()

	frames := 0
	for frame, err := range c.services.TextToSpeech.Synthesize(ctx, text, c.config.Voice) {
		if err != nil {
			err = recordError(span, fmt.Errorf("%w: %w", ErrSynthesisFailure, err))
			if frames > 0 {
				// Let the audio already sent finish playing.
				_ = c.services.Transport.Mark(ctx, c.id, mark)
			}
			c.post(speechFailedEvent{mark: mark, err: err, partial: frames > 0})
			return
		}
		if len(frame) == 0 {
			continue
		}

		if err := c.services.Transport.SendAudioFrame(ctx, c.id, frame); err != nil {
			err = recordError(span, fmt.Errorf("%w: failed to send audio frame: %w", ErrSynthesisFailure, err))
			c.post(speechFailedEvent{mark: mark, err: err, partial: frames > 0})
			return
		}
		if frames == 0 {
			c.post(speechStartedEvent{mark: mark})
		}
		frames++
	}

	if frames == 0 {
		err := recordError(span, fmt.Errorf("%w: no audio produced", ErrSynthesisFailure))
		c.post(speechFailedEvent{mark: mark, err: err})
		return
	}
	span.SetAttributes(attribute.Int("interview.frames", frames))

	if err := c.services.Transport.Mark(ctx, c.id, mark); err != nil {
		err = recordError(span, fmt.Errorf("%w: failed to place playback mark: %w", ErrSynthesisFailure, err))
		c.post(speechFailedEvent{mark: mark, err: err, partial: true})
	}
}

func (c *controller) playFallbackAudio(mark string) {
	for start := 0; start < len(c.fallbackAudio); start += fallbackAudioChunkSize {
		end := min(start+fallbackAudioChunkSize, len(c.fallbackAudio))
		if err := c.services.Transport.SendAudioFrame(c.ctx, c.id, c.fallbackAudio[start:end]); err != nil {
			c.post(speechFailedEvent{mark: mark, err: fmt.Errorf("failed to send fallback audio: %w", err)})
			return
		}
	}
	if err := c.services.Transport.Mark(c.ctx, c.id, mark); err != nil {
		c.post(speechFailedEvent{mark: mark, err: fmt.Errorf("failed to place fallback audio mark: %w", err)})
	}
}

func (c *controller) handleSpeechStarted(mark string) {
	if c.speech == nil || c.speech.mark != mark || c.speech.started {
		return
	}
	c.speech.started = true
	if !c.turnEndedAt.IsZero() {
		c.metrics.ReplyLatency(time.Since(c.turnEndedAt))
		c.turnEndedAt = time.Time{}
	}
	c.emit(events.NewInterviewerSpeechStarted(c.id, mark))
}

func (c *controller) handleSpeechFailed(mark string, err error, partial bool) {
	if c.speech == nil || c.speech.mark != mark {
		return
	}

	c.emit(events.NewInterviewerSpeechFailed(c.id, mark, err))
	if partial {
		// The mark follows the audio that did play, wait for it.
		logger.Warn("interviewer line cut short", "session_id", c.id, "error", err)
		return
	}

	c.metrics.SynthesisFailure()
	if len(c.fallbackAudio) > 0 && !c.speech.fallbackPlayed {
		logger.Warn("speech synthesis failed, playing fallback audio", "session_id", c.id, "error", err)
		c.speech.fallbackPlayed = true
		c.goSafe(func() { c.playFallbackAudio(mark) })
		return
	}

	logger.Warn("speech synthesis failed, skipping line", "session_id", c.id, "error", err)
	c.completeSpeech(false)
}

func (c *controller) handlePlaybackComplete(mark string, timedOut bool) {
	if c.speech == nil || c.speech.mark != mark {
		return
	}

	if timedOut {
		logger.Warn("interviewer line exceeded the speaking limit",
			"session_id", c.id,
			"limit", c.config.MaxSpeakingDuration,
		)
		if transport, ok := c.services.Transport.(TransportWithClear); ok {
			c.goSafe(func() {
				if err := transport.ClearPlayback(c.ctx, c.id); err != nil {
					logger.Warn("failed to clear playback", "session_id", c.id, "error", err)
				}
			})
		}
	}
	c.completeSpeech(timedOut)
}

// completeSpeech ends the current line and hands the floor back to the
// candidate, starting with any turn held while the interviewer was busy.
func (c *controller) completeSpeech(timedOut bool) {
	speech := c.speech
	c.speech = nil
	speech.stop()
	c.emit(events.NewInterviewerPlaybackCompleted(c.id, speech.mark, timedOut))

	if speech.options.then != nil {
		speech.options.then()
		if c.status != StatusActive {
			return
		}
	}

	c.setTurnState(TurnIdle)
	if c.pending != nil {
		turn := *c.pending
		c.pending = nil
		if !turn.NoResponse {
			c.processTurn(turn)
			return
		}
	}

	if c.detector.Active() {
		c.setTurnState(TurnCandidateSpeaking)
		return
	}
	c.detector.Arm(time.Now())
}
