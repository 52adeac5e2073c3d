package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/metrics"
	"github.com/koscakluka/ema-interview/core/persistence"
	"github.com/koscakluka/ema-interview/core/phases"
	"github.com/koscakluka/ema-interview/core/planner"
	"github.com/koscakluka/ema-interview/core/speechtotext"
	"github.com/koscakluka/ema-interview/core/turndetection"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Events posted to the controller's queue by its helper goroutines.
type (
	fragmentEvent struct {
		fragment speechtotext.Fragment
	}
	inputClosedEvent struct {
		err error
	}
	plannedEvent struct {
		seq         uint64
		utteranceID string
		decision    planner.Decision
		duration    time.Duration
	}
	speechStartedEvent struct {
		mark string
	}
	speechFailedEvent struct {
		mark    string
		err     error
		partial bool
	}
	playbackEvent struct {
		mark string
	}
	speakingTimeoutEvent struct {
		mark string
	}
	abortEvent struct {
		err error
	}
)

type sessionInfo struct {
	id        string
	candidate string
	position  string
	roomRef   string
	startedAt time.Time
}

// controller runs one interview session. Everything below the queue is owned
// by the run goroutine; other goroutines only post events and read the
// published state.
type controller struct {
	sessionInfo

	config        Config
	services      *Lease
	planner       *planner.Planner
	bank          *planner.Bank
	metrics       *metrics.Metrics
	onEvent       func(events.Event)
	fallbackAudio []byte

	ctx     context.Context
	cancel  context.CancelCauseFunc
	span    trace.Span
	queue   chan any
	done    chan struct{}
	state   atomic.Pointer[State]
	started atomic.Bool

	detector  *turndetection.Detector
	machine   *phases.Machine
	ledger    *ledger.Ledger
	persister *persister

	turnState   TurnState
	status      Status
	pending     *turndetection.EndOfTurn
	retries     int
	seq         uint64
	turnSpan    trace.Span
	turnEndedAt time.Time
	speech      *activeSpeech
	scoresFinal bool
	endedAt     time.Time
	endReason   string
	endErr      error
}

func newController(ctx context.Context, info sessionInfo, m *Manager, lease *Lease) (*controller, error) {
	detector, err := turndetection.New(m.config.TurnDetection)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn detector: %w", err)
	}

	ctx, span := tracer.Start(ctx, "interview session", trace.WithAttributes(
		attribute.String("interview.session_id", info.id),
		attribute.String("interview.position", info.position),
	))
	ctx, cancel := context.WithCancelCause(ctx)

	c := &controller{
		sessionInfo:   info,
		config:        m.config,
		services:      lease,
		bank:          m.bank,
		metrics:       m.metrics,
		onEvent:       m.onEvent,
		fallbackAudio: m.fallbackAudio,
		ctx:           ctx,
		cancel:        cancel,
		span:          span,
		queue:         make(chan any, m.config.EventQueueSize),
		done:          make(chan struct{}),
		detector:      detector,
		machine:       phases.NewMachine(m.config.MaxExchanges),
		ledger:        ledger.New(),
		turnState:     TurnIdle,
		status:        StatusActive,
	}
	c.planner = planner.New(lease.LLM,
		planner.WithTimeout(m.config.PlannerTimeout),
		planner.WithBank(m.bank),
	)
	c.persister = newPersister(ctx, lease.Persistence, info.id, m.config.PersistenceQueueSize, m.config.PersistenceTimeout, m.metrics)
	c.publish()
	return c, nil
}

// start connects the session to its audio streams. On error nothing keeps
// running.
func (c *controller) start() error {
	frames, err := c.services.Transport.AudioFrames(c.ctx, c.id)
	if err != nil {
		return c.failStart(fmt.Errorf("failed to open candidate audio: %w", err))
	}
	marks, err := c.services.Transport.PlaybackComplete(c.ctx, c.id)
	if err != nil {
		return c.failStart(fmt.Errorf("failed to subscribe to playback: %w", err))
	}

	recognizerFrames := make(chan []byte, c.config.EventQueueSize)
	fragments, err := c.services.SpeechToText.StreamAudio(c.ctx, c.id, recognizerFrames)
	if err != nil {
		close(recognizerFrames)
		return c.failStart(fmt.Errorf("failed to start speech recognition: %w", err))
	}

	c.goSafe(func() { c.relayFrames(frames, recognizerFrames) })
	c.goSafe(func() { c.relayFragments(fragments) })
	c.goSafe(func() { c.relayMarks(marks) })
	c.started.Store(true)
	return nil
}

func (c *controller) failStart(err error) error {
	c.cancel(err)
	c.persister.discard()
	_ = recordError(c.span, err)
	c.span.End()
	return err
}

// relayFrames feeds candidate audio to the recognizer and reports when the
// transport goes away.
func (c *controller) relayFrames(frames <-chan []byte, out chan<- []byte) {
	defer close(out)
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				c.post(inputClosedEvent{err: fmt.Errorf("%w: audio stream closed", ErrTransportDrop)})
				return
			}
			select {
			case out <- frame:
			case <-c.ctx.Done():
				return
			}
		}
	}
}

func (c *controller) relayFragments(fragments <-chan speechtotext.Fragment) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case fragment, ok := <-fragments:
			if !ok {
				c.post(inputClosedEvent{err: fmt.Errorf("%w: speech recognition stream closed", ErrTransportDrop)})
				return
			}
			c.post(fragmentEvent{fragment: fragment})
		}
	}
}

func (c *controller) relayMarks(marks <-chan string) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case mark, ok := <-marks:
			if !ok {
				c.post(inputClosedEvent{err: fmt.Errorf("%w: playback stream closed", ErrTransportDrop)})
				return
			}
			c.post(playbackEvent{mark: mark})
		}
	}
}

// post hands an event to the loop. Events posted after the session ended
// are dropped.
func (c *controller) post(event any) {
	select {
	case c.queue <- event:
	case <-c.ctx.Done():
	}
}

// goSafe runs fn on its own goroutine and turns a panic into an abort.
func (c *controller) goSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.post(abortEvent{err: fmt.Errorf("%w: %v", ErrInternal, r)})
			}
		}()
		fn()
	}()
}

func (c *controller) run() {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session loop panicked", "session_id", c.id, "panic", r)
			c.abort(fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.config.SessionDuration)
	defer deadline.Stop()

	c.emit(events.NewSessionStarted(c.id, c.candidate, c.position))
	logger.Info("interview session started",
		"session_id", c.id,
		"candidate", c.candidate,
		"position", c.position,
	)
	c.say(c.bank.WelcomeLine(c.candidate, c.position), speechOptions{})
	c.publish()

	for c.status == StatusActive {
		select {
		case <-c.ctx.Done():
			c.abort(context.Cause(c.ctx))
		case event := <-c.queue:
			c.handle(event)
		case now := <-ticker.C:
			c.tick(now)
		case <-deadline.C:
			c.timeout()
		}
		c.publish()
	}
}

func (c *controller) handle(event any) {
	switch event := event.(type) {
	case fragmentEvent:
		c.handleFragment(event.fragment)
	case plannedEvent:
		c.handlePlanned(event)
	case speechStartedEvent:
		c.handleSpeechStarted(event.mark)
	case speechFailedEvent:
		c.handleSpeechFailed(event.mark, event.err, event.partial)
	case playbackEvent:
		c.handlePlaybackComplete(event.mark, false)
	case speakingTimeoutEvent:
		c.handlePlaybackComplete(event.mark, true)
	case inputClosedEvent:
		c.abort(event.err)
	case abortEvent:
		c.abort(event.err)
	default:
		logger.Warn("unknown session event", "session_id", c.id, "event", fmt.Sprintf("%T", event))
	}
}

// timeout closes the interview when the wall-clock limit expires: Closing
// and Completed are entered in the same step.
func (c *controller) timeout() {
	logger.Info("session time limit reached", "session_id", c.id, "phase", c.machine.Current().String())
	c.span.AddEvent("session timeout")

	if change, err := c.machine.ForceClose(); err == nil && change != nil {
		c.enterPhase(*change, EndReasonTimeout)
	}
	if change, err := c.machine.Complete(); err == nil && change != nil {
		c.enterPhase(*change, EndReasonTimeout)
	}
	c.finish(StatusCompleted, ErrSessionTimeout)
}

func (c *controller) abort(err error) {
	if c.status != StatusActive {
		return
	}
	if err == nil {
		err = ErrSessionAborted
	}
	logger.Warn("interview session aborted", "session_id", c.id, "error", err)
	c.ledger.MarkAborted()
	c.finish(StatusAborted, err)
}

// finish moves the session to a terminal status. Every in-flight call is
// cancelled and the summary is handed to persistence.
func (c *controller) finish(status Status, err error) {
	if c.status != StatusActive {
		return
	}
	c.status = status
	c.endedAt = time.Now()
	c.endReason = endReason(err)
	c.endErr = err

	if c.speech != nil {
		c.speech.stop()
		c.speech = nil
	}
	c.pending = nil
	if c.turnSpan != nil {
		c.turnSpan.End()
		c.turnSpan = nil
	}
	c.detector.Reset()

	cause := err
	if cause == nil {
		cause = errors.New("session completed")
	}
	c.cancel(cause)

	c.persister.finalize(persistence.Summarize(persistence.SessionInfo{
		SessionID: c.id,
		Candidate: c.candidate,
		Position:  c.position,
		RoomRef:   c.roomRef,
		StartedAt: c.startedAt,
		EndedAt:   c.endedAt,
		Status:    string(status),
		EndReason: c.endReason,
	}, c.ledger))

	c.metrics.SessionEnded(string(status), c.endReason)
	c.emit(events.NewSessionEnded(c.id, string(status), c.endReason, abortError(status, err)))
	c.span.SetAttributes(
		attribute.String("interview.status", string(status)),
		attribute.String("interview.end_reason", c.endReason),
	)
	if status == StatusAborted {
		_ = recordError(c.span, err)
	}
	c.span.End()

	logger.Info("interview session ended",
		"session_id", c.id,
		"status", string(status),
		"end_reason", c.endReason,
		"phase", c.machine.Current().String(),
	)
	c.publish()
}

func abortError(status Status, err error) error {
	if status == StatusAborted {
		return err
	}
	return nil
}

func (c *controller) setTurnState(state TurnState) {
	if c.turnState == state {
		return
	}
	from := c.turnState
	c.turnState = state
	c.publish()
	logger.Debug("turn state changed",
		"session_id", c.id,
		"from", from.String(),
		"to", state.String(),
	)
	c.emit(events.NewTurnStateChanged(c.id, from.String(), state.String()))
}

func (c *controller) emit(event events.Event) {
	if c.onEvent != nil {
		c.onEvent(event)
	}
}

func (c *controller) appendUtterance(u ledger.Utterance) (ledger.Utterance, error) {
	stored, err := c.ledger.AppendUtterance(u)
	if err != nil {
		return ledger.Utterance{}, fmt.Errorf("failed to append utterance: %w", err)
	}
	c.persister.appendUtterance(stored)
	return stored, nil
}

func (c *controller) publish() {
	state := &State{
		SessionID:   c.id,
		Candidate:   c.candidate,
		Position:    c.position,
		RoomRef:     c.roomRef,
		StartedAt:   c.startedAt,
		EndedAt:     c.endedAt,
		Status:      c.status,
		Phase:       c.machine.Current(),
		TurnState:   c.turnState,
		Exchanges:   c.machine.Exchanges(),
		PendingTurn: c.pending != nil,
		Scores:      c.ledger.CumulativeScores(),
		ScoresFinal: c.scoresFinal,
		EndReason:   c.endReason,
		Err:         abortError(c.status, c.endErr),
	}
	c.state.Store(state)
}

func (c *controller) State() State {
	return *c.state.Load()
}

// Ledger exposes the session ledger for reading.
func (c *controller) Ledger() *ledger.Ledger {
	return c.ledger
}

// requestAbort cancels the session from outside the loop.
func (c *controller) requestAbort(err error) {
	c.cancel(err)
}
