package orchestration

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/llms"
	"github.com/koscakluka/ema-interview/core/persistence"
	"github.com/koscakluka/ema-interview/core/phases"
	"github.com/koscakluka/ema-interview/core/speechtotext"
	"github.com/koscakluka/ema-interview/core/texttospeech"
	"github.com/koscakluka/ema-interview/core/turndetection"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type transportStub struct {
	frames chan []byte
	marks  chan string
	// autoPlay reports every mark as played as soon as it is placed.
	autoPlay bool

	mu        sync.Mutex
	sent      int
	markCalls []string
	clears    int
	dropped   bool
}

func newTransportStub() *transportStub {
	return &transportStub{
		frames:   make(chan []byte),
		marks:    make(chan string, 16),
		autoPlay: true,
	}
}

func (s *transportStub) AudioFrames(context.Context, string) (<-chan []byte, error) {
	return s.frames, nil
}

func (s *transportStub) PlaybackComplete(context.Context, string) (<-chan string, error) {
	return s.marks, nil
}

func (s *transportStub) SendAudioFrame(context.Context, string, []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *transportStub) Mark(_ context.Context, _ string, mark string) error {
	s.mu.Lock()
	s.markCalls = append(s.markCalls, mark)
	s.mu.Unlock()

	if s.autoPlay {
		s.play(mark)
	}
	return nil
}

func (s *transportStub) ClearPlayback(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

func (s *transportStub) play(mark string) {
	select {
	case s.marks <- mark:
	default:
	}
}

func (s *transportStub) lastMark() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.markCalls) == 0 {
		return ""
	}
	return s.markCalls[len(s.markCalls)-1]
}

// calls counts every outbound call made to the transport.
func (s *transportStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent + len(s.markCalls) + s.clears
}

func (s *transportStub) sentFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *transportStub) clearCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *transportStub) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dropped {
		s.dropped = true
		close(s.frames)
	}
}

type speechToTextStub struct {
	fragments chan speechtotext.Fragment
}

func newSpeechToTextStub() *speechToTextStub {
	return &speechToTextStub{fragments: make(chan speechtotext.Fragment, 16)}
}

func (s *speechToTextStub) StreamAudio(_ context.Context, _ string, frames <-chan []byte) (<-chan speechtotext.Fragment, error) {
	go func() {
		for range frames {
		}
	}()
	return s.fragments, nil
}

// speak sends one complete candidate utterance.
func (s *speechToTextStub) speak(text string) {
	now := time.Now()
	s.fragments <- speechtotext.Fragment{Kind: speechtotext.FragmentSpeechStarted, Timestamp: now}
	s.fragments <- speechtotext.Fragment{Kind: speechtotext.FragmentTranscript, Text: text, IsFinal: true, Timestamp: now}
	s.fragments <- speechtotext.Fragment{Kind: speechtotext.FragmentSpeechEnded, Timestamp: now}
}

type textToSpeechStub struct {
	// fail is consulted for every line; a non-nil error fails synthesis.
	fail func(text string) error

	mu    sync.Mutex
	lines []string
}

func (s *textToSpeechStub) Synthesize(_ context.Context, text string, _ texttospeech.Voice) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		s.mu.Lock()
		s.lines = append(s.lines, text)
		s.mu.Unlock()

		if s.fail != nil {
			if err := s.fail(text); err != nil {
				yield(nil, err)
				return
			}
		}
		for range 2 {
			if !yield([]byte{0, 0, 0, 0}, nil) {
				return
			}
		}
	}
}

func (s *textToSpeechStub) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type llmStub struct {
	respond func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (s *llmStub) Prompt(ctx context.Context, prompt string, _ ...llms.PromptOption) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.respond(ctx, prompt)
}

func (s *llmStub) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *llmStub) prompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[i]
}

func replyWith(line string, objectivesMet bool, score int) *llmStub {
	content := fmt.Sprintf(`{"reply": %q, "objectives_met": %t, "score": %d}`, line, objectivesMet, score)
	return &llmStub{respond: func(context.Context, string) (string, error) {
		return content, nil
	}}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofKind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []events.Event
	for _, event := range r.events {
		if event.Kind() == kind {
			matched = append(matched, event)
		}
	}
	return matched
}

func testConfig() Config {
	config := DefaultConfig()
	config.TurnDetection = turndetection.Config{MinSilence: 40 * time.Millisecond, MaxSilence: 2 * time.Second}
	config.TickInterval = 5 * time.Millisecond
	config.PlannerTimeout = time.Second
	config.MaxSpeakingDuration = 2 * time.Second
	config.SessionDuration = time.Minute
	config.PersistenceTimeout = time.Second
	return config
}

func singleExchangeLimits() phases.Limits {
	return phases.Limits{
		phases.Introduction: 1,
		phases.Technical:    1,
		phases.Behavioral:   1,
		phases.Closing:      1,
	}
}

type harness struct {
	manager   *Manager
	pool      *ServicePool
	transport *transportStub
	stt       *speechToTextStub
	tts       *textToSpeechStub
	store     *persistence.MemoryStore
	events    *eventRecorder
}

func newHarness(t *testing.T, llm any, config Config, opts ...ManagerOption) *harness {
	t.Helper()
	return newStubs().start(t, llm, config, opts...)
}

// newStubs returns collaborators that can be tweaked before start.
func newStubs() *harness {
	return &harness{
		transport: newTransportStub(),
		stt:       newSpeechToTextStub(),
		tts:       &textToSpeechStub{},
		store:     persistence.NewMemoryStore(),
		events:    &eventRecorder{},
	}
}

func (h *harness) start(t *testing.T, llm any, config Config, opts ...ManagerOption) *harness {
	t.Helper()

	pool, err := NewServicePool(Services{
		Transport:    h.transport,
		SpeechToText: h.stt,
		TextToSpeech: h.tts,
		LLM:          llm,
		Persistence:  h.store,
	})
	if err != nil {
		t.Fatalf("unexpected error creating pool: %v", err)
	}
	h.pool = pool

	opts = append([]ManagerOption{WithConfig(config), WithEventCallback(h.events.record)}, opts...)
	manager, err := NewManager(pool, opts...)
	if err != nil {
		t.Fatalf("unexpected error creating manager: %v", err)
	}
	h.manager = manager

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := manager.Close(ctx); err != nil {
			t.Errorf("failed to close manager: %v", err)
		}
	})
	return h
}

func (h *harness) startSession(t *testing.T) string {
	t.Helper()

	id, err := h.manager.StartSession(context.Background(), "Ada", "Data Scientist", "room-1")
	if err != nil {
		t.Fatalf("unexpected error starting session: %v", err)
	}
	// The welcome line is the first thing that moves the turn state.
	waitForCondition(t, 2*time.Second, "welcome line", func() bool {
		return len(h.events.ofKind(events.KindTurnStateChanged)) > 0
	})
	return id
}

func (h *harness) state(t *testing.T, id string) State {
	t.Helper()

	state, err := h.manager.GetSessionState(id)
	if err != nil {
		t.Fatalf("unexpected error reading state: %v", err)
	}
	return state
}

func (h *harness) waitForState(t *testing.T, id, description string, condition func(State) bool) State {
	t.Helper()

	var state State
	waitForCondition(t, 3*time.Second, description, func() bool {
		state = h.state(t, id)
		return condition(state)
	})
	return state
}

func (h *harness) waitForIdle(t *testing.T, id string) State {
	t.Helper()
	return h.waitForState(t, id, "interviewer to hand over the floor", func(s State) bool {
		return s.TurnState == TurnIdle || s.Status.Terminal()
	})
}

// answer has the candidate say text and waits for the interviewer to reply.
func (h *harness) answer(t *testing.T, id string, llm *llmStub, text string) State {
	t.Helper()

	h.waitForIdle(t, id)
	calls := llm.calls()
	h.stt.speak(text)
	waitForCondition(t, 3*time.Second, "planner call", func() bool {
		return llm.calls() > calls
	})
	return h.waitForIdle(t, id)
}

func (h *harness) summary(t *testing.T, id string) persistence.Summary {
	t.Helper()

	var summary persistence.Summary
	waitForCondition(t, 3*time.Second, "persisted summary", func() bool {
		var err error
		summary, err = h.store.LoadSummary(context.Background(), id)
		return err == nil
	})
	return summary
}

func containsLine(lines []string, substring string) bool {
	return slices.ContainsFunc(lines, func(line string) bool {
		return strings.Contains(line, substring)
	})
}
