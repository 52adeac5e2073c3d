package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error without a service pool")
	}

	pool, err := NewServicePool(Services{
		Transport:    newTransportStub(),
		SpeechToText: newSpeechToTextStub(),
		TextToSpeech: &textToSpeechStub{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	config := DefaultConfig()
	config.MaxConcurrentSessions = 0
	if _, err := NewManager(pool, WithConfig(config)); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
}

func TestStartSessionRequiresCandidate(t *testing.T) {
	h := newHarness(t, nil, testConfig())

	if _, err := h.manager.StartSession(context.Background(), "  ", "designer", ""); !errors.Is(err, ErrMissingCandidate) {
		t.Fatalf("expected ErrMissingCandidate, got %v", err)
	}
}

func TestStartSessionUsesDefaultPosition(t *testing.T) {
	h := newHarness(t, nil, testConfig())

	id, err := h.manager.StartSession(context.Background(), "Ada", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := h.state(t, id); state.Position != "software_engineer" {
		t.Fatalf("expected default position, got %q", state.Position)
	}
}

func TestAbortSession(t *testing.T) {
	h := newHarness(t, replyWith("unused", false, 0), testConfig())
	id := h.startSession(t)

	if err := h.manager.AbortSession(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state, err := h.manager.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != StatusAborted || state.EndReason != EndReasonAborted || !errors.Is(state.Err, ErrSessionAborted) {
		t.Fatalf("expected aborted session, got %s %q %v", state.Status, state.EndReason, state.Err)
	}

	waitForCondition(t, 2*time.Second, "session to be archived", func() bool {
		return errors.Is(h.manager.AbortSession(id), ErrSessionEnded)
	})
	if archived := h.state(t, id); archived.Status != StatusAborted {
		t.Fatalf("expected archived state to stay readable, got %+v", archived)
	}
	if entries, err := h.manager.Transcript(id); err != nil || len(entries) == 0 {
		t.Fatalf("expected archived transcript, got %d entries and %v", len(entries), err)
	}
	if h.pool.Refs() != 0 {
		t.Fatalf("expected lease to be released, got %d refs", h.pool.Refs())
	}
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, nil, testConfig())

	if err := h.manager.AbortSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.manager.GetSessionState("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.manager.Transcript("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestConcurrentSessionLimit(t *testing.T) {
	config := testConfig()
	config.MaxConcurrentSessions = 1
	h := newHarness(t, nil, config)
	id := h.startSession(t)

	if _, err := h.manager.StartSession(context.Background(), "Grace", "designer", ""); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("expected ErrTooManySessions, got %v", err)
	}

	if err := h.manager.AbortSession(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForCondition(t, 2*time.Second, "session slot to be released", func() bool {
		return len(h.manager.ActiveSessions()) == 0
	})

	if _, err := h.manager.StartSession(context.Background(), "Grace", "designer", ""); err != nil {
		t.Fatalf("expected a freed slot to accept a session, got %v", err)
	}
}

func TestArchiveIsBounded(t *testing.T) {
	var next atomic.Int64
	config := testConfig()
	config.ArchiveSize = 1
	h := newHarness(t, nil, config, WithSessionIDGenerator(func() string {
		return fmt.Sprintf("session-%d", next.Add(1))
	}))

	for range 2 {
		id := h.startSession(t)
		if err := h.manager.AbortSession(id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		waitForCondition(t, 2*time.Second, "session to be archived", func() bool {
			return len(h.manager.ActiveSessions()) == 0
		})
	}

	if _, err := h.manager.GetSessionState("session-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected oldest session to be evicted, got %v", err)
	}
	if _, err := h.manager.GetSessionState("session-2"); err != nil {
		t.Fatalf("expected newest session to be kept, got %v", err)
	}
}

func TestCloseAbortsRunningSessions(t *testing.T) {
	h := newHarness(t, nil, testConfig())
	id := h.startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.manager.Close(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state := h.state(t, id)
	if state.Status != StatusAborted || state.EndReason != EndReasonShutdown {
		t.Fatalf("expected shutdown abort, got %s %q", state.Status, state.EndReason)
	}
	if _, err := h.manager.StartSession(context.Background(), "Ada", "", ""); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}

	if err := h.pool.Close(ctx); err != nil {
		t.Fatalf("unexpected error closing pool: %v", err)
	}
}

func TestStartFailureReleasesSlot(t *testing.T) {
	h := newStubs()
	transport := &failingTransport{transportStub: h.transport}
	pool, err := NewServicePool(Services{Transport: transport, SpeechToText: h.stt, TextToSpeech: h.tts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config := testConfig()
	config.MaxConcurrentSessions = 1
	manager, err := NewManager(pool, WithConfig(config))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range 2 {
		if _, err := manager.StartSession(context.Background(), "Ada", "", ""); err == nil {
			t.Fatalf("expected start to fail")
		} else if errors.Is(err, ErrTooManySessions) {
			t.Fatalf("expected failed start to release its slot, got %v", err)
		}
	}
	if pool.Refs() != 0 {
		t.Fatalf("expected no outstanding leases, got %d", pool.Refs())
	}
}

type failingTransport struct {
	*transportStub
}

func (failingTransport) AudioFrames(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("room not found")
}
