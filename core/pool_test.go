package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"
)

type closingTextToSpeech struct {
	textToSpeechStub
	closed int
	err    error
}

func (s *closingTextToSpeech) Close() error {
	s.closed++
	return s.err
}

type closingSpeechToText struct {
	*speechToTextStub
	closed int
}

func (s *closingSpeechToText) Close() {
	s.closed++
}

func TestServicePoolRequiresServices(t *testing.T) {
	if _, err := NewServicePool(Services{}); err == nil {
		t.Fatalf("expected missing services to be rejected")
	}
}

func TestServicePoolCountsLeases(t *testing.T) {
	pool, err := NewServicePool(Services{Transport: newTransportStub(), SpeechToText: newSpeechToTextStub(), TextToSpeech: &textToSpeechStub{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := pool.Acquire()
	second, _ := pool.Acquire()
	if pool.Refs() != 2 {
		t.Fatalf("expected 2 refs, got %d", pool.Refs())
	}

	first.Release()
	first.Release()
	if pool.Refs() != 1 {
		t.Fatalf("expected double release to count once, got %d refs", pool.Refs())
	}
	second.Release()
	if pool.Refs() != 0 {
		t.Fatalf("expected 0 refs, got %d", pool.Refs())
	}
}

func TestServicePoolCloseWaitsForLeases(t *testing.T) {
	tts := &closingTextToSpeech{err: errors.New("socket already closed")}
	stt := &closingSpeechToText{speechToTextStub: newSpeechToTextStub()}
	pool, err := NewServicePool(Services{Transport: newTransportStub(), SpeechToText: stt, TextToSpeech: tts, LLM: tts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lease, err := pool.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Close(ctx); err == nil {
		t.Fatalf("expected close to time out with an outstanding lease")
	}
	if _, err := pool.Acquire(); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	if tts.closed != 0 {
		t.Fatalf("expected services to stay open while leased")
	}

	closed := make(chan error, 1)
	go func() { closed <- pool.Close(context.Background()) }()
	lease.Release()

	select {
	case err := <-closed:
		if err == nil {
			t.Fatalf("expected close error to be reported")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for pool to close")
	}
	if tts.closed != 1 {
		t.Fatalf("expected shared service to be closed once, got %d", tts.closed)
	}
	if stt.closed != 1 {
		t.Fatalf("expected speech to text to be closed, got %d", stt.closed)
	}
}

func TestServicePoolClosesServicesOnce(t *testing.T) {
	tts := &closingTextToSpeech{}
	stt := &closingSpeechToText{speechToTextStub: newSpeechToTextStub()}
	pool, err := NewServicePool(Services{Transport: newTransportStub(), SpeechToText: stt, TextToSpeech: tts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for range 2 {
		if err := pool.Close(context.Background()); err != nil {
			t.Fatalf("unexpected error closing pool: %v", err)
		}
	}
	if tts.closed != 1 {
		t.Fatalf("expected text to speech to be closed once, got %d", tts.closed)
	}
	if stt.closed != 1 {
		t.Fatalf("expected speech to text to be closed once, got %d", stt.closed)
	}
}
