package orchestration

import (
	"context"
	"iter"

	"github.com/koscakluka/ema-interview/core/events"
	"github.com/koscakluka/ema-interview/core/metrics"
	"github.com/koscakluka/ema-interview/core/planner"
	"github.com/koscakluka/ema-interview/core/speechtotext"
	"github.com/koscakluka/ema-interview/core/texttospeech"
)

// Transport moves audio between the candidate and the session.
//
// AudioFrames closing while the session runs is treated as the candidate
// disconnecting. Marks are reported on PlaybackComplete once every frame sent
// before them has been played.
type Transport interface {
	AudioFrames(ctx context.Context, sessionID string) (<-chan []byte, error)
	SendAudioFrame(ctx context.Context, sessionID string, frame []byte) error
	Mark(ctx context.Context, sessionID string, mark string) error
	PlaybackComplete(ctx context.Context, sessionID string) (<-chan string, error)
}

// TransportWithClear is implemented by transports that can drop audio that
// has not been played yet.
type TransportWithClear interface {
	Transport
	ClearPlayback(ctx context.Context, sessionID string) error
}

type SpeechToText interface {
	StreamAudio(ctx context.Context, sessionID string, frames <-chan []byte) (<-chan speechtotext.Fragment, error)
}

type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, voice texttospeech.Voice) iter.Seq2[[]byte, error]
}

type ManagerOption func(*Manager)

func WithConfig(config Config) ManagerOption {
	return func(m *Manager) {
		m.config = config
	}
}

// WithQuestionBank replaces the built-in interview lines and questions.
func WithQuestionBank(bank *planner.Bank) ManagerOption {
	return func(m *Manager) {
		m.bank = bank
	}
}

func WithMetrics(metrics *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithEventCallback registers an observer for session events. It is called
// from the session's event loop and must not block.
func WithEventCallback(callback func(events.Event)) ManagerOption {
	return func(m *Manager) {
		m.onEvent = callback
	}
}

// WithFallbackAudio sets pre-recorded audio played when an interviewer line
// cannot be synthesized. The audio must match the transport encoding.
func WithFallbackAudio(audio []byte) ManagerOption {
	return func(m *Manager) {
		m.fallbackAudio = audio
	}
}

// WithSessionIDGenerator overrides how session ids are created.
func WithSessionIDGenerator(generate func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = generate
	}
}
