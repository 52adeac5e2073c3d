package deepgram

import (
	"fmt"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-interview/core/audio"
	"github.com/koscakluka/ema-interview/core/texttospeech"
)

const defaultSpeakURL = "wss://api.deepgram.com/v1/speak"

// TextToSpeechClient synthesizes interviewer lines through Deepgram's
// streaming speak endpoint. It holds no per-request state and is safe to
// share between sessions.
type TextToSpeechClient struct {
	apiKey   string
	speakURL string
	voice    texttospeech.Voice
	encoding audio.EncodingInfo
	dialer   *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithVoice(voice texttospeech.Voice) ClientOption {
	return func(c *TextToSpeechClient) {
		c.voice = voice
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if encoding.IsZero() {
			return
		}
		c.encoding = encoding
	}
}

func WithSpeakURL(speakURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		c.speakURL = speakURL
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *TextToSpeechClient) {
		c.dialer = dialer
	}
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		apiKey:   apiKey,
		speakURL: defaultSpeakURL,
		voice:    defaultVoice,
		encoding: audio.GetDefaultEncodingInfo(),
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}
	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice %q", client.voice)
	}
	if err := client.encoding.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}
	return client, nil
}

func (c *TextToSpeechClient) Voice() texttospeech.Voice {
	return c.voice
}

func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
