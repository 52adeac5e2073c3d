package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-interview/core/audio"
)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
)

// Client opens live transcription streams against Deepgram. One client is
// shared by every session; each StreamAudio call opens its own socket.
type Client struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	encoding  audio.EncodingInfo

	endpointing  time.Duration
	utteranceEnd time.Duration

	dialer *websocket.Dialer
}

type ClientOption func(*Client)

func WithListenURL(listenURL string) ClientOption {
	return func(c *Client) {
		c.listenURL = listenURL
	}
}

func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *Client) {
		c.language = language
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		c.encoding = encoding
	}
}

// WithUtteranceEnd sets the gap in transcribed words after which Deepgram
// reports the end of an utterance.
func WithUtteranceEnd(d time.Duration) ClientOption {
	return func(c *Client) {
		c.utteranceEnd = d
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	client := &Client{
		apiKey:       apiKey,
		listenURL:    defaultListenURL,
		model:        defaultModel,
		language:     "en-US",
		encoding:     audio.GetDefaultEncodingInfo(),
		endpointing:  300 * time.Millisecond,
		utteranceEnd: time.Second,
		dialer:       websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}
	if err := setEncoding(url.Values{}, client.encoding); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}
	return client, nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenURL.Query()
	if err := setEncoding(queryParams, c.encoding); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("vad_events", "true")
	queryParams.Set("endpointing", strconv.FormatInt(c.endpointing.Milliseconds(), 10))
	queryParams.Set("utterance_end_ms", strconv.FormatInt(c.utteranceEnd.Milliseconds(), 10))
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
