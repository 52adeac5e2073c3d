package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-interview/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type serverMessage struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	ErrMsg      string `json:"err_msg,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

// Synthesize streams the audio for text. Frames are yielded as Deepgram
// produces them; the sequence ends after Deepgram confirms the flush, or
// with a single error.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, voice texttospeech.Voice) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		ctx, span := tracer.Start(ctx, "synthesize speech")
		defer span.End()

		if strings.TrimSpace(text) == "" {
			yield(nil, texttospeech.ErrEmptyText)
			return
		}
		if voice == "" {
			voice = c.voice
		}
		span.SetAttributes(
			attribute.String("tts.voice", string(voice)),
			attribute.Int("tts.text_length", len(text)),
		)

		conn, err := c.connect(ctx, voice)
		if err != nil {
			yield(nil, recordError(span, err))
			return
		}
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
			yield(nil, recordError(span, fmt.Errorf("failed to send text to deepgram: %w", err)))
			return
		}
		if err := conn.WriteJSON(flushMsg); err != nil {
			yield(nil, recordError(span, fmt.Errorf("failed to flush deepgram buffer: %w", err)))
			return
		}

		audioBytes := 0
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				yield(nil, recordError(span, fmt.Errorf("failed to read synthesized speech: %w", err)))
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				if len(msg) == 0 {
					continue
				}
				audioBytes += len(msg)
				if !yield(msg, nil) {
					return
				}

			case websocket.TextMessage:
				var parsedMsg serverMessage
				if err := json.Unmarshal(msg, &parsedMsg); err != nil {
					logger.Warn("failed to unmarshal deepgram message", "error", err)
					continue
				}

				switch parsedMsg.Type {
				case "Flushed":
					span.SetAttributes(attribute.Int("tts.audio_bytes", audioBytes))
					if err := conn.WriteJSON(closeMsg); err != nil {
						logger.Debug("failed to close deepgram speak stream", "error", err)
					}
					return
				case "Warning":
					logger.Warn("deepgram speak warning", "description", parsedMsg.Description)
				case "Error":
					yield(nil, recordError(span, fmt.Errorf("deepgram speak error: %s", parsedMsg.Description+parsedMsg.ErrMsg)))
					return
				}
			}
		}
	}
}

func (c *TextToSpeechClient) connect(ctx context.Context, voice texttospeech.Voice) (*websocket.Conn, error) {
	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := speakURL.Query()
	urlValues.Set("encoding", c.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
