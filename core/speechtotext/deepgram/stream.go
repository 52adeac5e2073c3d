package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-interview/core/audio"
	"github.com/koscakluka/ema-interview/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	fragmentBufferSize = 64
	silenceChunk       = 50 * time.Millisecond
	silenceBeforeIdle  = time.Second
	keepAliveInterval  = 5 * time.Second
)

// StreamAudio forwards frames to Deepgram and returns the fragments it
// recognises, in the order Deepgram sends them. The fragment channel closes
// when frames is closed, ctx is cancelled or the socket fails.
func (c *Client) StreamAudio(ctx context.Context, sessionID string, frames <-chan []byte) (<-chan speechtotext.Fragment, error) {
	ctx, span := tracer.Start(ctx, "open transcription stream")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	conn, err := c.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect")
		return nil, err
	}

	s := &stream{
		sessionID: sessionID,
		conn:      conn,
		encoding:  c.encoding,
		out:       make(chan speechtotext.Fragment, fragmentBufferSize),
		now:       time.Now,
	}
	go s.writeLoop(ctx, frames)
	go s.readLoop(ctx)
	return s.out, nil
}

type stream struct {
	sessionID string
	conn      *websocket.Conn
	encoding  audio.EncodingInfo
	out       chan speechtotext.Fragment
	now       func() time.Time

	// only touched by readLoop
	unendedSegment bool
}

type controlMessage struct {
	Type string `json:"type"`
}

// writeLoop is the only writer on the socket. While no audio arrives it pads
// with silence for a second, then falls back to KeepAlive messages so
// Deepgram does not close the idle stream.
func (s *stream) writeLoop(ctx context.Context, frames <-chan []byte) {
	ticker := time.NewTicker(silenceChunk)
	defer ticker.Stop()

	silence := s.encoding.Silence(silenceChunk)
	lastAudio := s.now()
	lastKeepAlive := time.Time{}

	for {
		select {
		case <-ctx.Done():
			s.conn.Close()
			return

		case frame, ok := <-frames:
			if !ok {
				if err := s.conn.WriteJSON(controlMessage{Type: string(api.TypeCloseStreamResponse)}); err != nil {
					logger.Warn("failed to close deepgram stream", "session_id", s.sessionID, "error", err)
					s.conn.Close()
				}
				return
			}
			lastAudio = s.now()
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logger.Error("failed to write audio to deepgram", "session_id", s.sessionID, "error", err)
				s.conn.Close()
				return
			}

		case <-ticker.C:
			idle := s.now().Sub(lastAudio)
			switch {
			case idle < silenceChunk:
			case idle < silenceBeforeIdle:
				if err := s.conn.WriteMessage(websocket.BinaryMessage, silence); err != nil {
					logger.Warn("failed to send silence to deepgram", "session_id", s.sessionID, "error", err)
				}
			case s.now().Sub(lastKeepAlive) >= keepAliveInterval:
				lastKeepAlive = s.now()
				if err := s.conn.WriteJSON(controlMessage{Type: "KeepAlive"}); err != nil {
					logger.Warn("failed to send keepalive to deepgram", "session_id", s.sessionID, "error", err)
				}
			}
		}
	}
}

func (s *stream) readLoop(ctx context.Context) {
	defer close(s.out)
	defer s.conn.Close()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil && !errors.Is(err, websocket.ErrCloseSent) {
				logger.Warn("deepgram stream ended", "session_id", s.sessionID, "error", err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		fragments, err := s.processMessage(msg)
		if err != nil {
			logger.Warn("failed to process deepgram message", "session_id", s.sessionID, "error", err)
			continue
		}
		for _, fragment := range fragments {
			select {
			case s.out <- fragment:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *stream) processMessage(msg []byte) ([]speechtotext.Fragment, error) {
	var parsedMsg controlMessage
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deepgram message: %w", err)
	}

	now := s.now()
	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deepgram results: %w", err)
		}

		var fragments []speechtotext.Fragment
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
			if transcript != "" {
				s.unendedSegment = true
				fragments = append(fragments, speechtotext.Fragment{
					Kind:      speechtotext.FragmentTranscript,
					Text:      transcript,
					IsFinal:   msgResp.IsFinal,
					Timestamp: now,
				})
			}
		}
		if msgResp.IsFinal && msgResp.SpeechFinal {
			fragments = append(fragments, s.speechEnded(now))
		}
		return fragments, nil

	case api.TypeUtteranceEndResponse:
		if !s.unendedSegment {
			return nil, nil
		}
		return []speechtotext.Fragment{s.speechEnded(now)}, nil

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
		return []speechtotext.Fragment{{Kind: speechtotext.FragmentSpeechStarted, Timestamp: now}}, nil

	default:
		return nil, nil
	}
}

func (s *stream) speechEnded(at time.Time) speechtotext.Fragment {
	s.unendedSegment = false
	return speechtotext.Fragment{Kind: speechtotext.FragmentSpeechEnded, Timestamp: at}
}
