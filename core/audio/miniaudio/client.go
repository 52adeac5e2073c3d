// Package miniaudio is a local-device transport: it captures the candidate
// from the default microphone and plays the interviewer through the default
// speaker. Only one session can use the devices at a time.
package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-interview/core/audio"
)

var (
	ErrSessionBusy     = errors.New("audio devices are in use by another session")
	ErrUnknownSession  = errors.New("session is not attached to the audio devices")
	ErrDeviceNotActive = errors.New("device not initialized")
)

const (
	frameBufferSize = 64
	markBufferSize  = 16
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encoding     audio.EncodingInfo

	playbackClient
	captureClient

	mu        sync.Mutex
	sessionID string
	marks     chan string
}

type ClientOption func(*Client)

// WithSampleRate overrides the device sample rate. Audio is always signed
// 16-bit mono.
func WithSampleRate(sampleRate int) ClientOption {
	return func(c *Client) {
		c.encoding.SampleRate = sampleRate
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{encoding: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(client)
	}
	if err := client.encoding.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device encoding: %w", err)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, client.encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	if err := client.captureClient.Init(audioCtx, client.encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

// AudioFrames attaches sessionID to the devices and starts capturing. The
// returned channel is closed when ctx is done or the client is closed.
func (c *Client) AudioFrames(ctx context.Context, sessionID string) (<-chan []byte, error) {
	if err := c.attach(sessionID); err != nil {
		return nil, err
	}

	frames, err := c.captureClient.Start(frameBufferSize)
	if err != nil {
		c.detach(sessionID)
		return nil, err
	}
	if err := c.playbackClient.Start(c.onMark); err != nil {
		_ = c.captureClient.Stop()
		c.detach(sessionID)
		return nil, err
	}
	logger.Info("local audio attached", "session_id", sessionID)

	context.AfterFunc(ctx, func() {
		if err := c.captureClient.Stop(); err != nil {
			logger.Warn("failed to stop capture", "session_id", sessionID, "error", err)
		}
		if err := c.playbackClient.Stop(); err != nil {
			logger.Warn("failed to stop playback", "session_id", sessionID, "error", err)
		}
		c.detach(sessionID)
	})

	return frames, nil
}

func (c *Client) SendAudioFrame(_ context.Context, sessionID string, frame []byte) error {
	if err := c.owns(sessionID); err != nil {
		return err
	}
	return c.playbackClient.SendAudio(frame)
}

// Mark reports mark on PlaybackComplete once all audio sent before it has
// been played.
func (c *Client) Mark(_ context.Context, sessionID string, mark string) error {
	if err := c.owns(sessionID); err != nil {
		return err
	}
	c.playbackClient.Mark(mark)
	return nil
}

func (c *Client) PlaybackComplete(_ context.Context, sessionID string) (<-chan string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sessionID || c.marks == nil {
		return nil, ErrUnknownSession
	}
	return c.marks, nil
}

// ClearPlayback drops audio that has not been played yet together with its
// marks.
func (c *Client) ClearPlayback(_ context.Context, sessionID string) error {
	if err := c.owns(sessionID); err != nil {
		return err
	}
	c.playbackClient.ClearBuffer()
	return nil
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marks != nil {
		close(c.marks)
		c.marks = nil
	}
	c.sessionID = ""
}

func (c *Client) attach(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		return fmt.Errorf("%w: %s", ErrSessionBusy, c.sessionID)
	}
	c.sessionID = sessionID
	c.marks = make(chan string, markBufferSize)
	return nil
}

func (c *Client) detach(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sessionID {
		return
	}
	if c.marks != nil {
		close(c.marks)
		c.marks = nil
	}
	c.sessionID = ""
}

func (c *Client) owns(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != sessionID {
		return ErrUnknownSession
	}
	return nil
}

func (c *Client) onMark(mark string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marks == nil {
		return
	}
	select {
	case c.marks <- mark:
	default:
		logger.Warn("dropping playback mark, listener is behind", "mark", mark)
	}
}
