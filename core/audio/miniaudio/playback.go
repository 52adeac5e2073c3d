package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-interview/core/audio"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	silence      byte

	queue  playbackQueue
	onMark func(string)

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = uint32(encoding.SampleRate)
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	c.config.Periods = 4
	c.silence = encoding.SilenceValue()

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start(onMark func(string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return ErrDeviceNotActive
	}

	c.onMark = onMark
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// Stop drops queued audio and halts the device. The lock is released first
// because the data callback needs it to finish.
func (c *playbackClient) Stop() error {
	c.mu.Lock()
	c.onMark = nil
	device := c.device
	c.mu.Unlock()

	c.queue.clear()
	if device == nil || !device.IsStarted() {
		return nil
	}
	if err := device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return ErrDeviceNotActive
	} else if !c.device.IsStarted() {
		return fmt.Errorf("playback device not started")
	}

	c.queue.write(audio)
	return nil
}

func (c *playbackClient) ClearBuffer() {
	c.queue.clear()
}

func (c *playbackClient) Mark(mark string) {
	c.queue.mark(mark)
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	c.onMark = nil
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))
		passed := c.queue.read(pOutput[:need], c.silence)
		if len(passed) == 0 {
			return
		}

		c.mu.Lock()
		onMark := c.onMark
		c.mu.Unlock()
		if onMark == nil {
			return
		}
		for _, mark := range passed {
			onMark(mark)
		}
	}
}
