package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-interview/core/audio"
)

type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	mu     sync.Mutex
	frames chan []byte
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(encoding.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = uint32(encoding.SampleRate / 50) // 20ms frames
	c.config.Periods = 3

	c.audioContext = audioContext

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.push(pInput[:n])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

// push copies the device buffer since malgo reuses it between callbacks.
func (c *captureClient) push(input []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frames == nil {
		return
	}

	frame := make([]byte, len(input))
	copy(frame, input)
	select {
	case c.frames <- frame:
	default:
		logger.Warn("dropping captured frame, consumer is behind", "bytes", len(frame))
	}
}

func (c *captureClient) Start(bufferSize int) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil, ErrDeviceNotActive
	} else if c.frames != nil {
		return nil, fmt.Errorf("capture already started")
	}

	if err := c.device.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	c.frames = make(chan []byte, bufferSize)
	return c.frames, nil
}

// Stop halts the device before closing the frame channel. The device lock is
// not held while stopping since the data callback takes it.
func (c *captureClient) Stop() error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()

	var err error
	if device != nil && device.IsStarted() {
		if stopErr := device.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop capture device: %w", stopErr)
		}
	}

	c.mu.Lock()
	c.closeFrames()
	c.mu.Unlock()
	return err
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	device := c.device
	c.device = nil
	c.mu.Unlock()

	if device != nil {
		device.Uninit()
	}

	c.mu.Lock()
	c.closeFrames()
	c.mu.Unlock()
	return nil
}

func (c *captureClient) closeFrames() {
	if c.frames != nil {
		close(c.frames)
		c.frames = nil
	}
}
