package audio

import (
	"fmt"
	"time"
)

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

// EncodingInfo describes mono audio flowing between the transport, speech
// recognition and speech synthesis.
type EncodingInfo struct {
	SampleRate int    `yaml:"sample_rate"`
	Format     Format `yaml:"format"`
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format == ""
}

func (e EncodingInfo) Validate() error {
	if e.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", e.SampleRate)
	}
	if e.Format.ByteSize() <= 0 {
		return fmt.Errorf("unsupported audio format %q", e.Format)
	}
	return nil
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	default:
		return 0
	}
}

// BytesPerSecond is the size of one second of audio.
func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.Format.ByteSize()
}

// Duration returns how long n bytes of audio play for.
func (e EncodingInfo) Duration(n int) time.Duration {
	bytesPerSecond := e.BytesPerSecond()
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

// Silence returns a buffer of silence lasting d.
func (e EncodingInfo) Silence(d time.Duration) []byte {
	size := int(int64(e.BytesPerSecond()) * int64(d) / int64(time.Second))
	if frame := e.Format.ByteSize(); frame > 1 {
		size -= size % frame
	}

	chunk := make([]byte, size)
	if value := e.SilenceValue(); value != 0 {
		for i := range chunk {
			chunk[i] = value
		}
	}
	return chunk
}

type Format string

func (f Format) Name() string {
	return string(f)
}

func (f Format) ByteSize() int {
	switch f {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    Format = "mulaw"
	EncodingALaw     Format = "alaw"
	EncodingLinear16 Format = "linear16"
)
