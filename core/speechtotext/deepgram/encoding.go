package deepgram

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/koscakluka/ema-interview/core/audio"
)

var listenSampleRates = []int{8000, 16000, 24000, 32000, 48000}

// setEncoding writes the audio parameters of the live endpoint. Companded
// formats are only accepted at 8kHz.
func setEncoding(params url.Values, encoding audio.EncodingInfo) error {
	if !slices.Contains(listenSampleRates, encoding.SampleRate) {
		return fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return fmt.Errorf("unsupported sample rate %d for %s", encoding.SampleRate, encoding.Format)
		}
	default:
		return fmt.Errorf("unsupported encoding %q", encoding.Format)
	}

	params.Set("encoding", encoding.Format.Name())
	params.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	params.Set("channels", "1")
	return nil
}
