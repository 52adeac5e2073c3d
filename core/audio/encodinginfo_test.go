package audio

import (
	"testing"
	"time"
)

func TestSilenceMatchesDuration(t *testing.T) {
	encoding := GetDefaultEncodingInfo()

	chunk := encoding.Silence(50 * time.Millisecond)
	if len(chunk) != 1600 {
		t.Fatalf("expected 1600 bytes of linear16 silence, got %d", len(chunk))
	}
	if got := encoding.Duration(len(chunk)); got != 50*time.Millisecond {
		t.Fatalf("expected 50ms, got %s", got)
	}
}

func TestMulawSilenceValue(t *testing.T) {
	encoding := EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}

	chunk := encoding.Silence(10 * time.Millisecond)
	if len(chunk) != 80 {
		t.Fatalf("expected 80 bytes, got %d", len(chunk))
	}
	for _, b := range chunk {
		if b != 0xFF {
			t.Fatalf("expected mulaw silence byte 0xFF, got %#x", b)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := GetDefaultEncodingInfo().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (EncodingInfo{SampleRate: 16000, Format: "opus"}).Validate(); err == nil {
		t.Fatalf("expected unsupported format to fail validation")
	}
}
