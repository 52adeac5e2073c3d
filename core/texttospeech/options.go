// Package texttospeech holds what speech synthesis clients share.
package texttospeech

import "errors"

// Voice names a provider specific voice. The empty voice selects the
// client's default.
type Voice string

// ErrEmptyText is returned when there is nothing to synthesize.
var ErrEmptyText = errors.New("no text to synthesize")
