// Package speechtotext defines the transcript fragments produced by speech
// recognition clients.
package speechtotext

import "time"

type FragmentKind string

const (
	FragmentTranscript    FragmentKind = "transcript"
	FragmentSpeechStarted FragmentKind = "speech_started"
	FragmentSpeechEnded   FragmentKind = "speech_ended"
)

// Fragment is a single observation from the recogniser. Transcript fragments
// carry text and are either interim (may still change) or final.
type Fragment struct {
	Kind      FragmentKind
	Text      string
	IsFinal   bool
	Timestamp time.Time
}
