package events

const (
	KindInterviewerLinePlanned       Kind = "interviewer_speech.line_planned"
	KindInterviewerSpeechStarted     Kind = "interviewer_speech.started"
	KindInterviewerSpeechFailed      Kind = "interviewer_speech.failed"
	KindInterviewerPlaybackCompleted Kind = "interviewer_playback.completed"
)

// InterviewerLinePlanned carries the next interviewer line. Fallback is set
// when it did not come from the language model, Retry when it re-prompts a
// silent candidate.
type InterviewerLinePlanned struct {
	Base
	Line     string
	Fallback bool
	Retry    bool
}

func NewInterviewerLinePlanned(sessionID, line string, fallback, retry bool) InterviewerLinePlanned {
	return InterviewerLinePlanned{
		Base:     NewBase(KindInterviewerLinePlanned, sessionID),
		Line:     line,
		Fallback: fallback,
		Retry:    retry,
	}
}

type InterviewerSpeechStarted struct {
	Base
	Mark string
}

func NewInterviewerSpeechStarted(sessionID, mark string) InterviewerSpeechStarted {
	return InterviewerSpeechStarted{Base: NewBase(KindInterviewerSpeechStarted, sessionID), Mark: mark}
}

type InterviewerSpeechFailed struct {
	Base
	Mark string
	Err  error
}

func NewInterviewerSpeechFailed(sessionID, mark string, err error) InterviewerSpeechFailed {
	return InterviewerSpeechFailed{Base: NewBase(KindInterviewerSpeechFailed, sessionID), Mark: mark, Err: err}
}

// InterviewerPlaybackCompleted marks the end of an interviewer line. TimedOut
// is set when the speaking limit expired before the transport confirmed it.
type InterviewerPlaybackCompleted struct {
	Base
	Mark     string
	TimedOut bool
}

func NewInterviewerPlaybackCompleted(sessionID, mark string, timedOut bool) InterviewerPlaybackCompleted {
	return InterviewerPlaybackCompleted{
		Base:     NewBase(KindInterviewerPlaybackCompleted, sessionID),
		Mark:     mark,
		TimedOut: timedOut,
	}
}
