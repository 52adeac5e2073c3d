package miniaudio

import "sync"

// playbackQueue buffers synthesized audio for the playback device and keeps
// track of marks placed between frames. A mark is reported once every byte
// queued before it has been handed to the device.
type playbackQueue struct {
	mu    sync.Mutex
	audio []byte
	marks []playbackMark
}

type playbackMark struct {
	name     string
	position int
}

func (q *playbackQueue) write(audio []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = append(q.audio, audio...)
}

func (q *playbackQueue) mark(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.marks = append(q.marks, playbackMark{name: name, position: len(q.audio)})
}

// read fills out with queued audio, padding with silence, and returns the
// marks that were passed.
func (q *playbackQueue) read(out []byte, silence byte) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(out, q.audio)
	for i := n; i < len(out); i++ {
		out[i] = silence
	}
	q.audio = q.audio[n:]
	if len(q.audio) == 0 {
		q.audio = nil
	}

	var passed []string
	remaining := q.marks[:0]
	for _, mark := range q.marks {
		if mark.position <= n {
			passed = append(passed, mark.name)
			continue
		}
		mark.position -= n
		remaining = append(remaining, mark)
	}
	q.marks = remaining
	return passed
}

func (q *playbackQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = nil
	q.marks = nil
}

func (q *playbackQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.audio)
}
