package miniaudio

import "testing"

func TestPlaybackQueueReportsMarksAfterTheirAudio(t *testing.T) {
	q := &playbackQueue{}
	q.write([]byte{1, 2, 3, 4})
	q.mark("first")
	q.write([]byte{5, 6})
	q.mark("second")

	out := make([]byte, 3)
	if passed := q.read(out, 0); len(passed) != 0 {
		t.Fatalf("expected no marks before their audio played, got %v", passed)
	}

	passed := q.read(out, 0)
	if len(passed) != 1 || passed[0] != "first" {
		t.Fatalf("expected first mark, got %v", passed)
	}
	if out[0] != 4 || out[1] != 5 || out[2] != 6 {
		t.Fatalf("unexpected audio %v", out)
	}

	passed = q.read(out, 0)
	if len(passed) != 1 || passed[0] != "second" {
		t.Fatalf("expected second mark, got %v", passed)
	}
}

func TestPlaybackQueuePadsWithSilence(t *testing.T) {
	q := &playbackQueue{}
	q.write([]byte{9})

	out := []byte{7, 7, 7}
	q.read(out, 0xFF)
	if out[0] != 9 || out[1] != 0xFF || out[2] != 0xFF {
		t.Fatalf("expected audio padded with silence, got %v", out)
	}
	if q.pending() != 0 {
		t.Fatalf("expected empty queue, got %d bytes", q.pending())
	}
}

func TestPlaybackQueueMarkWithoutAudioPassesImmediately(t *testing.T) {
	q := &playbackQueue{}
	q.mark("empty")

	if passed := q.read(make([]byte, 4), 0); len(passed) != 1 || passed[0] != "empty" {
		t.Fatalf("expected mark to pass on next read, got %v", passed)
	}
}

func TestPlaybackQueueClear(t *testing.T) {
	q := &playbackQueue{}
	q.write([]byte{1, 2})
	q.mark("dropped")
	q.clear()

	if passed := q.read(make([]byte, 4), 0); len(passed) != 0 {
		t.Fatalf("expected cleared marks to be dropped, got %v", passed)
	}
}
