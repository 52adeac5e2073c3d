// Package turndetection decides when the candidate has finished speaking.
//
// The detector is driven entirely by timestamps supplied by the caller:
// voice activity boundaries, transcript fragments and clock ticks. It holds
// no goroutines or timers of its own and is not safe for concurrent use; the
// session controller owns it.
package turndetection

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the silence thresholds.
type Config struct {
	// MinSilence is how long the candidate must stay quiet after speaking
	// before the turn is considered finished.
	MinSilence time.Duration `yaml:"min_silence"`
	// MaxSilence is how long the detector waits without any activity before
	// it force-closes the turn, or reports that nobody answered.
	MaxSilence time.Duration `yaml:"max_silence"`
}

func DefaultConfig() Config {
	return Config{
		MinSilence: 800 * time.Millisecond,
		MaxSilence: 3 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.MinSilence <= 0 {
		return fmt.Errorf("min silence must be positive, got %s", c.MinSilence)
	}
	if c.MaxSilence <= c.MinSilence {
		return fmt.Errorf("max silence (%s) must be greater than min silence (%s)", c.MaxSilence, c.MinSilence)
	}
	return nil
}

// EndOfTurn is emitted once per continuous candidate utterance.
type EndOfTurn struct {
	Text  string
	Start time.Time
	End   time.Time
	// NoResponse is set when the turn closed without any candidate activity.
	NoResponse bool
	// Forced is set when the turn was closed by the max silence window
	// rather than by a normal pause.
	Forced bool
}

type Detector struct {
	config Config

	active       bool
	speaking     bool
	start        time.Time
	lastActivity time.Time
	finals       []string
	interim      string

	armed   bool
	armedAt time.Time
}

func New(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Detector{config: config}, nil
}

func (d *Detector) Config() Config {
	return d.config
}

// Active reports whether a candidate turn is in progress.
func (d *Detector) Active() bool {
	return d.active
}

// Armed reports whether the no-response window is running.
func (d *Detector) Armed() bool {
	return d.armed
}

// Arm starts the no-response window at the given time. It is a no-op while
// a turn is in progress.
func (d *Detector) Arm(at time.Time) {
	if d.active {
		return
	}
	d.armed = true
	d.armedAt = at
}

func (d *Detector) Disarm() {
	d.armed = false
}

// SpeechStarted records voice activity. It returns true if this opened a new
// turn.
func (d *Detector) SpeechStarted(at time.Time) bool {
	opened := d.touch(at)
	d.speaking = true
	return opened
}

func (d *Detector) SpeechEnded(at time.Time) {
	if !d.active {
		return
	}
	d.speaking = false
	if at.After(d.lastActivity) {
		d.lastActivity = at
	}
}

// Transcript records a transcript fragment. Blank fragments are ignored. It
// returns true if this opened a new turn.
func (d *Detector) Transcript(text string, isFinal bool, at time.Time) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	opened := d.touch(at)
	if isFinal {
		d.finals = append(d.finals, text)
		d.interim = ""
	} else {
		d.interim = text
	}
	return opened
}

// Tick evaluates the silence thresholds at now.
func (d *Detector) Tick(now time.Time) (EndOfTurn, bool) {
	if !d.active {
		if d.armed && now.Sub(d.armedAt) >= d.config.MaxSilence {
			turn := EndOfTurn{Start: d.armedAt, End: now, NoResponse: true, Forced: true}
			d.Reset()
			return turn, true
		}
		return EndOfTurn{}, false
	}

	silence := now.Sub(d.lastActivity)
	text := d.text()

	switch {
	case !d.speaking && text != "" && silence >= d.config.MinSilence:
		return d.emit(text, false), true
	case d.speaking && text == "":
		// Voice activity without a transcript yet is not silence. The turn
		// stays open until speech ends or words arrive.
		return EndOfTurn{}, false
	case silence >= d.config.MaxSilence:
		return d.emit(text, true), true
	default:
		return EndOfTurn{}, false
	}
}

// Reset drops any in-progress turn and disarms the no-response window.
func (d *Detector) Reset() {
	d.active = false
	d.speaking = false
	d.start = time.Time{}
	d.lastActivity = time.Time{}
	d.finals = nil
	d.interim = ""
	d.armed = false
	d.armedAt = time.Time{}
}

// Pending returns the text gathered so far for the current turn.
func (d *Detector) Pending() string {
	return d.text()
}

func (d *Detector) touch(at time.Time) bool {
	opened := false
	if !d.active {
		d.active = true
		d.start = at
		d.armed = false
		opened = true
	}
	if at.After(d.lastActivity) {
		d.lastActivity = at
	}
	return opened
}

func (d *Detector) text() string {
	if d.interim == "" {
		return strings.Join(d.finals, " ")
	}
	return strings.Join(append(d.finals[:len(d.finals):len(d.finals)], d.interim), " ")
}

func (d *Detector) emit(text string, forced bool) EndOfTurn {
	turn := EndOfTurn{
		Text:       text,
		Start:      d.start,
		End:        d.lastActivity,
		NoResponse: text == "",
		Forced:     forced,
	}
	d.Reset()
	return turn
}
