// Package ledger holds the append-only record of an interview session.
//
// Entries are totally ordered by sequence number and carry a non-decreasing
// record time. Nothing is ever removed or rewritten; an aborted session keeps
// the partial ledger and is only flagged.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-interview/core/phases"
)

type Speaker string

const (
	SpeakerCandidate   Speaker = "candidate"
	SpeakerInterviewer Speaker = "interviewer"
)

type Utterance struct {
	ID      string       `json:"id"`
	Speaker Speaker      `json:"speaker"`
	Text    string       `json:"text"`
	Start   time.Time    `json:"start"`
	End     time.Time    `json:"end"`
	Phase   phases.Phase `json:"phase"`

	// NoAnswer marks a candidate turn that closed without any speech.
	NoAnswer bool `json:"no_answer,omitempty"`
	// Fallback marks an interviewer line produced without the language model.
	Fallback bool `json:"fallback,omitempty"`
	// Retry marks an interviewer re-prompt after candidate silence.
	Retry bool `json:"retry,omitempty"`
}

type ScoreEvent struct {
	ID          string           `json:"id"`
	UtteranceID string           `json:"utterance_id"`
	Phase       phases.Phase     `json:"phase"`
	Dimension   phases.Dimension `json:"dimension"`
	Value       int              `json:"value"`
	Rationale   string           `json:"rationale,omitempty"`
}

type PhaseChange struct {
	From   phases.Phase `json:"from"`
	To     phases.Phase `json:"to"`
	Forced bool         `json:"forced,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

type EntryKind string

const (
	EntryUtterance   EntryKind = "utterance"
	EntryScore       EntryKind = "score"
	EntryPhaseChange EntryKind = "phase_change"
)

// Entry is one record in the ledger. Exactly one of the payload pointers is
// set, matching Kind.
type Entry struct {
	Seq        uint64    `json:"seq"`
	RecordedAt time.Time `json:"recorded_at"`
	Kind       EntryKind `json:"kind"`

	Utterance   *Utterance   `json:"utterance,omitempty"`
	Score       *ScoreEvent  `json:"score,omitempty"`
	PhaseChange *PhaseChange `json:"phase_change,omitempty"`
}

var (
	ErrScoreOutOfRange  = errors.New("score must be between 1 and 5")
	ErrPhaseNotEntered  = errors.New("score references a phase that was not entered")
	ErrUnknownUtterance = errors.New("score references an unknown utterance")
	ErrPhaseRegression  = errors.New("phase change does not move forward")
	ErrEmptySpeaker     = errors.New("utterance has no speaker")
)

const (
	MinScore = 1
	MaxScore = 5
)

type Ledger struct {
	mu sync.RWMutex

	entries    []Entry
	utterances map[string]int
	phase      phases.Phase
	aborted    bool
	now        func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the clock used for record times.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		utterances: map[string]int{},
		phase:      phases.Introduction,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AppendUtterance records u and returns the stored copy. An empty ID is
// replaced with a fresh one.
func (l *Ledger) AppendUtterance(u Utterance) (Utterance, error) {
	if u.Speaker == "" {
		return Utterance{}, ErrEmptySpeaker
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.utterances[u.ID]; ok {
		return Utterance{}, fmt.Errorf("duplicate utterance id %s", u.ID)
	}

	stored := u
	entry := l.append(EntryUtterance)
	entry.Utterance = &stored
	l.utterances[u.ID] = len(l.entries) - 1
	return stored, nil
}

// AppendScore records a score for an already recorded utterance.
func (l *Ledger) AppendScore(s ScoreEvent) (ScoreEvent, error) {
	if s.Value < MinScore || s.Value > MaxScore {
		return ScoreEvent{}, fmt.Errorf("%w: got %d", ErrScoreOutOfRange, s.Value)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if s.Phase > l.phase {
		return ScoreEvent{}, fmt.Errorf("%w: %s", ErrPhaseNotEntered, s.Phase)
	}
	if _, ok := l.utterances[s.UtteranceID]; !ok {
		return ScoreEvent{}, fmt.Errorf("%w: %s", ErrUnknownUtterance, s.UtteranceID)
	}

	stored := s
	entry := l.append(EntryScore)
	entry.Score = &stored
	return stored, nil
}

func (l *Ledger) AppendPhaseChange(c PhaseChange) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c.From != l.phase || c.To <= c.From {
		return fmt.Errorf("%w: %s -> %s (ledger at %s)", ErrPhaseRegression, c.From, c.To, l.phase)
	}

	stored := c
	entry := l.append(EntryPhaseChange)
	entry.PhaseChange = &stored
	l.phase = c.To
	return nil
}

// append must be called with mu held.
func (l *Ledger) append(kind EntryKind) *Entry {
	recordedAt := l.now()
	if n := len(l.entries); n > 0 && recordedAt.Before(l.entries[n-1].RecordedAt) {
		recordedAt = l.entries[n-1].RecordedAt
	}
	l.entries = append(l.entries, Entry{
		Seq:        uint64(len(l.entries) + 1),
		RecordedAt: recordedAt,
		Kind:       kind,
	})
	return &l.entries[len(l.entries)-1]
}

func (l *Ledger) MarkAborted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aborted = true
}

func (l *Ledger) Aborted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.aborted
}

func (l *Ledger) Phase() phases.Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of every entry in sequence order. Payloads are
// copied too so callers cannot rewrite recorded entries.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.entries))
	for i, entry := range l.entries {
		entries[i] = entry.clone()
	}
	return entries
}

func (e Entry) clone() Entry {
	if e.Utterance != nil {
		utterance := *e.Utterance
		e.Utterance = &utterance
	}
	if e.Score != nil {
		score := *e.Score
		e.Score = &score
	}
	if e.PhaseChange != nil {
		change := *e.PhaseChange
		e.PhaseChange = &change
	}
	return e
}

func (l *Ledger) Utterances() []Utterance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	utterances := make([]Utterance, 0, len(l.utterances))
	for _, entry := range l.entries {
		if entry.Utterance != nil {
			utterances = append(utterances, *entry.Utterance)
		}
	}
	return utterances
}

func (l *Ledger) Scores() []ScoreEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var scores []ScoreEvent
	for _, entry := range l.entries {
		if entry.Score != nil {
			scores = append(scores, *entry.Score)
		}
	}
	return scores
}

// Annotation returns the score attached to an utterance, if any.
func (l *Ledger) Annotation(utteranceID string) (ScoreEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.entries {
		if entry.Score != nil && entry.Score.UtteranceID == utteranceID {
			return *entry.Score, true
		}
	}
	return ScoreEvent{}, false
}

// Scores maps a dimension to its cumulative score.
type Scores map[phases.Dimension]float64

// CumulativeScores averages every score per dimension, rounded to one
// decimal. Dimensions without scores are absent.
func (l *Ledger) CumulativeScores() Scores {
	return Cumulative(l.Scores())
}

func Cumulative(events []ScoreEvent) Scores {
	sums := map[phases.Dimension]int{}
	counts := map[phases.Dimension]int{}
	for _, event := range events {
		sums[event.Dimension] += event.Value
		counts[event.Dimension]++
	}

	scores := Scores{}
	for dimension, count := range counts {
		average := float64(sums[dimension]) / float64(count)
		scores[dimension] = math.Round(average*10) / 10
	}
	return scores
}
