package orchestration

import (
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-interview/core/phases"
	"github.com/koscakluka/ema-interview/core/planner"
	"github.com/koscakluka/ema-interview/core/texttospeech"
	"github.com/koscakluka/ema-interview/core/turndetection"
)

// Config tunes every session started by a Manager.
type Config struct {
	TurnDetection turndetection.Config
	// MaxExchanges caps the exchanges per phase before the phase is advanced
	// without the planner's consent.
	MaxExchanges phases.Limits
	// MaxNoResponseRetries is how many times the candidate is re-prompted
	// after silence before the planner is told nobody answered.
	MaxNoResponseRetries int
	PlannerTimeout       time.Duration
	// MaxSpeakingDuration bounds how long the controller waits for playback
	// confirmation of a single interviewer line.
	MaxSpeakingDuration   time.Duration
	SessionDuration       time.Duration
	MaxConcurrentSessions int
	// TickInterval is how often the turn detector is evaluated.
	TickInterval time.Duration
	Voice        texttospeech.Voice

	EventQueueSize       int
	PersistenceQueueSize int
	PersistenceTimeout   time.Duration
	// ArchiveSize is how many finished sessions stay readable through
	// GetSessionState.
	ArchiveSize int
}

func DefaultConfig() Config {
	return Config{
		TurnDetection:         turndetection.DefaultConfig(),
		MaxExchanges:          phases.DefaultLimits(),
		MaxNoResponseRetries:  2,
		PlannerTimeout:        planner.DefaultTimeout,
		MaxSpeakingDuration:   45 * time.Second,
		SessionDuration:       30 * time.Minute,
		MaxConcurrentSessions: 10,
		TickInterval:          50 * time.Millisecond,
		EventQueueSize:        64,
		PersistenceQueueSize:  256,
		PersistenceTimeout:    5 * time.Second,
		ArchiveSize:           1000,
	}
}

func (c Config) Validate() error {
	var errs []error
	if err := c.TurnDetection.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("turn detection: %w", err))
	}
	if err := c.MaxExchanges.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("max exchanges: %w", err))
	}
	if c.MaxNoResponseRetries < 0 {
		errs = append(errs, fmt.Errorf("max no response retries must not be negative, got %d", c.MaxNoResponseRetries))
	}
	for name, d := range map[string]time.Duration{
		"planner timeout":       c.PlannerTimeout,
		"max speaking duration": c.MaxSpeakingDuration,
		"session duration":      c.SessionDuration,
		"tick interval":         c.TickInterval,
		"persistence timeout":   c.PersistenceTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.TickInterval >= c.TurnDetection.MinSilence && c.TurnDetection.MinSilence > 0 {
		errs = append(errs, fmt.Errorf("tick interval (%s) must be shorter than min silence (%s)", c.TickInterval, c.TurnDetection.MinSilence))
	}
	for name, n := range map[string]int{
		"max concurrent sessions": c.MaxConcurrentSessions,
		"event queue size":        c.EventQueueSize,
		"persistence queue size":  c.PersistenceQueueSize,
		"archive size":            c.ArchiveSize,
	} {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, n))
		}
	}
	return errors.Join(errs...)
}
