// Package phases implements the interview phase machine.
//
// Phases only move forward: Introduction, Technical, Behavioral, Closing and
// the terminal Completed. Advancement is driven by the planner's objectives
// signal, with a per-phase exchange cap as the fallback.
package phases

import (
	"errors"
	"fmt"
)

type Phase int

const (
	Introduction Phase = iota
	Technical
	Behavioral
	Closing
	Completed
)

var ErrCompleted = errors.New("interview already completed")

func (p Phase) String() string {
	switch p {
	case Introduction:
		return "introduction"
	case Technical:
		return "technical"
	case Behavioral:
		return "behavioral"
	case Closing:
		return "closing"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

func (p Phase) Valid() bool {
	return p >= Introduction && p <= Completed
}

// Next returns the phase that follows p. Completed is its own successor.
func (p Phase) Next() Phase {
	if p >= Completed {
		return Completed
	}
	return p + 1
}

// Parse maps the lowercase phase name back to a Phase.
func Parse(name string) (Phase, error) {
	for p := Introduction; p <= Completed; p++ {
		if p.String() == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

// Dimension is the score dimension collected while in a phase.
type Dimension string

const (
	DimensionNone       Dimension = ""
	DimensionTechnical  Dimension = "technical"
	DimensionBehavioral Dimension = "behavioral"
)

// ScoredDimension returns the dimension that exchanges in p are scored on.
func (p Phase) ScoredDimension() Dimension {
	switch p {
	case Technical:
		return DimensionTechnical
	case Behavioral:
		return DimensionBehavioral
	default:
		return DimensionNone
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
